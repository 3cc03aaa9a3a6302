// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values. They mirror config.yaml.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.mediaroot", "./data")
	v.SetDefault("main.createdirs", true)

	v.SetDefault("webserver.host", "127.0.0.1")
	v.SetDefault("webserver.port", 5000)
	v.SetDefault("webserver.bodylimit", "64K")
	v.SetDefault("webserver.readtimeout", 30*time.Second)
	v.SetDefault("webserver.writetimeout", 60*time.Second)

	v.SetDefault("catalog.scope", "all")
	v.SetDefault("catalog.cachettl", 5*time.Second)

	v.SetDefault("detector.backend", "none")
	v.SetDefault("detector.modelpath", "")
	v.SetDefault("detector.url", "")
	v.SetDefault("detector.timeout", 10*time.Second)
	v.SetDefault("detector.threshold", 0.25)
	v.SetDefault("detector.classid", 0)
	v.SetDefault("detector.threads", 0)

	v.SetDefault("crop.padding", 0.05)
	v.SetDefault("crop.quality", 90)

	v.SetDefault("preview.workers", 0)
	v.SetDefault("preview.ratelimit", 10.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.file", "")

	v.SetDefault("telemetry.metrics", false)
	v.SetDefault("telemetry.sentrydsn", "")
}
