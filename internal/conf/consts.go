// conf/consts.go hard coded constants
package conf

const (
	AppName    = "labeler"
	ConfigName = "config"
	ConfigType = "yaml"

	// LockFileName is created in the media root to keep a second instance out.
	LockFileName = ".labeler.lock"
)
