package main

import (
	"os"

	"github.com/platelab/labeler/cmd"
	"github.com/platelab/labeler/internal/app"
)

func main() {
	ctx := app.NewContext()
	rootCmd := cmd.RootCommand(ctx)

	err := rootCmd.Execute()
	ctx.Close()
	if err != nil {
		os.Exit(1)
	}
}
