package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	var root = &cobra.Command{
		Use:          "mindsearch",
		Short:        "Answer questions by planning, searching and composing a cited response",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")

	root.AddCommand(serveCMD(), askCMD(), migrateCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
