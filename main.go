package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flagConfigPath string
	flagLogLevel   string
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leafscan",
		Short: "Plant leaf disease detection",
		Long:  "leafscan detects plant leaf diseases in photos with a YOLO model and suggests causes and treatments.",
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to leafscan.toml (defaults to ./leafscan.toml if present)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(detectCmd())
	cmd.AddCommand(benchCmd())
	cmd.AddCommand(classesCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}
