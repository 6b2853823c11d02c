package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/slackwire/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "slackwire",
		Short: "Slack channel adapter for an agent service",
		Long:  "slackwire connects a Slack workspace to an HTTP agent service: it listens over Socket Mode, filters inbound events, and posts the agent's replies back as mrkdwn blocks.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")

	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack adapter service",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
