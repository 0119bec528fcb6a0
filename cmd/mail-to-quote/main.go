package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mail-to-quote-go/internal/app"
)

// Version is set via ldflags at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mail-to-quote",
	Short: "Turn inbound quote request emails into ERP quote drafts",
	// Running without a subcommand starts the service.
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run()
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the inbox poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mail-to-quote version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gmailTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("application error: %v", err)
		os.Exit(1)
	}
}
