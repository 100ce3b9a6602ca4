// Package main is the entry point for the tgbridge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgbridge/pkg/version"
)

var (
	configPath    string
	versionOutput string
)

var rootCmd = &cobra.Command{
	Use:   "tgbridge",
	Short: "tgbridge - host bridge for an embedded Telegram web client",
	Long: `tgbridge drives an embedded Telegram web client from the host side.

It logs the user in against the application backend, resolves channels
through the Bot API or the web client, runs the join workflow and reports
outcomes over an HTTP/WebSocket gateway.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionOutput == "" {
			fmt.Println(version.GetFullVersion())
			return nil
		}
		return printValue(versionOutput, version.GetInfo())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "", "output format: json or yaml")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
