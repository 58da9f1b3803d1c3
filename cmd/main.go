package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ai-gateway-client",
	Short: "AI Gateway Client - Signed provider calls without embedded secrets",
	Long: `A client-side security tool for calling third-party AI HTTP APIs
through a gateway without embedding provider secrets. Requests are signed
with short-lived sessions derived from server-issued credentials bound to
this device's identity.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
