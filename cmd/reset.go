package main

import (
	"context"
	"fmt"

	"ai-gateway-client/internal/config"
	"ai-gateway-client/internal/gateway"
	"ai-gateway-client/internal/logging"

	"github.com/spf13/cobra"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset-identity",
	Short: "Discard the persisted device identity",
	Long: `Delete the persisted device identifier and all cached session
state. The backend will treat this install as a brand new device on the
next call. This is the only way the identity is ever regenerated.`,
	RunE: runResetCommand,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Reset without confirmation")

	rootCmd.AddCommand(resetCmd)
}

func runResetCommand(cmd *cobra.Command, args []string) error {
	logger := logging.Initialize(logLevel)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if !resetForce {
		fmt.Print("This will discard the device identity. Continue? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	svc, err := gateway.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway service: %w", err)
	}
	defer svc.Close()

	if err := svc.ResetIdentity(context.Background()); err != nil {
		return fmt.Errorf("failed to reset device identity: %w", err)
	}

	fmt.Println("Device identity reset.")
	return nil
}
