package main

import (
	"context"
	"fmt"
	"time"

	"ai-gateway-client/internal/config"
	"ai-gateway-client/internal/gateway"
	"ai-gateway-client/internal/logging"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Inspect device identity, configuration and session state",
	RunE:  runDoctorCommand,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorCommand(cmd *cobra.Command, args []string) error {
	logger := logging.Initialize(logLevel)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	svc, err := gateway.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway service: %w", err)
	}
	defer svc.Close()

	ctx := context.Background()

	fmt.Printf("Gateway URL:   %s\n", cfg.GatewayURL)
	fmt.Printf("Provider:      %s\n", cfg.Provider)
	fmt.Printf("Service URL:   %s\n", cfg.ServiceURL)
	fmt.Printf("Device ID:     %s\n", svc.DeviceID(ctx))

	if sess := svc.CachedSession(ctx); sess != nil {
		expiresAt := time.UnixMilli(sess.ExpiresAt)
		fmt.Printf("Session:       cached, provider=%s, expires %s\n", sess.Provider, expiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("Session:       none cached")
	}

	return nil
}
