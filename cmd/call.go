package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"ai-gateway-client/internal/apierror"
	"ai-gateway-client/internal/config"
	"ai-gateway-client/internal/gateway"
	"ai-gateway-client/internal/logging"

	"github.com/spf13/cobra"
)

var (
	callEndpoint string
	callBodyFile string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Execute one signed provider call through the gateway",
	Long: `Sign and send a single request to the configured provider through
the gateway, printing the raw response body. The request body is read from
--body-file or stdin.`,
	RunE: runCallCommand,
}

func init() {
	callCmd.Flags().StringVar(&callEndpoint, "endpoint", "", "provider endpoint path (empty for default routing)")
	callCmd.Flags().StringVar(&callBodyFile, "body-file", "", "file holding the JSON request body (default stdin)")

	rootCmd.AddCommand(callCmd)
}

func runCallCommand(cmd *cobra.Command, args []string) error {
	logger := logging.Initialize(logLevel)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to set up file logging: %w", err)
	}

	var body []byte
	if callBodyFile != "" {
		body, err = os.ReadFile(callBodyFile)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
	} else {
		body, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read request body from stdin: %w", err)
		}
	}

	svc, err := gateway.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway service: %w", err)
	}
	defer svc.Close()

	resp, err := svc.Call(context.Background(), callEndpoint, body)
	if err != nil {
		if apiErr, ok := apierror.As(err); ok && apiErr.RetryAfter > 0 {
			return fmt.Errorf("%s (retry in %d seconds)", apiErr.Message, apiErr.RetryAfter)
		}
		return err
	}

	fmt.Println(string(resp))
	return nil
}
