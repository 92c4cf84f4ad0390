package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		server     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the chat history",
		Long:  "Fetches the message history from the chat server once and prints it without joining.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath, server)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to Switchboard config file (defaults are used when empty)")
	cmd.Flags().StringVarP(&server, "server", "s", "", "chat server base URL (overrides the config file)")
	return cmd
}

func runHistory(cmd *cobra.Command, configPath, server string) error {
	cfg, err := loadConfig(configPath, server)
	if err != nil {
		return err
	}
	loader, err := newLoader(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgs, err := loader.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	printTranscript(cmd.OutOrStdout(), msgs)
	return nil
}
