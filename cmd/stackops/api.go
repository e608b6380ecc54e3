package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stackops/stackops/internal/client"
)

var (
	apiAddr     string
	apiPassword string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://127.0.0.1:8000", "address of the stackops service")
	rootCmd.PersistentFlags().StringVar(&apiPassword, "password", os.Getenv("STACKOPS_PASSWORD"), "service password when auth is enabled (env STACKOPS_PASSWORD)")
}

// apiClient connects to the service, logging in first when a password is set.
func apiClient(ctx context.Context) (*client.Client, error) {
	c, err := client.New(apiAddr)
	if err != nil {
		return nil, err
	}
	if apiPassword != "" {
		if err := c.Login(ctx, apiPassword); err != nil {
			return nil, fmt.Errorf("logging in to %s: %w", apiAddr, err)
		}
	}
	return c, nil
}
