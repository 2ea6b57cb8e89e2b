package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"metamender/internal/services"
	"metamender/internal/services/jellyfin"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the Jellyfin server is reachable and the API key is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			timeout := time.Duration(cfg.Jellyfin.TimeoutSeconds) * time.Second
			pingCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			info, err := jellyfin.NewFromConfig(cfg).Ping(pingCtx)
			if err != nil {
				return services.Wrap(services.ErrUnavailable, "jellyfin", "ping", cfg.Jellyfin.URL, err)
			}
			out := cmd.OutOrStdout()
			name := info.ServerName
			if name == "" {
				name = cfg.Jellyfin.URL
			}
			fmt.Fprintf(out, "Jellyfin reachable: %s", name)
			if info.Version != "" {
				fmt.Fprintf(out, " (version %s)", info.Version)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Provider: %s / %s\n", cfg.Provider.Name, cfg.Provider.Model)
			return nil
		},
	}
}
