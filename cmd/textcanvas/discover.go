package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/textcanvas/internal/discovery"
	"github.com/vango-dev/textcanvas/internal/errors"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List canvas servers on the local network",
		Long: `Browse mDNS for servers started with "serve --discover".

Examples:
  textcanvas discover
  textcanvas discover --timeout=10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			info("Browsing for %s (%s)...", discovery.Service, timeout)
			peers, err := discovery.Browse(ctx)
			if err != nil {
				return errors.New("E150").Wrap(err)
			}
			if len(peers) == 0 {
				warn("No canvas servers found")
				return nil
			}
			for _, p := range peers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Instance, p.URL())
			}
			success("Found %d server(s)", len(peers))
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "How long to listen for answers")

	return cmd
}
