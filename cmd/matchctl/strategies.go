package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/matching"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/rpc"
	"github.com/spf13/cobra"
)

func newStrategiesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List ranking strategies and their aliases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategies := ranking.Strategies
			if root.remote != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				client, err := rpc.Dial(ctx, root.remote)
				if err != nil {
					return err
				}
				defer client.Close()
				var remote []ranking.Strategy
				if err := client.Call(ctx, matching.MethodStrategies, nil, &remote); err != nil {
					return fmt.Errorf("remote strategies: %w", err)
				}
				strategies = remote
			}
			out := cmd.OutOrStdout()
			for _, st := range strategies {
				if aliases := st.Aliases(); len(aliases) > 0 {
					fmt.Fprintf(out, "%s (%s)\n", st, strings.Join(aliases, ", "))
					continue
				}
				fmt.Fprintln(out, st)
			}
			return nil
		},
	}
}
