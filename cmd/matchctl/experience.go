package main

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/text"
	"github.com/spf13/cobra"
)

func newExperienceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experience FILE...",
		Short: "Estimate required years of experience",
		Long:  "Prints the largest \"N years of experience\" figure found in each file (- reads stdin), or 0 when none is stated.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				content, err := readInput(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", path, text.EstimateExperienceYears(content))
			}
			return nil
		},
	}
}
