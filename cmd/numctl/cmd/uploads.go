package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func uploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a CSV batch of numbers for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open batch file: %w", err)
			}
			defer f.Close()

			job, err := a.client().Upload(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}

			return printJSON(cmd, job)
		},
	}
}

func uploadsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uploads [batch-id]",
		Short: "List ingestion jobs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				job, err := a.client().GetUpload(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, job)
			}

			jobs, err := a.client().ListUploads(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, jobs)
		},
	}
}
