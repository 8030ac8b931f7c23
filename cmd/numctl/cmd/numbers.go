package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
)

func searchCmd(a *app) *cobra.Command {
	var (
		criteria search.Criteria
		status   string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search numbers (AVAILABLE unless --status is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				s, err := models.ParseStatus(status)
				if err != nil {
					return err
				}
				criteria.Status = s
			}

			numbers, err := a.client().SearchNumbers(cmd.Context(), criteria)
			if err != nil {
				return err
			}

			return printJSON(cmd, numbers)
		},
	}

	f := cmd.Flags()
	f.StringVar(&criteria.Number, "number", "", "substring of the number")
	f.StringVar(&criteria.CountryCode, "country-code", "", "country code")
	f.StringVar(&criteria.AreaCode, "area-code", "", "area code")
	f.StringVar(&criteria.NumberType, "type", "", "number type")
	f.StringVar(&criteria.Category, "category", "", "category")
	f.StringVar(&criteria.Features, "features", "", "match any of these features")
	f.StringVar(&status, "status", "", "status to match")
	f.IntVar(&criteria.Page, "page", 0, "page, starting at 0")
	f.IntVar(&criteria.Size, "size", 0, "page size")

	return cmd
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid number id %q: %w", arg, err)
	}
	return id, nil
}

func getCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			n, err := a.client().GetNumber(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, n)
		},
	}
}

func historyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the status history of a number, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			history, err := a.client().History(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, history)
		},
	}
}

func reserveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <id>",
		Short: "Reserve an AVAILABLE number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			n, err := a.client().Reserve(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, n)
		},
	}
}

func allocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "allocate <id>",
		Short: "Allocate a number you reserved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			n, err := a.client().Allocate(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printJSON(cmd, n)
		},
	}
}

func setStatusCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Move a number to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			status, err := models.ParseStatus(args[1])
			if err != nil {
				return err
			}

			n, err := a.client().ChangeStatus(cmd.Context(), id, status, reason)
			if err != nil {
				return err
			}

			return printJSON(cmd, n)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the history")

	return cmd
}
