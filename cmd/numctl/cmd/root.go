package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/targc/numbervault/pkg/apiclient"
	"github.com/targc/numbervault/pkg/config"
)

type app struct {
	apiURL string
	actor  string
}

func (a *app) client() *apiclient.Client {
	return apiclient.NewClient(a.apiURL, a.actor)
}

// RootCmd is the root Cobra command that gets called from the main func.
// Flags default to the NUMBERVAULT_API_URL and NUMBERVAULT_ACTOR settings.
func RootCmd(cfg *config.CLIConfig) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "numctl",
		Short:        "numctl manages the NumberVault telephone number inventory.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&a.apiURL, "api-url", cfg.APIURL, "NumberVault API base URL")
	cmd.PersistentFlags().StringVar(&a.actor, "as", cfg.Actor, "identity recorded on reservations and history")

	cmd.AddCommand(
		searchCmd(a),
		getCmd(a),
		historyCmd(a),
		reserveCmd(a),
		allocateCmd(a),
		setStatusCmd(a),
		uploadCmd(a),
		uploadsCmd(a),
	)

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
