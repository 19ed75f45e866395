package cli

import (
	"github.com/spf13/cobra"

	"searchads-tap/internal/selector"
)

func newSelectorsCmd(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "List report selectors (built-in and SELECTOR_DIR)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := selector.NewStore(app.cfg.SelectorDir, app.logger)
			if err != nil {
				return err
			}
			names := store.Names()
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), names)
			}
			rows := make([][]string, len(names))
			for i, n := range names {
				active := ""
				if n == app.cfg.Selector {
					active = "*"
				}
				rows[i] = []string{n, active}
			}
			printTable(cmd.OutOrStdout(), []string{"name", "active"}, rows)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print a selector body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := selector.NewStore(app.cfg.SelectorDir, app.logger)
			if err != nil {
				return err
			}
			tmpl, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tmpl)
		},
	})

	return cmd
}
