package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"searchads-tap/internal/config"
	"searchads-tap/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
				"kind":  errorKind(err),
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorKind names the domain error class for machine-readable output.
func errorKind(err error) string {
	var (
		invalidRange *domain.InvalidRangeError
		validation   *domain.ValidationError
		transport    *domain.TransportError
		rejected     *domain.BackendRejectedError
		malformed    *domain.MalformedRowError
		notFound     *domain.NotFoundError
	)
	switch {
	case errors.As(err, &invalidRange):
		return "invalid_range"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &rejected):
		return "backend_rejected"
	case errors.As(err, &malformed):
		return "malformed_row"
	case errors.As(err, &notFound):
		return "not_found"
	default:
		return "internal"
	}
}

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	profile     string
	output      string
	envFile     string
	logLevel    string
	accessToken string
	orgID       string
	sink        string
	ledger      string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "searchads",
		Short:         "Search ads report extractor",
		Long:          "Extracts impression-share reports, campaigns and campaign-level reports from the search ads API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(flags.envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			// Config file is optional
			user, err := LoadUserConfig()
			if err != nil {
				user = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
			}
			p := user.ActiveProfile(flags.profile)

			// Apply precedence: flag > env > profile > default
			p.apply(cmd, &flags, cfg)
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("SEARCHADS_OUTPUT"); v != "" {
					flags.output = v
				} else if p.Output != "" {
					flags.output = p.Output
				} else if !isTerminal(cmd.OutOrStdout()) {
					flags.output = "json"
				}
			}
			if err := validateOutputFormat(flags.output); err != nil {
				return err
			}
			_ = cmd.Root().PersistentFlags().Set("output", flags.output)

			app.cfg = cfg
			app.logger = newLogger(cmd.ErrOrStderr(), cfg)
			for _, w := range cfg.Warnings {
				app.logger.Warn(w)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.profile, "profile", "p", "", "Config profile to use")
	pf.StringVarP(&flags.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.accessToken, "access-token", "", "Search ads access token")
	pf.StringVar(&flags.orgID, "org-id", "", "Search ads organisation id")
	pf.StringVar(&flags.sink, "sink", "", "Record destination (-, path, s3://, gs://, az://, duckdb://)")
	pf.StringVar(&flags.ledger, "ledger", "", "SQLite job ledger path (empty disables it)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newChunksCmd(app))
	rootCmd.AddCommand(newSyncCmd(app))
	rootCmd.AddCommand(newJobsCmd(app))
	rootCmd.AddCommand(newScheduleCmd(app))
	rootCmd.AddCommand(newSelectorsCmd(app))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
