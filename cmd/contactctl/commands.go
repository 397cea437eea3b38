package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"contactsvc/internal/app"
	"contactsvc/internal/contact/models"
	"contactsvc/internal/platform/config"
	"contactsvc/internal/platform/database"
	"contactsvc/internal/platform/logger"
	"contactsvc/pkg/requestcontext"
)

type globalFlags struct {
	driver string
	dsn    string
	pretty bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "contactctl",
		Short:         "Reconcile and inspect contact identity groups",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.driver, "driver", "", "storage driver (memory, postgres, sqlite); overrides DATABASE_DRIVER")
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "database DSN; overrides DATABASE_URL")
	root.PersistentFlags().BoolVar(&flags.pretty, "pretty", false, "indent JSON output")

	root.AddCommand(newMigrateCmd(flags), newIdentifyCmd(flags), newListCmd(flags))
	return root
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil && flags.driver == "" {
		return config.Config{}, err
	}
	if flags.driver != "" {
		cfg.Database.Driver = strings.ToLower(flags.driver)
	}
	if flags.dsn != "" {
		cfg.Database.DSN = flags.dsn
	}
	if cfg.Reconcile.MaxAttempts == 0 {
		cfg.Reconcile.MaxAttempts = 4
	}
	if cfg.Reconcile.TxTimeout == 0 {
		cfg.Reconcile.TxTimeout = 5 * time.Second
	}
	return cfg, cfg.Validate()
}

func cliLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	cfg.Log.Format = "text"
	if cfg.Log.Level == "" || cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	return logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log)
}

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, revert) the contact schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			dir := database.Up
			if down {
				dir = database.Down
			}
			if err := database.Migrate(cfg.Database, dir, cliLogger(cmd, cfg)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every migration")
	return cmd
}

func newIdentifyCmd(flags *globalFlags) *cobra.Command {
	var email, phone string
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile one email/phone submission and print its group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg, cliLogger(cmd, cfg), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var sub models.Submission
			if v := strings.TrimSpace(email); v != "" {
				sub.Email = &v
			}
			if v := strings.TrimSpace(phone); v != "" {
				sub.PhoneNumber = &v
			}
			ctx := requestcontext.WithTime(cmd.Context(), time.Now())
			view, err := a.Service.Reconcile(ctx, sub)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), flags.pretty, viewJSON(*view))
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every identity group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg, cliLogger(cmd, cfg), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			views, err := a.Service.ListAllViews(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]contactJSON, 0, len(views))
			for _, v := range views {
				out = append(out, viewJSON(v))
			}
			return writeJSON(cmd.OutOrStdout(), flags.pretty, out)
		},
	}
}

type contactJSON struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

func viewJSON(v models.ConsolidatedView) contactJSON {
	return contactJSON{
		PrimaryContactID:    v.PrimaryID,
		Emails:              v.Emails,
		PhoneNumbers:        v.PhoneNumbers,
		SecondaryContactIDs: v.SecondaryIDs,
	}
}

func writeJSON(w io.Writer, pretty bool, v any) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
