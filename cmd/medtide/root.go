package main

import (
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dorvan/medtide/internal/api"
	"github.com/dorvan/medtide/internal/config"
	"github.com/dorvan/medtide/internal/database"
	"github.com/dorvan/medtide/internal/logging"
	"github.com/dorvan/medtide/internal/store"
)

const version = "0.3.0"

// app bundles the pieces every command shares. The database is opened
// lazily so commands like version never touch the filesystem.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sql.DB
	accounts *store.AccountStore
	client   *api.Client
}

func newApp() *app {
	cfg := config.FromEnv()
	return &app{
		cfg:    cfg,
		logger: logging.Setup(cfg.LogLevel, cfg.LogFormat),
		client: api.NewClient(cfg.APIBaseURL),
	}
}

func (a *app) open() error {
	if a.db != nil {
		return nil
	}
	db, err := database.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	a.db = db
	a.accounts = store.NewAccountStore(store.NewKV(db), a.logger)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func newRootCmd() *cobra.Command {
	a := newApp()

	rootCmd := &cobra.Command{
		Use:           "medtide",
		Short:         "Medication reminder client",
		Long:          "medtide keeps a realtime channel to the reminder server and relays dose-due alarms as notifications. It manages multiple server accounts with one active at a time.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newSignupCmd(a),
		newProfileCmd(a),
		newAccountsCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("medtide " + version)
		},
	}
}
