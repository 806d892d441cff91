package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dorvan/medtide/internal/notify"
	"github.com/dorvan/medtide/internal/realtime"
	"github.com/dorvan/medtide/internal/session"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the alarm daemon for the active account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			return runDaemon(cmd, a)
		},
	}
}

func runDaemon(cmd *cobra.Command, a *app) error {
	active := a.accounts.Active()
	if active == nil {
		return fmt.Errorf("no active session; run `medtide login` first")
	}

	validator := session.NewValidator(a.cfg.APIBaseURL, a.accounts, a.logger)
	switch res := validator.Validate(context.Background(), *active); res.Verdict {
	case session.Invalid:
		return fmt.Errorf("session for %q is no longer valid (%s); run `medtide login`", active.User, res.Reason)
	case session.Indeterminate:
		a.logger.Warn("could not verify session, starting offline", "reason", res.Reason)
	}

	var notifier notify.Notifier
	webpush := notify.NewWebpushNotifier(a.cfg.Webpush)
	if webpush.Enabled() {
		notifier = webpush
		a.logger.Info("delivering alarms via web push")
	} else {
		notifier = notify.NewLogNotifier(a.logger)
		a.logger.Info("no push subscription configured, logging alarms")
	}

	dispatcher := notify.NewDispatcher(notifier, a.logger)

	mgr := realtime.NewManager(realtime.Config{
		WSBaseURL: a.cfg.WSBaseURL,
		Policy:    realtime.DefaultRetryPolicy(),
		OnStatus: func(st realtime.Status) {
			a.logger.Debug("channel state", "state", st.State, "retry_count", st.RetryCount)
		},
	}, a.accounts, dispatcher, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.Connect(ctx)
	defer mgr.Teardown()

	cmd.Printf("medtide running for %s\n", active.User)

	// SIGHUP is the explicit reconnect trigger: it starts a fresh cycle
	// with a reset retry budget, the same way app foregrounding would.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s == syscall.SIGHUP {
			a.logger.Info("reconnect requested")
			mgr.Connect(ctx)
			continue
		}
		break
	}

	cmd.Println("\nShutting down...")
	return nil
}
