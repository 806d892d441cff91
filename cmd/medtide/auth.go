package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dorvan/medtide/internal/api"
)

func newLoginCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and make the account active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			pw, err := resolvePassword(password, "Password: ")
			if err != nil {
				return err
			}

			creds, err := a.client.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return loginError(err)
			}

			a.accounts.Add(creds.User, creds.AccessToken)
			if !a.accounts.Switch(creds.User) {
				return fmt.Errorf("failed to activate account %q", creds.User)
			}

			cmd.Printf("Logged in as %s\n", creds.User)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (omit to be prompted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out the active account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			active := a.accounts.Active()
			if active == nil {
				return fmt.Errorf("no active session")
			}

			// Best effort: the local account is removed even when the
			// server cannot be reached, since the user asked to leave.
			if _, err := a.client.Logout(cmd.Context(), active.AccessToken); err != nil {
				a.logger.Warn("server logout failed, removing account locally", "error", err)
			}

			a.accounts.Remove(active.User)
			cmd.Printf("Logged out %s\n", active.User)
			return nil
		},
	}
}

func newSignupCmd(a *app) *cobra.Command {
	var password, dispenserCode string

	cmd := &cobra.Command{
		Use:   "signup <username>",
		Short: "Create a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password, "Choose a password: ")
			if err != nil {
				return err
			}

			msg, err := a.client.Signup(cmd.Context(), args[0], pw, dispenserCode)
			if err != nil {
				return loginError(err)
			}

			cmd.Println(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (omit to be prompted)")
	cmd.Flags().StringVar(&dispenserCode, "dispenser-code", "", "link the account to a dispenser")
	return cmd
}

// resolvePassword uses the flag value when given, otherwise prompts on
// stdin.
func resolvePassword(flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return pw, nil
}

// loginError maps transport errors to something actionable.
func loginError(err error) error {
	if errors.Is(err, api.ErrUnreachable) {
		return fmt.Errorf("unable to reach the server, please try again later")
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return errors.New(apiErr.Detail)
	}
	return err
}
