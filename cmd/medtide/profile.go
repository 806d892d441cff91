package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dorvan/medtide/internal/model"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View and update the active account's profile",
	}

	cmd.AddCommand(
		newProfileShowCmd(a),
		newProfileUpdateUsernameCmd(a),
		newProfileUpdatePasswordCmd(a),
	)
	return cmd
}

// requireActive opens the database and returns the active account, or
// an error telling the user to log in.
func requireActive(a *app) (*model.Account, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	active := a.accounts.Active()
	if active == nil {
		return nil, fmt.Errorf("no active session; run `medtide login` first")
	}
	return active, nil
}

func newProfileShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active account's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			active, err := requireActive(a)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := a.client.ReadUser(cmd.Context(), active.AccessToken)
			if err != nil {
				return loginError(err)
			}

			cmd.Printf("Username: %s\n", info.Username)
			if info.DispenserCode != "" {
				cmd.Printf("Dispenser: %s\n", info.DispenserCode)
			}
			return nil
		},
	}
}

func newProfileUpdateUsernameCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "update-username <new-username>",
		Short: "Change the active account's username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := requireActive(a)
			if err != nil {
				return err
			}
			defer a.close()

			pw, err := resolvePassword(password, "Current password: ")
			if err != nil {
				return err
			}

			msg, err := a.client.UpdateUsername(cmd.Context(), active.AccessToken, args[0], pw)
			if err != nil {
				return loginError(err)
			}
			cmd.Println(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "current password (omit to be prompted)")
	return cmd
}

func newProfileUpdatePasswordCmd(a *app) *cobra.Command {
	var password, newPassword string

	cmd := &cobra.Command{
		Use:   "update-password",
		Short: "Change the active account's password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			active, err := requireActive(a)
			if err != nil {
				return err
			}
			defer a.close()

			pw, err := resolvePassword(password, "Current password: ")
			if err != nil {
				return err
			}
			npw, err := resolvePassword(newPassword, "New password: ")
			if err != nil {
				return err
			}

			msg, err := a.client.UpdatePassword(cmd.Context(), active.AccessToken, npw, pw)
			if err != nil {
				return loginError(err)
			}
			cmd.Println(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "current password (omit to be prompted)")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password (omit to be prompted)")
	return cmd
}
