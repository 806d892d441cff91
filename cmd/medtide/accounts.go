package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage stored accounts",
	}

	cmd.AddCommand(
		newAccountsListCmd(a),
		newAccountsSwitchCmd(a),
		newAccountsRemoveCmd(a),
		newAccountsActiveCmd(a),
	)
	return cmd
}

func newAccountsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			accounts := a.accounts.List()
			if len(accounts) == 0 {
				cmd.Println("No accounts stored.")
				return nil
			}

			active := a.accounts.Active()
			for _, acc := range accounts {
				marker := " "
				if active != nil && acc.User == active.User {
					marker = "*"
				}
				cmd.Printf("%s %s\n", marker, acc.User)
			}
			return nil
		},
	}
}

func newAccountsSwitchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <username>",
		Short: "Make a stored account active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			if !a.accounts.Switch(args[0]) {
				return fmt.Errorf("no stored account named %q", args[0])
			}
			cmd.Printf("Active account is now %s\n", args[0])
			return nil
		},
	}
}

func newAccountsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Remove a stored account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			a.accounts.Remove(args[0])
			cmd.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}

func newAccountsActiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Print the active account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			active := a.accounts.Active()
			if active == nil {
				cmd.Println("No active account.")
				return nil
			}
			cmd.Println(active.User)
			return nil
		},
	}
}
