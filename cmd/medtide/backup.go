package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dorvan/medtide/internal/backup"
)

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload an encrypted snapshot of the account database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			passphrase, err := resolvePassphrase()
			if err != nil {
				return err
			}

			u := backup.NewUploader(a.cfg.Backup, a.db, a.logger)
			key, err := u.Backup(cmd.Context(), passphrase)
			if err != nil {
				return backupError(err)
			}
			cmd.Printf("Backup uploaded: %s\n", key)
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "restore <object-key>",
		Short: "Download and decrypt a backup snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			passphrase, err := resolvePassphrase()
			if err != nil {
				return err
			}

			dst := output
			if dst == "" {
				dst = a.cfg.DBPath + ".restored"
			}

			u := backup.NewUploader(a.cfg.Backup, a.db, a.logger)
			if err := u.Restore(cmd.Context(), args[0], passphrase, dst); err != nil {
				return backupError(err)
			}
			cmd.Printf("Restored to %s\n", dst)
			cmd.Printf("Move it over %s while medtide is stopped to use it.\n", a.cfg.DBPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the restored database")
	return cmd
}

func resolvePassphrase() (string, error) {
	if pw := os.Getenv("MEDTIDE_BACKUP_PASSPHRASE"); pw != "" {
		return pw, nil
	}
	return resolvePassword("", "Backup passphrase: ")
}

func backupError(err error) error {
	if err == backup.ErrDisabled {
		return fmt.Errorf("backups are not configured; set MEDTIDE_S3_BUCKET, MEDTIDE_S3_ACCESS_KEY and MEDTIDE_S3_SECRET_KEY")
	}
	return err
}
