package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dukerupert/showtrack/internal/backup"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted database backups in S3-compatible storage",
	}
	cmd.AddCommand(newBackupRunCommand(ctx))
	cmd.AddCommand(newBackupListCommand(ctx))
	cmd.AddCommand(newBackupRestoreCommand(ctx))
	cmd.AddCommand(newBackupCleanupCommand(ctx))
	return cmd
}

func (a *app) backupManager() (*backup.Manager, error) {
	m, err := backup.NewManager(backup.S3Config{
		Endpoint:  a.cfg.Backup.Endpoint,
		Bucket:    a.cfg.Backup.Bucket,
		Region:    a.cfg.Backup.Region,
		AccessKey: a.cfg.Backup.AccessKey,
		SecretKey: a.cfg.Backup.SecretKey,
		Prefix:    a.cfg.Backup.Prefix,
	}, a.db, a.backups, a.logger)
	if errors.Is(err, backup.ErrNotConfigured) {
		return nil, fmt.Errorf("%w (set [backup] bucket, access_key and secret_key)", err)
	}
	return m, err
}

func (a *app) backupPassphrase() (string, error) {
	if a.cfg.Backup.Passphrase == "" {
		return "", errors.New("SHOWTRACK_BACKUP_PASSPHRASE is not set")
	}
	return a.cfg.Backup.Passphrase, nil
}

func newBackupRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Snapshot, encrypt and upload the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			passphrase, err := a.backupPassphrase()
			if err != nil {
				return err
			}
			m, err := a.backupManager()
			if err != nil {
				return err
			}
			b, err := m.Run(cmd.Context(), passphrase)
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup %d uploaded to %s (%d bytes)\n", b.ID, b.ObjectKey, b.SizeBytes)
			return nil
		},
	}
}

func newBackupListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.backups.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list backups: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No backups")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, b := range items {
				rows = append(rows, []string{
					strconv.FormatInt(b.ID, 10),
					b.CreatedAt.Local().Format("2006-01-02 15:04"),
					string(b.Status),
					strconv.FormatInt(b.SizeBytes, 10),
					b.ObjectKey,
					b.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Created", "Status", "Bytes", "Key", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}

func newBackupRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id> <dest-path>",
		Short: "Download and decrypt a backup into a new database file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			passphrase, err := a.backupPassphrase()
			if err != nil {
				return err
			}
			m, err := a.backupManager()
			if err != nil {
				return err
			}
			if err := m.Restore(cmd.Context(), id, passphrase, args[1]); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored backup %d to %s\n", id, args[1])
			return nil
		},
	}
}

func newBackupCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than the configured retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.backupManager()
			if err != nil {
				return err
			}
			n, err := m.Cleanup(cmd.Context(), cfg.Backup.Retention.Duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backups\n", n)
			return nil
		},
	}
}
