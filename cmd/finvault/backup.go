package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/finvault/pkg/backup"
	"github.com/forest6511/finvault/pkg/vault"
)

// Backup/restore flags
var (
	backupOutput      string
	backupForce       bool
	restoreForce      bool
	restoreVerifyOnly bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write an encrypted backup of the vault",
	Long: `Write an encrypted, integrity-protected backup of the PIN settings,
transactions, categories, theme and audit secret.

Restoring the backup needs the PIN that is active now.

Examples:
  finvault backup -o finvault.bkp
  finvault backup -o finvault.bkp --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		var buf bytes.Buffer
		header, err := sess.Backup(cmdContext(cmd), &buf)
		if err != nil {
			return friendlyError(err)
		}
		if err := writeSecureFile(backupOutput, buf.Bytes(), backupForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s (%d record(s), %s)\n",
			backupOutput, header.RecordCount, formatSize(int64(buf.Len())))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace the vault with an encrypted backup",
	Long: `Replace the PIN, transactions, categories and theme with the contents
of a file written by 'finvault backup'. You are asked for the PIN that was
active when the backup was taken; it becomes the vault PIN. When a PIN is
already registered it is asked for first.

Use --verify-only to check the file without changing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readBackupFile(args[0])
		if err != nil {
			return err
		}
		if !restoreVerifyOnly {
			if err := unlockIfRegistered(cmd); err != nil {
				return err
			}
		}
		pin, err := readPIN(cmd, "Backup PIN: ")
		if err != nil {
			return err
		}

		header, err := v.OpenBackup(bytes.NewReader(data), pin)
		if err != nil {
			return backupError(err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Backup created: %s\n", header.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "Namespace:      %s\n", header.Namespace)
		fmt.Fprintf(out, "Records:        %d\n", header.RecordCount)
		if restoreVerifyOnly {
			fmt.Fprintln(out, "Backup verified")
			return nil
		}

		if !restoreForce && !confirm(cmd, "This replaces the PIN and all current data. Continue?") {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
		if _, err := sess.Restore(cmdContext(cmd), bytes.NewReader(data), pin); err != nil {
			return backupError(err)
		}
		fmt.Fprintln(out, "Restore complete")
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCmd.Flags().BoolVar(&backupForce, "force", false, "Overwrite existing file")
	_ = backupCmd.MarkFlagRequired("output")

	restoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Skip confirmation prompt")
	restoreCmd.Flags().BoolVar(&restoreVerifyOnly, "verify-only", false, "Check the backup without restoring")
}

// readBackupFile reads a backup, refusing anything larger than the format
// allows.
func readBackupFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	if info.Size() > backup.MaxFileSize {
		return nil, fmt.Errorf("backup file too large: %s", formatSize(info.Size()))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	return data, nil
}

// unlockIfRegistered asks for the current PIN unless the vault is empty.
func unlockIfRegistered(cmd *cobra.Command) error {
	registered, err := v.HasPIN(cmdContext(cmd))
	if err != nil {
		return friendlyError(err)
	}
	if !registered {
		return nil
	}
	return ensureUnlocked(cmd)
}

func backupError(err error) error {
	if errors.Is(err, vault.ErrAuthentication) {
		return errors.New("incorrect backup PIN or the backup file was modified")
	}
	return friendlyError(err)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
