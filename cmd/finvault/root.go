package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/forest6511/finvault/internal/config"
	"github.com/forest6511/finvault/pkg/audit"
	"github.com/forest6511/finvault/pkg/vault"

	"github.com/spf13/cobra"
)

var (
	cfg   *config.Config
	store *vault.SQLiteStore
	v     *vault.Vault
	sess  *vault.Session

	verbose bool

	// now is replaced in tests
	now = time.Now
)

var rootCmd = &cobra.Command{
	Use:   "finvault",
	Short: "finvault is a PIN-protected personal finance ledger",
	Long: `finvault records income and expenses in a local SQLite file.
Transactions and categories are encrypted with AES-256-GCM under a key
derived from a 4-digit PIN.`,
	SilenceUsage: true,
	// PersistentPreRunE opens the store for every command that needs it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsVault(cmd) {
			return nil
		}
		return openVault(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		closeVault()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable diagnostic logging to stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(lockStatusCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(themeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(completionCmd)
}

func skipsVault(cmd *cobra.Command) bool {
	name := cmd.Name()
	return name == "help" || name == "completion" || strings.HasPrefix(name, "__")
}

// openVault loads the config and opens the store, vault and session.
func openVault(cmd *cobra.Command) error {
	ctx := cmdContext(cmd)

	home, err := config.HomeDir()
	if err != nil {
		return err
	}
	cfg, err = config.Load(home)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
	}

	logger := newLogger(cmd.ErrOrStderr(), verbose)

	store, err = vault.OpenSQLite(ctx, cfg.DatabasePath())
	if err != nil {
		return friendlyError(err)
	}
	store.SetLogger(logger)

	opts := []vault.Option{
		vault.WithNamespace(cfg.Namespace),
		vault.WithDefaultCategories(cfg.Categories()),
		vault.WithLogger(logger),
	}
	if cfg.Audit {
		opts = append(opts, vault.WithAudit(audit.NewLogger(cfg.AuditDir()), audit.SourceCLI))
	}
	v = vault.New(store, opts...)
	sess = v.NewSession()
	return nil
}

// closeVault locks the session and closes the store. Safe to call twice.
func closeVault() {
	if sess != nil {
		sess.Lock()
		sess = nil
	}
	if store != nil {
		_ = store.Close()
		store = nil
	}
	v = nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ensureUnlocked prompts for the PIN when the session is locked.
func ensureUnlocked(cmd *cobra.Command) error {
	if !sess.IsLocked() {
		return nil
	}
	ctx := cmdContext(cmd)

	registered, err := v.HasPIN(ctx)
	if err != nil {
		return friendlyError(err)
	}
	if !registered {
		return fmt.Errorf("no PIN registered, run 'finvault init' first")
	}

	pin, err := readPIN(cmd, "Enter PIN: ")
	if err != nil {
		return err
	}
	ok, err := sess.Unlock(ctx, pin)
	if err != nil {
		return friendlyError(err)
	}
	if !ok {
		return incorrectPIN(ctx)
	}
	return nil
}

func incorrectPIN(ctx context.Context) error {
	if d := v.RemainingCooldown(ctx); d > 0 {
		return fmt.Errorf("incorrect PIN, try again in %s", d.Round(time.Second))
	}
	return fmt.Errorf("incorrect PIN")
}
