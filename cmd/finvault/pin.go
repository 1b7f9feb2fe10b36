package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forest6511/finvault/internal/config"
	"github.com/forest6511/finvault/pkg/security"

	"github.com/spf13/cobra"
)

// initCmd registers the first PIN
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register a PIN and create the encrypted ledger",
	Long: `Register a 4-digit PIN and seed the default categories.

The PIN cannot be recovered. Forgetting it means the data is lost and the
only way forward is 'finvault reset'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		out := cmd.OutOrStdout()

		registered, err := v.HasPIN(ctx)
		if err != nil {
			return friendlyError(err)
		}
		if registered {
			return errors.New("finvault is already initialized, use 'finvault pin change'")
		}

		pin, err := readNewPIN(cmd, "Choose a 4-digit PIN: ")
		if err != nil {
			return err
		}
		if err := reportPINStrength(cmd, pin); err != nil {
			return err
		}

		if err := sess.Register(ctx, pin); err != nil {
			return friendlyError(err)
		}

		// Leave an editable config behind on first run
		if _, err := os.Stat(filepath.Join(cfg.Home, config.FileName)); errors.Is(err, os.ErrNotExist) {
			if err := cfg.Write(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
		}

		fmt.Fprintf(out, "finvault initialized at %s\n", cfg.Home)
		return nil
	},
}

// pinCmd is the parent command for PIN operations
var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "PIN operations",
}

// pinChangeCmd re-encrypts everything under a new PIN
var pinChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the PIN",
	Long: `Change the PIN and re-encrypt all data under a key derived with a
fresh salt.

Do not interrupt this command: the new PIN settings are written before the
data is re-encrypted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)

		current, err := readPIN(cmd, "Enter current PIN: ")
		if err != nil {
			return err
		}
		newPIN, err := readNewPIN(cmd, "Enter new PIN: ")
		if err != nil {
			return err
		}
		if current == newPIN {
			return errors.New("new PIN must be different from the current PIN")
		}
		if err := reportPINStrength(cmd, newPIN); err != nil {
			return err
		}

		ok, err := sess.ChangePIN(ctx, current, newPIN)
		if err != nil {
			return friendlyError(err)
		}
		if !ok {
			return incorrectPIN(ctx)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "PIN changed successfully")
		return nil
	},
}

// lockStatusCmd shows failed attempts and any running cooldown
var lockStatusCmd = &cobra.Command{
	Use:   "lock-status",
	Short: "Show failed unlock attempts and cooldown",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		out := cmd.OutOrStdout()

		registered, err := v.HasPIN(ctx)
		if err != nil {
			return friendlyError(err)
		}
		state, err := v.GetLockState(ctx)
		if err != nil {
			return friendlyError(err)
		}

		fmt.Fprintf(out, "PIN registered:  %t\n", registered)
		fmt.Fprintf(out, "Failed attempts: %d\n", state.FailedAttempts)
		if !state.LastAttempt.IsZero() {
			fmt.Fprintf(out, "Last failure:    %s\n", state.LastAttempt.Local().Format(time.RFC3339))
		}
		if d := v.RemainingCooldown(ctx); d > 0 {
			fmt.Fprintf(out, "Cooldown:        %s remaining\n", d.Round(time.Second))
		} else {
			fmt.Fprintln(out, "Cooldown:        none")
		}
		return nil
	},
}

func init() {
	pinCmd.AddCommand(pinChangeCmd)
}

// reportPINStrength rejects invalid PINs and prints advisory warnings.
func reportPINStrength(cmd *cobra.Command, pin string) error {
	report := security.CheckPIN(pin)
	if !report.Valid() {
		return fmt.Errorf("PIN validation failed: %s", report.Warnings[0])
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "PIN strength: %s\n", report.Strength)
	for _, warning := range report.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", warning)
	}
	return nil
}
