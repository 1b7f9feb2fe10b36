package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest6511/finvault/pkg/audit"

	"github.com/spf13/cobra"
)

// Audit flags
var (
	auditLimit        int
	auditSince        string
	auditExportFormat string
	auditExportOutput string
	auditExportForce  bool
)

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var since time.Time
		if auditSince != "" {
			duration, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = now().Add(-duration)
		}

		logger, err := unlockedAuditLogger(cmd)
		if err != nil {
			return err
		}
		events, err := logger.ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events found")
			return nil
		}
		for _, event := range events {
			// Format: TIMESTAMP OPERATION RESULT [RECORD]
			line := fmt.Sprintf("%s %s %s", event.Timestamp, event.Operation, event.Result)
			if event.Record != "" {
				record := event.Record
				if len(record) > 16 {
					record = record[:16] + "..."
				}
				line += " record:" + record
			}
			if event.Error != nil {
				line += " error:" + event.Error.Code
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintf(out, "\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := unlockedAuditLogger(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Verifying audit log integrity...")

		result, err := logger.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Fprintln(out, "✗ Audit log verification FAILED")
			fmt.Fprintf(out, "  Records total: %d\n", result.RecordsTotal)
			fmt.Fprintf(out, "  Records verified: %d\n", result.RecordsVerified)
			fmt.Fprintln(out, "  Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
			return fmt.Errorf("audit log integrity check failed")
		}

		fmt.Fprintf(out, "✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)
		jsonResult, _ := json.Marshal(result)
		fmt.Fprintf(out, "\nJSON: %s\n", jsonResult)
		return nil
	},
}

// auditExportCmd exports audit logs
var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}

		logger, err := unlockedAuditLogger(cmd)
		if err != nil {
			return err
		}
		data, err := logger.Export(auditExportFormat)
		if err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}

		if auditExportOutput == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := writeSecureFile(auditExportOutput, data, auditExportForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Audit logs exported to %s\n", auditExportOutput)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json or csv")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")
	auditExportCmd.Flags().BoolVar(&auditExportForce, "force", false, "Overwrite existing file")
}

// unlockedAuditLogger unlocks the session so the chain key is loaded.
func unlockedAuditLogger(cmd *cobra.Command) (*audit.Logger, error) {
	logger := v.AuditLogger()
	if logger == nil {
		return nil, fmt.Errorf("audit logging is disabled in %s", cfg.Home)
	}
	if err := ensureUnlocked(cmd); err != nil {
		return nil, err
	}
	return logger, nil
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
