package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Export/import flags
var (
	exportOutput string
	exportForce  bool
	importForce  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all transactions and categories as plaintext JSON",
	Long: `Export all transactions and categories as a plaintext JSON backup.

The file is NOT encrypted. Keep it somewhere safe or delete it after use.

Examples:
  finvault export -o backup.json
  finvault export > backup.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		doc, err := sess.Export(cmdContext(cmd))
		if err != nil {
			return friendlyError(err)
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		data = append(data, '\n')

		if exportOutput == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := writeSecureFile(exportOutput, data, exportForce); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the export is plaintext and not protected by your PIN.")
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transaction(s) and %d category(ies) to %s\n",
			len(doc.Transactions), len(doc.Categories), exportOutput)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace all data with a JSON backup",
	Long: `Replace all transactions and categories with the contents of a
backup written by 'finvault export'. Existing data is overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		if !importForce && !confirm(cmd, "This replaces all current transactions and categories. Continue?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
		if err := sess.Import(cmdContext(cmd), payload); err != nil {
			return friendlyError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Import complete")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Overwrite existing file")
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Skip confirmation prompt")
}

// writeSecureFile writes data with 0600 permissions, refusing system
// directories, symlinks and (unless force) existing files.
func writeSecureFile(path string, data []byte, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	for _, sensitive := range []string{"/etc/", "/usr/", "/bin/", "/sbin/", "/var/log/", "/var/run/"} {
		if strings.HasPrefix(absPath, sensitive) {
			return fmt.Errorf("security: refusing to write to system directory: %s", absPath)
		}
	}

	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("security: refusing to write to symlink: %s", absPath)
		}
		if !force {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// O_EXCL closes the race between the Lstat above and the create
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(absPath, flags, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	return nil
}
