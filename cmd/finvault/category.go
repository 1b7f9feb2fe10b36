package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/forest6511/finvault/internal/cli"
	"github.com/forest6511/finvault/pkg/vault"

	"github.com/spf13/cobra"
)

// Category command flags
var (
	catType     string
	catListType string
	catListJSON bool
	catEditName string
	catEditType string
	catDelForce bool
)

// categoryCmd is the parent command for categories
var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"cat"},
	Short:   "Manage income and expense categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := vault.EntryType(catType)
		if !typ.Valid() {
			return fmt.Errorf("--type must be income or expense")
		}
		name := vault.NormalizeCategoryName(args[0])
		if len([]rune(name)) < 2 {
			return errors.New("category name needs at least 2 characters")
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		saved, err := sess.AddCategory(cmdContext(cmd), vault.Category{Name: name, Type: typ})
		if err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Category %s (%s) added as %s\n", saved.Name, saved.Type, saved.ID)
		return nil
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if catListType != "" && !vault.EntryType(catListType).Valid() {
			return fmt.Errorf("--type must be income or expense")
		}
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		cats, err := sess.Categories(cmdContext(cmd))
		if err != nil {
			return friendlyError(err)
		}
		if catListType != "" {
			filtered := cats[:0:0]
			for _, c := range cats {
				if string(c.Type) == catListType {
					filtered = append(filtered, c)
				}
			}
			cats = filtered
		}

		out := cmd.OutOrStdout()
		if catListJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cats)
		}
		if len(cats) == 0 {
			fmt.Fprintln(out, "No categories")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNAME")
		for _, c := range cats {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Type, c.Name)
		}
		return tw.Flush()
	},
}

var categoryEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Rename a category or change its type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch vault.CategoryPatch
		if cmd.Flags().Changed("name") {
			name := vault.NormalizeCategoryName(catEditName)
			if len([]rune(name)) < 2 {
				return errors.New("category name needs at least 2 characters")
			}
			patch.Name = &name
		}
		if cmd.Flags().Changed("type") {
			typ := vault.EntryType(catEditType)
			if !typ.Valid() {
				return fmt.Errorf("--type must be income or expense")
			}
			patch.Type = &typ
		}
		if patch.Name == nil && patch.Type == nil {
			return errors.New("nothing to change, pass --name or --type")
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		cats, err := sess.Categories(ctx)
		if err != nil {
			return friendlyError(err)
		}
		target, err := resolveCategory(cats, args[0], "")
		if err != nil {
			return err
		}

		updated, err := sess.UpdateCategory(ctx, target.ID, patch)
		if err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Category %s updated: %s (%s)\n", updated.ID, updated.Name, updated.Type)
		return nil
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a category",
	Long: `Delete a category. Transactions that used it keep their recorded
category name but lose the reference.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		cats, err := sess.Categories(ctx)
		if err != nil {
			return friendlyError(err)
		}
		target, err := resolveCategory(cats, args[0], "")
		if err != nil {
			return err
		}

		txs, err := sess.Transactions(ctx)
		if err != nil {
			return friendlyError(err)
		}
		used := 0
		for _, tx := range txs {
			if tx.CategoryID != nil && *tx.CategoryID == target.ID {
				used++
			}
		}
		if used > 0 && !catDelForce &&
			!confirm(cmd, fmt.Sprintf("Category %s is used by %d transaction(s). Delete anyway?", target.Name, used)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}

		if err := sess.DeleteCategory(ctx, target.ID); err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Category %s deleted\n", target.Name)
		return nil
	},
}

func init() {
	categoryCmd.AddCommand(categoryAddCmd)
	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryEditCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)

	categoryAddCmd.Flags().StringVarP(&catType, "type", "t", "", "income or expense")
	_ = categoryAddCmd.MarkFlagRequired("type")

	categoryListCmd.Flags().StringVarP(&catListType, "type", "t", "", "Only income or expense")
	categoryListCmd.Flags().BoolVar(&catListJSON, "json", false, "Output as JSON")

	categoryEditCmd.Flags().StringVar(&catEditName, "name", "", "New name")
	categoryEditCmd.Flags().StringVarP(&catEditType, "type", "t", "", "New type: income or expense")

	categoryDeleteCmd.Flags().BoolVarP(&catDelForce, "force", "f", false, "Skip confirmation when the category is in use")
}

// resolveCategory finds a category by exact id, then by name (case
// insensitive, restricted to typ when set), then by unique id prefix.
func resolveCategory(cats []vault.Category, ref string, typ vault.EntryType) (vault.Category, error) {
	for _, c := range cats {
		if c.ID == ref {
			return c, nil
		}
	}

	name := vault.NormalizeCategoryName(ref)
	var byName []vault.Category
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) && (typ == "" || c.Type == typ) {
			byName = append(byName, c)
		}
	}
	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
	default:
		return vault.Category{}, fmt.Errorf("category name %q is ambiguous, use the id", ref)
	}

	ids := make([]string, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	matches, err := cli.ExpandID(ref, ids)
	if err != nil || len(matches) != 1 {
		return vault.Category{}, fmt.Errorf("category %q not found", ref)
	}
	for _, c := range cats {
		if c.ID == matches[0] {
			return c, nil
		}
	}
	return vault.Category{}, fmt.Errorf("category %q not found", ref)
}
