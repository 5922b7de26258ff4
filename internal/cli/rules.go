package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/tui"
	"github.com/lotas/tabregel/internal/types"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the grouping rules",
		Long: `Manage the grouping rules.

A rule has a name, a color and one or more URL patterns. In a pattern "*"
matches anything; every other character is literal and matching ignores
case. Rules are numbered from 1 in the order they are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listRules(cmd)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the rules in order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.listRules(cmd)
			},
		},
		newRulesAddCmd(a),
		newRulesEditCmd(a),
		newRulesDeleteCmd(a),
		newRulesMoveCmd(a),
		newRulesDeletePatternCmd(a),
		newRulesImportCmd(a),
		newRulesExportCmd(a),
		newRulesClearCmd(a),
		newRulesTUICmd(a),
	)
	return cmd
}

// editRules loads the rules into an editor, applies fn and saves the
// result when fn succeeds.
func (a *app) editRules(cmd *cobra.Command, fn func(e *rules.Editor) (string, error)) error {
	store, _, err := a.ruleStore()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := rules.Load(ctx, store)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	msg, err := fn(e)
	if err != nil {
		return err
	}
	if e.Dirty() {
		if err := e.Save(ctx, store); err != nil {
			return fmt.Errorf("save rules: %w", err)
		}
	}
	if msg != "" {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	}
	return nil
}

func (a *app) listRules(cmd *cobra.Command) error {
	store, name, err := a.ruleStore()
	if err != nil {
		return err
	}
	list, err := store.Rules(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintf(w, "No rules in %s. Add one with: tabregel rules add <name> <pattern>...\n", name)
		return nil
	}
	printRules(w, list)
	return nil
}

func printRules(w io.Writer, list []types.Rule) {
	for i, r := range list {
		fmt.Fprintf(w, "%2d. %s [%s]\n", i+1, r.Name, r.Color.OrDefault())
		for _, p := range r.Patterns {
			fmt.Fprintf(w, "      %s\n", p)
		}
	}
}

// ruleIndex converts a 1-based rule number.
func ruleIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid rule number %q", s)
	}
	return n - 1, nil
}

func selectColor(e *rules.Editor, color string) error {
	if color == "" {
		return nil
	}
	c, err := types.ParseColor(color)
	if err != nil {
		return err
	}
	return e.SelectColor(c)
}

func newRulesAddCmd(a *app) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:     "add <name> <pattern>...",
		Short:   "Append a rule",
		Example: `  tabregel rules add Google '*google.com*' '*gmail.com*' --color blue`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				if err := selectColor(e, color); err != nil {
					return "", err
				}
				i, err := e.Submit(args[0], strings.Join(args[1:], "\n"))
				if err != nil {
					return "", err
				}
				r := e.Rules()[i]
				return fmt.Sprintf("Added rule %d: %s [%s], %d patterns", i+1, r.Name, r.Color, len(r.Patterns)), nil
			})
		},
	}
	cmd.Flags().StringVarP(&color, "color", "c", string(types.ColorBlue), "group color: "+colorNames())
	return cmd
}

func colorNames() string {
	names := make([]string, len(types.Palette))
	for i, c := range types.Palette {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func newRulesEditCmd(a *app) *cobra.Command {
	var (
		name     string
		color    string
		patterns []string
		add      []string
	)
	cmd := &cobra.Command{
		Use:   "edit <n>",
		Short: "Change the name, color or patterns of rule n",
		Example: `  tabregel rules edit 2 --name Docs --color cyan
  tabregel rules edit 2 --add '*notion.so*'
  tabregel rules edit 2 --pattern '*docs.google.com*' --pattern '*sheets.google.com*'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := ruleIndex(args[0])
			if err != nil {
				return err
			}
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				r, err := e.Edit(i)
				if err != nil {
					return "", err
				}
				if err := selectColor(e, color); err != nil {
					return "", err
				}
				if name == "" {
					name = r.Name
				}
				if len(patterns) == 0 {
					patterns = r.Patterns
				}
				patterns = append(patterns, add...)
				if _, err := e.Submit(name, strings.Join(patterns, "\n")); err != nil {
					return "", err
				}
				r = e.Rules()[i]
				return fmt.Sprintf("Updated rule %d: %s [%s], %d patterns", i+1, r.Name, r.Color, len(r.Patterns)), nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVarP(&color, "color", "c", "", "new color: "+colorNames())
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "replace the patterns (repeatable)")
	cmd.Flags().StringArrayVar(&add, "add", nil, "append a pattern (repeatable)")
	return cmd
}

func newRulesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <n>",
		Short: "Delete rule n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := ruleIndex(args[0])
			if err != nil {
				return err
			}
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				if i >= e.Len() {
					return "", fmt.Errorf("rule %d does not exist", i+1)
				}
				name := e.Rules()[i].Name
				if err := e.Delete(i); err != nil {
					return "", err
				}
				return fmt.Sprintf("Deleted rule %d: %s", i+1, name), nil
			})
		},
	}
}

func newRulesMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "move <n> up|down",
		Short:     "Move rule n one place up or down",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := ruleIndex(args[0])
			if err != nil {
				return err
			}
			dir := 0
			switch args[1] {
			case "up":
				dir = -1
			case "down":
				dir = 1
			default:
				return fmt.Errorf("unknown direction %q: use up or down", args[1])
			}
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				if i >= e.Len() {
					return "", fmt.Errorf("rule %d does not exist", i+1)
				}
				if !e.Move(i, dir) {
					return fmt.Sprintf("Rule %d is already at the %s", i+1, map[int]string{-1: "top", 1: "bottom"}[dir]), nil
				}
				return fmt.Sprintf("Moved %s to position %d", e.Rules()[i+dir].Name, i+dir+1), nil
			})
		},
	}
}

func newRulesDeletePatternCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-pattern <n> <m>",
		Short: "Delete pattern m of rule n; a rule left without patterns is deleted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := ruleIndex(args[0])
			if err != nil {
				return err
			}
			j, err := ruleIndex(args[1])
			if err != nil {
				return err
			}
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				if i >= e.Len() {
					return "", fmt.Errorf("rule %d does not exist", i+1)
				}
				r := e.Rules()[i]
				removed, err := e.DeletePattern(i, j)
				if err != nil {
					return "", err
				}
				if removed {
					return fmt.Sprintf("Deleted rule %d: %s had no patterns left", i+1, r.Name), nil
				}
				return fmt.Sprintf("Removed %s from %s", r.Patterns[j], r.Name), nil
			})
		},
	}
}

func newRulesImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all rules with those of an exported rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			list, err := rules.Import(f)
			if err != nil {
				return err
			}
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				if err := e.Replace(list); err != nil {
					return "", err
				}
				return fmt.Sprintf("Imported %d rules from %s", len(list), args[0]), nil
			})
		},
	}
}

func newRulesExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the rules to a JSON file (- for stdout)",
		Long: `Write the rules to a JSON file that "rules import" reads back. The file
defaults to tab-grouping-rules-<date>.json in the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.ruleStore()
			if err != nil {
				return err
			}
			list, err := store.Rules(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			path := rules.ExportFileName(now)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "-" {
				return rules.Export(cmd.OutOrStdout(), list, now)
			}
			if len(list) == 0 {
				return rules.ErrEmpty
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := rules.Export(f, list, now); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rules to %s\n", len(list), path)
			return nil
		},
	}
}

func newRulesClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("this deletes every rule; pass --yes to confirm")
			}
			return a.editRules(cmd, func(e *rules.Editor) (string, error) {
				n := e.Len()
				if err := e.Clear(); err != nil {
					return "", err
				}
				return fmt.Sprintf("Deleted %d rules", n), nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func newRulesTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Edit the rules interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, name, err := a.ruleStore()
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), store, name)
		},
	}
}
