// Package cli implements the tabregel command tree.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/config"
	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/storage"
)

// skipSetup marks commands that run without config, log or database.
const skipSetup = "skip-setup"

// flagKeys binds persistent flags to config keys.
var flagKeys = map[string]string{
	"port":          "port",
	"window":        "window",
	"log.level":     "log-level",
	"database.path": "db",
	"rules.file":    "rules-file",
}

type app struct {
	cfgFile string
	cfg     config.Config
	db      *sql.DB
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root, a := newRoot()
	defer a.close()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// newRoot builds the command tree. The app must be closed after the
// command has run.
func newRoot() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "tabregel",
		Short: "Rule-based tab grouping and sorting for the browser",
		Long: `tabregel groups, sorts and tidies browser tabs.

Rules map URL wildcard patterns to named, colored tab groups. Live commands
drive the browser through the tabregel extension, which connects to a local
WebSocket. Add --dry-run to preview any change on a copy of the tabs, taken
from the browser or, with --offline, from a Firefox session file.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := cmd.Annotations[skipSetup]; ok {
				return nil
			}
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ~/.config/tabregel/config.yaml)")
	pf.Int("port", 0, "WebSocket port the extension connects to (default 19191)")
	pf.Int("window", 0, "browser window ID (default: the current window)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("db", "", "SQLite database path")
	pf.String("rules-file", "", "keep rules in this JSON file instead of the database")

	root.AddCommand(
		newGroupCmd(a),
		newUngroupCmd(a),
		newSortCmd(a),
		newRenumberCmd(a),
		newCloseCmd(a),
		newDedupeCmd(a),
		newCloneCmd(a),
		newExportCmd(a),
		newExportsCmd(a),
		newRulesCmd(a),
		newServeCmd(a),
		newRunsCmd(a),
		newStatsCmd(a),
		newProfilesCmd(a),
		newConfigCmd(a),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := applog.Init(cfg.Log.Dir, cfg.Log.Level); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: logging disabled: %v\n", err)
	}
	applog.Info("cli.start", "command", cmd.CommandPath())
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	applog.Close()
}

// openDB opens the database on first use.
func (a *app) openDB() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := storage.OpenDB(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return db, nil
}

// ruleStore returns the configured rule store and a name for it.
func (a *app) ruleStore() (rules.Store, string, error) {
	if a.cfg.Rules.File != "" {
		return rules.NewFileStore(a.cfg.Rules.File), a.cfg.Rules.File, nil
	}
	db, err := a.openDB()
	if err != nil {
		return nil, "", err
	}
	return storage.NewRuleStore(db), a.cfg.Database.Path, nil
}
