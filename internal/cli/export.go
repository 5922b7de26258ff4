package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/export"
	"github.com/lotas/tabregel/internal/snapshot"
	"github.com/lotas/tabregel/internal/storage"
)

const (
	formatHTML     = "html"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		src           sourceFlags
		format        string
		out           string
		excludePinned bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save every open tab as HTML, JSON or Markdown",
		Long: `Save every open tab, from all windows, to a file.

HTML exports are written to the export directory as
tabs-<count>-<timestamp>.html unless --out is given. JSON and Markdown go to
stdout unless --out is given. Browser-internal pages are left out. Every
export is recorded in the export history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			unpinned := excludePinned || a.cfg.Export.ExcludePinned
			filter, err := export.NewFilter(a.cfg.Export.Exclude, unpinned)
			if err != nil {
				return err
			}

			snap, source, err := a.snapshot(ctx, src, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			snap = filter.Apply(snap)
			count := len(snap.AllTabs())
			now := time.Now()

			var buf bytes.Buffer
			switch format {
			case formatHTML:
				if err := export.HTML(&buf, snap, now); err != nil {
					return err
				}
				if out == "" {
					out = filepath.Join(a.cfg.Export.Dir, export.FileName(count, unpinned, now))
				}
			case formatJSON:
				s, err := export.JSON(snap, now)
				if err != nil {
					return err
				}
				buf.WriteString(s)
			case formatMarkdown:
				buf.WriteString(export.Markdown(snap, now))
			default:
				return fmt.Errorf("unknown format %q: use html, json or markdown", format)
			}

			if out == "" {
				if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
					return err
				}
			} else {
				if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			rev, err := storage.RecordExport(db, storage.ExportSummary{
				Source:   source,
				Path:     out,
				Format:   format,
				Unpinned: unpinned,
			}, snap)
			if err != nil {
				return fmt.Errorf("record export: %w", err)
			}
			applog.Info("export.done", "source", source, "format", format, "tabs", count, "rev", rev)
			if out != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tabs to %s (export #%d)\n", count, out, rev)
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatHTML, "output format: html, json or markdown")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().BoolVar(&excludePinned, "exclude-pinned", false, "leave pinned tabs out")
	return cmd
}

func newExportsCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List, compare and restore recorded exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			list, err := storage.ListExports(db, source)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(w, "No exports recorded.")
				return nil
			}
			for _, e := range list {
				path := e.Path
				if path == "" {
					path = "(stdout)"
				}
				pinned := ""
				if e.Unpinned {
					pinned = ", unpinned"
				}
				fmt.Fprintf(w, "#%-3d %-12s %s  %4d tabs  %-8s%s  %s\n",
					e.Rev, e.Source, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.TabCount, e.Format, pinned, path)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&source, "from", "", "export source: live, a profile name or a session file name")
	cmd.AddCommand(
		newExportsDiffCmd(a, &source),
		newExportsDeleteCmd(a, &source),
		newExportsRestoreCmd(a, &source),
	)
	return cmd
}

func parseRev(s string) (int, error) {
	rev, err := strconv.Atoi(s)
	if err != nil || rev < 1 {
		return 0, fmt.Errorf("invalid export number %q", s)
	}
	return rev, nil
}

func newExportsDiffCmd(a *app, source *string) *cobra.Command {
	var src sourceFlags
	cmd := &cobra.Command{
		Use:   "diff [rev] [rev2]",
		Short: "Compare an export with the open tabs or with another export",
		Long: `Compare a recorded export with the tabs open now, or two exports with
each other. Without a rev the latest export of the source is used.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if len(args) == 2 {
				from, err := parseRev(args[0])
				if err != nil {
					return err
				}
				to, err := parseRev(args[1])
				if err != nil {
					return err
				}
				d, err := snapshot.Revisions(db, sourceOr(*source, src), from, to)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), snapshot.FormatDiff(d))
				return nil
			}

			rev := 0
			if len(args) == 1 {
				if rev, err = parseRev(args[0]); err != nil {
					return err
				}
			}
			current, name, err := a.snapshot(cmd.Context(), src, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if *source != "" {
				name = *source
			}
			d, err := snapshot.Against(db, name, rev, current)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), snapshot.FormatDiff(d))
			return nil
		},
	}
	src.register(cmd)
	return cmd
}

// sourceOr returns the explicit history source, or the one the flags
// would read from.
func sourceOr(source string, src sourceFlags) string {
	switch {
	case source != "":
		return source
	case src.session != "":
		return filepath.Base(src.session)
	case src.offline && src.profile != "":
		return src.profile
	}
	return liveSource
}

func newExportsDeleteCmd(a *app, source *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <rev>",
		Short: "Delete a recorded export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := parseRev(args[0])
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			name := sourceOr(*source, sourceFlags{})
			if err := storage.DeleteExport(db, name, rev); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted export #%d of %s\n", rev, name)
			return nil
		},
	}
	return cmd
}

func newExportsRestoreCmd(a *app, source *string) *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "restore <rev>",
		Short: "Reopen the tabs of an export that are not open in the window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := parseRev(args[0])
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			saved, err := storage.GetExport(db, sourceOr(*source, sourceFlags{}), rev)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			t, err := a.target(ctx, o.sourceFlags, o.dryRun, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer t.close()

			n, err := snapshot.Restore(ctx, t.store, saved.Snapshot, t.window)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d of %d tabs from export #%d\n", n, len(saved.Snapshot.AllTabs()), rev)
			if o.dryRun {
				tabs, err := t.mem.ListTabs(ctx, t.window)
				if err != nil {
					return err
				}
				groups, err := t.mem.ListGroups(ctx, t.window)
				if err != nil {
					return err
				}
				printWindow(cmd.OutOrStdout(), t.window, tabs, groups)
			}
			return nil
		},
	}
	o.register(cmd)
	return cmd
}
