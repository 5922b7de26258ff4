package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lotas/tabregel/internal/analyzer"
	"github.com/lotas/tabregel/internal/config"
	"github.com/lotas/tabregel/internal/firefox"
	"github.com/lotas/tabregel/internal/storage"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent grouping and sorting runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			runs, err := storage.ListRuns(db, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-18s window %-4d %-8s moved %3d  groups %2d  settle %d  %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Op, r.WindowID, r.State,
					r.Moved, r.Groups, r.SettleRounds, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
				if r.Error != "" {
					fmt.Fprintf(w, "    error: %s\n", r.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var (
		src       sourceFlags
		staleDays int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count windows, tabs, groups and domains, and list stale tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, source, err := a.snapshot(cmd.Context(), src, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			s := analyzer.ComputeStats(snap)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Source:  %s\n", source)
			fmt.Fprintf(w, "Windows: %d\n", s.Windows)
			fmt.Fprintf(w, "Tabs:    %d (%d pinned)\n", s.Tabs, s.Pinned)
			fmt.Fprintf(w, "Groups:  %d\n", s.Groups)
			fmt.Fprintf(w, "Domains: %d\n", s.Domains)
			if dups := analyzer.Duplicates(snap.AllTabs(), false); len(dups) > 0 {
				fmt.Fprintf(w, "Duplicates: %d\n", len(dups))
			}

			if staleDays <= 0 {
				return nil
			}
			now := time.Now()
			var stale int
			for _, t := range analyzer.ByRecency(snap.AllTabs()) {
				days := analyzer.StaleDays(t, now)
				if days < staleDays {
					continue
				}
				if stale == 0 {
					fmt.Fprintf(w, "\nNot visited in %d days or more:\n", staleDays)
				}
				stale++
				fmt.Fprintf(w, "  %4dd  %s\n", days, tabLabel(t))
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().IntVar(&staleDays, "stale-days", 7, "list tabs not visited for this many days (0 to skip)")
	return cmd
}

func newProfilesCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:         "profiles",
		Short:       "List Firefox profiles usable with --offline",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := firefox.DiscoverProfiles()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				return fmt.Errorf("no Firefox profiles found")
			}
			for _, p := range profiles {
				suffix := ""
				if p.IsDefault {
					suffix = " [default]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)%s\n", p.Name, p.Path, suffix)
			}
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault(a.cfgFile, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
