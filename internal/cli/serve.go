package cli

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/server"
	"github.com/lotas/tabregel/internal/tabops"
	"github.com/lotas/tabregel/internal/types"
)

func newServeCmd(a *app) *cobra.Command {
	var normalize bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge and handle the extension's context menu",
		Long: `Listen for the browser extension and run the operation behind each
context menu item it reports, replying with a one-line status. Engine runs
are recorded in the run history. Prometheus metrics are served on /metrics
next to the WebSocket endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, storeName, err := a.ruleStore()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			srv := server.New(a.cfg.Port).WithMetrics(reg)
			remote := server.NewRemote(srv, a.cfg.Engine.RequestTimeout)
			notify := server.StatusNotifier(srv)
			runner := engine.New(remote,
				engine.WithPolicy(a.cfg.Engine.Policy()),
				engine.WithMetrics(engine.NewMetrics(reg)),
				engine.WithStateHook(func(op string, window int, s engine.State) {
					applog.Debug("engine.state", "op", op, "window", window, "state", s.String())
				}),
			)
			d := &server.Dispatcher{
				Engine:              runner,
				Tabs:                tabops.New(remote),
				Rules:               store,
				Notify:              notify,
				OnRun:               a.recordRun,
				NormalizeDuplicates: normalize,
			}

			if fs, ok := store.(*rules.FileStore); ok {
				err := fs.Watch(ctx, func(list []types.Rule) {
					applog.Info("rules.reloaded", "path", fs.Path(), "count", len(list))
					if err := notify(fmt.Sprintf("Reloaded %d rules", len(list))); err != nil && !errors.Is(err, server.ErrNotConnected) {
						applog.Error("rules.reloaded.notify", err)
					}
				})
				if err != nil {
					return fmt.Errorf("watch rules file: %w", err)
				}
			}

			go d.Serve(ctx, srv.Messages())

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on 127.0.0.1:%d (rules: %s)\n", a.cfg.Port, storeName)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().BoolVar(&normalize, "normalize", false, "ignore fragments, query order and trailing slashes when removing duplicates")
	return cmd
}
