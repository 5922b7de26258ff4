package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/firefox"
	"github.com/lotas/tabregel/internal/server"
	"github.com/lotas/tabregel/internal/types"
)

// liveSource names snapshots taken from the connected browser.
const liveSource = "live"

var errReadOnly = errors.New("offline sources are read-only; add --dry-run to preview")

// sourceFlags selects where tabs are read from.
type sourceFlags struct {
	offline bool
	profile string
	session string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&s.offline, "offline", false, "read tabs from the Firefox session file instead of the browser")
	cmd.Flags().StringVar(&s.profile, "profile", "", "Firefox profile for --offline (default: the default profile)")
	cmd.Flags().StringVar(&s.session, "session", "", "read tabs from this mozlz4 session file (implies --offline)")
}

func (s *sourceFlags) isOffline() bool {
	return s.offline || s.session != ""
}

// link is a connection to the browser extension.
type link struct {
	srv    *server.Server
	remote *server.Remote
	cancel context.CancelFunc
}

func (l *link) Close() {
	l.cancel()
}

// connect starts the bridge and waits for the extension to connect.
func (a *app) connect(ctx context.Context, errOut io.Writer) (*link, error) {
	ctx, cancel := context.WithCancel(ctx)
	srv := server.New(a.cfg.Port)
	served := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe(ctx)
		if err != nil {
			cancel()
		}
		served <- err
	}()

	fmt.Fprintf(errOut, "Waiting for browser extension on port %d...\n", a.cfg.Port)
	wait, stop := context.WithTimeout(ctx, a.cfg.Engine.ConnectTimeout)
	defer stop()
	if err := srv.WaitConnected(wait); err != nil {
		cancel()
		if serr := <-served; serr != nil {
			return nil, fmt.Errorf("start bridge: %w", serr)
		}
		return nil, fmt.Errorf("%w after %s", err, a.cfg.Engine.ConnectTimeout)
	}
	applog.Info("cli.connected", "port", a.cfg.Port)
	return &link{
		srv:    srv,
		remote: server.NewRemote(srv, a.cfg.Engine.RequestTimeout),
		cancel: cancel,
	}, nil
}

// snapshot reads every window from the selected source and returns it with
// the source name used in the export history.
func (a *app) snapshot(ctx context.Context, src sourceFlags, errOut io.Writer) (*types.Snapshot, string, error) {
	switch {
	case src.session != "":
		snap, err := firefox.ReadSessionFile(src.session)
		if err != nil {
			return nil, "", err
		}
		return snap, filepath.Base(src.session), nil
	case src.offline:
		snap, err := firefox.Load(src.profile)
		if err != nil {
			return nil, "", err
		}
		return snap, snap.Profile.Name, nil
	}

	l, err := a.connect(ctx, errOut)
	if err != nil {
		return nil, "", err
	}
	defer l.Close()
	snap, err := l.remote.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	return snap, liveSource, nil
}

// target is the store a mutating command works on: the live browser, or an
// in-memory copy of a snapshot for dry runs.
type target struct {
	store  browser.Store
	mem    *browser.Memory
	window int
	close  func()
}

func (a *app) target(ctx context.Context, src sourceFlags, dryRun bool, errOut io.Writer) (*target, error) {
	if !dryRun {
		if src.isOffline() {
			return nil, errReadOnly
		}
		l, err := a.connect(ctx, errOut)
		if err != nil {
			return nil, err
		}
		return &target{store: l.remote, window: a.cfg.Window, close: l.Close}, nil
	}

	snap, _, err := a.snapshot(ctx, src, errOut)
	if err != nil {
		return nil, err
	}
	mem := browser.FromSnapshot(snap)
	window := a.cfg.Window
	if window == types.CurrentWindow {
		window = activeWindow(snap)
	}
	return &target{store: mem, mem: mem, window: window, close: func() {}}, nil
}

// activeWindow picks the first window holding an active tab, or the
// first window.
func activeWindow(snap *types.Snapshot) int {
	for _, w := range snap.Windows {
		for _, t := range w.Tabs {
			if t.Active {
				return w.ID
			}
		}
	}
	if len(snap.Windows) > 0 {
		return snap.Windows[0].ID
	}
	return types.CurrentWindow
}
