package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/types"
)

func dial(t *testing.T, ctx context.Context, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	require.NoError(t, srv.WaitConnected(ctx))
	return conn
}

func write(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestServerDeliversEvents(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	write(t, ctx, conn, IncomingMsg{Type: "menu", Item: ItemSortByTitle, WindowID: 3})

	select {
	case msg := <-srv.Messages():
		assert.Equal(t, "menu", msg.Type)
		assert.Equal(t, ItemSortByTitle, msg.Item)
		assert.Equal(t, 3, msg.WindowID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	srv := New(0)
	assert.False(t, srv.Connected())
	assert.ErrorIs(t, srv.Send(OutgoingMsg{Action: "status"}), ErrNotConnected)

	_, err := srv.Request(context.Background(), OutgoingMsg{Action: "listTabs"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestServerSendsCommand(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	require.NoError(t, srv.Send(OutgoingMsg{ID: "cmd-1", Action: "removeTabs", TabIDs: []int{42}}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var got OutgoingMsg
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "cmd-1", got.ID)
	assert.Equal(t, "removeTabs", got.Action)
	assert.Equal(t, []int{42}, got.TabIDs)
}

func TestRequestMatchesReplyByID(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req OutgoingMsg
		json.Unmarshal(data, &req)
		ok := true
		// An unrelated reply first; it must not satisfy the request.
		data, _ = json.Marshal(IncomingMsg{ID: "someone-else", OK: &ok})
		conn.Write(ctx, websocket.MessageText, data)
		data, _ = json.Marshal(IncomingMsg{ID: req.ID, OK: &ok, GroupID: 77})
		conn.Write(ctx, websocket.MessageText, data)
	}()

	in, err := srv.Request(ctx, OutgoingMsg{Action: "groupTabs", TabIDs: []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 77, in.GroupID)
}

func TestRequestRemoteError(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req OutgoingMsg
		json.Unmarshal(data, &req)
		ok := false
		data, _ = json.Marshal(IncomingMsg{ID: req.ID, OK: &ok, Error: "No tab with id: 9"})
		conn.Write(ctx, websocket.MessageText, data)
	}()

	_, err := srv.Request(ctx, OutgoingMsg{Action: "moveTab", TabID: 9})
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "moveTab", remote.Action)
	assert.Equal(t, "moveTab: No tab with id: 9", err.Error())
}

func TestRequestTimeout(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dial(t, ctx, srv)

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, err := srv.Request(short, OutgoingMsg{Action: "listTabs"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine.NewMetrics(reg).MovesTotal.Add(3)

	ts := httptest.NewServer(New(0).WithMetrics(reg).Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tabregel_tab_moves_total 3")
}

// extension answers requests the way the browser extension does, backed by
// an in-memory browser.
func extension(ctx context.Context, conn *websocket.Conn, m *browser.Memory) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req OutgoingMsg
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		reply := apply(ctx, m, req)
		reply.ID = req.ID
		data, _ = json.Marshal(reply)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}

func apply(ctx context.Context, m *browser.Memory, req OutgoingMsg) IncomingMsg {
	window := req.WindowID
	if window == 0 {
		window = types.CurrentWindow
	}
	var reply IncomingMsg
	var err error
	switch req.Action {
	case "listTabs":
		var tabs []*types.Tab
		if tabs, err = m.ListTabs(ctx, window); err == nil {
			reply.Tabs = rawTabs(tabs)
		}
	case "listGroups":
		var groups []*types.Group
		if groups, err = m.ListGroups(ctx, window); err == nil {
			reply.Groups = rawGroups(groups)
		}
	case "snapshot":
		var snap *types.Snapshot
		if snap, err = m.Snapshot(ctx); err == nil {
			reply.Tabs = rawTabs(snap.AllTabs())
			reply.Groups = rawGroups(snap.AllGroups())
		}
	case "moveTab":
		err = m.MoveTab(ctx, req.TabID, *req.Index)
	case "groupTabs":
		into := types.NoGroup
		if req.GroupID != 0 {
			into = req.GroupID
		}
		reply.GroupID, err = m.GroupTabs(ctx, req.TabIDs, into)
	case "ungroupTabs":
		err = m.UngroupTabs(ctx, req.TabIDs)
	case "removeTabs":
		err = m.RemoveTabs(ctx, req.TabIDs)
	case "createTab":
		index := -1
		if req.Index != nil {
			index = *req.Index
		}
		var tab *types.Tab
		if tab, err = m.CreateTab(ctx, window, req.URL, index, *req.Active); err == nil {
			reply.Tab = rawTab(tab)
		}
	case "updateGroup":
		u := browser.GroupUpdate{Title: req.Title, Collapsed: req.Collapsed}
		if req.Color != "" {
			u.Color = browser.Color(types.Color(req.Color))
		}
		err = m.UpdateGroup(ctx, req.GroupID, u)
	default:
		err = errors.New("unknown action " + req.Action)
	}
	ok := err == nil
	reply.OK = &ok
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}

func rawTab(t *types.Tab) json.RawMessage {
	gid := t.GroupID
	w := wireTabOf(t, &gid)
	data, _ := json.Marshal(w)
	return data
}

func wireTabOf(t *types.Tab, gid *int) wireTab {
	w := wireTab{
		ID:         t.ID,
		URL:        t.URL,
		Title:      t.Title,
		GroupID:    gid,
		WindowID:   t.WindowID,
		Index:      t.Index,
		Pinned:     t.Pinned,
		Active:     t.Active,
		FavIconURL: t.FavIconURL,
	}
	if !t.LastAccessed.IsZero() {
		w.LastAccessed = float64(t.LastAccessed.UnixMilli())
	}
	return w
}

func rawTabs(tabs []*types.Tab) json.RawMessage {
	ws := make([]wireTab, 0, len(tabs))
	for _, t := range tabs {
		gid := t.GroupID
		ws = append(ws, wireTabOf(t, &gid))
	}
	data, _ := json.Marshal(ws)
	return data
}

func rawGroups(groups []*types.Group) json.RawMessage {
	ws := make([]wireGroup, 0, len(groups))
	for _, g := range groups {
		ws = append(ws, wireGroup{ID: g.ID, WindowID: g.WindowID, Title: g.Title, Color: string(g.Color), Collapsed: g.Collapsed})
	}
	data, _ := json.Marshal(ws)
	return data
}
