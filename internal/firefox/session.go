// Package firefox reads tabs offline from a Firefox profile's session
// store, for dry runs and exports without a connected extension.
package firefox

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/lotas/tabregel/internal/types"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// sessionFiles are tried in order: the running session, then the last
// closed one.
var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// ErrNoSession is returned when a profile has no session file.
var ErrNoSession = errors.New("no session file found")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if string(data[:len(mozLz4Magic)]) != string(mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	dst := make([]byte, binary.LittleEndian.Uint32(data[8:12]))
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Image        string     `json:"image"`
	Group        string     `json:"groupId"`
	Pinned       bool       `json:"pinned"`
	Hidden       bool       `json:"hidden"`
}

type rawGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

type rawWindow struct {
	Tabs     []rawTab   `json:"tabs"`
	Groups   []rawGroup `json:"groups"`
	Selected int        `json:"selected"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// ParseSession converts decompressed session JSON into a Snapshot.
// Windows are numbered from 1 and tabs get IDs in session order. Firefox
// group IDs are strings; they are mapped to integers from 1.
func ParseSession(data []byte) (*types.Snapshot, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	snap := &types.Snapshot{TakenAt: time.Now()}
	tabID, groupID := 1, 1

	for wi, rw := range raw.Windows {
		w := &types.Window{ID: wi + 1}
		groups := make(map[string]int, len(rw.Groups))
		for _, rg := range rw.Groups {
			color, err := types.ParseColor(rg.Color)
			if err != nil {
				color = types.DefaultColor
			}
			groups[rg.ID] = groupID
			w.Groups = append(w.Groups, &types.Group{
				ID:        groupID,
				WindowID:  w.ID,
				Title:     rg.Name,
				Color:     color,
				Collapsed: rg.Collapsed,
			})
			groupID++
		}

		for ti, rt := range rw.Tabs {
			if len(rt.Entries) == 0 || rt.Hidden {
				continue
			}

			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			tab := &types.Tab{
				ID:         tabID,
				WindowID:   w.ID,
				Index:      len(w.Tabs),
				URL:        entry.URL,
				Title:      entry.Title,
				Pinned:     rt.Pinned,
				Active:     rw.Selected == ti+1,
				GroupID:    types.NoGroup,
				FavIconURL: rt.Image,
			}
			if rt.LastAccessed > 0 {
				tab.LastAccessed = time.UnixMilli(rt.LastAccessed)
			}
			// A group referenced but not defined leaves the tab ungrouped.
			if gid, ok := groups[rt.Group]; ok && rt.Group != "" {
				tab.GroupID = gid
			}
			tabID++
			w.Tabs = append(w.Tabs, tab)
		}
		snap.Windows = append(snap.Windows, w)
	}

	return snap, nil
}

// SessionPath returns the session file ReadSession would read.
func SessionPath(profileDir string) (string, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	for _, name := range sessionFiles {
		p := filepath.Join(backupDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", backupDir, ErrNoSession)
}

// ReadSession reads and parses the session of a profile.
func ReadSession(profile types.Profile) (*types.Snapshot, error) {
	path, err := SessionPath(profile.Path)
	if err != nil {
		return nil, err
	}
	snap, err := ReadSessionFile(path)
	if err != nil {
		return nil, err
	}
	snap.Profile = profile
	return snap, nil
}

// ReadSessionFile reads and parses a mozlz4 session file.
func ReadSessionFile(path string) (*types.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}
	return ParseSession(decompressed)
}
