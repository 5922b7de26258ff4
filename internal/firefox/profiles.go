package firefox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lotas/tabregel/internal/types"
)

// EnvDir overrides the directory searched for profiles.ini.
const EnvDir = "TABREGEL_FIREFOX_DIR"

// ErrNoFirefox is returned when no directory with a profiles.ini exists.
var ErrNoFirefox = errors.New("no Firefox profile directory found")

// Dirs returns the directories that may hold profiles.ini on this
// platform, in the order they are tried.
func Dirs() []string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return []string{dir}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	switch runtime.GOOS {
	case "linux":
		return []string{
			filepath.Join(home, ".mozilla", "firefox"),
			filepath.Join(home, ".var", "app", "org.mozilla.firefox", ".mozilla", "firefox"),
			filepath.Join(home, "snap", "firefox", "common", ".mozilla", "firefox"),
		}
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Firefox")}
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return []string{filepath.Join(appData, "Mozilla", "Firefox")}
		}
	}
	return nil
}

// FindDir returns the first of Dirs that contains a profiles.ini.
func FindDir() (string, error) {
	for _, dir := range Dirs() {
		if _, err := os.Stat(filepath.Join(dir, "profiles.ini")); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w (%s)", ErrNoFirefox, runtime.GOOS)
}

type iniSection struct {
	name string
	keys map[string]string
}

func readINI(r io.Reader) ([]iniSection, error) {
	var sections []iniSection
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "", line[0] == ';', line[0] == '#':
		case line[0] == '[' && line[len(line)-1] == ']':
			sections = append(sections, iniSection{name: line[1 : len(line)-1], keys: map[string]string{}})
		case len(sections) > 0:
			if k, v, ok := strings.Cut(line, "="); ok {
				sections[len(sections)-1].keys[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
	}
	return sections, sc.Err()
}

// ParseProfiles reads dir/profiles.ini and returns the profiles that have a
// session file, in file order. Relative paths are resolved against dir.
// A Default= entry in an [Install...] section marks the default profile
// and overrides the per-profile Default=1 flag.
func ParseProfiles(dir string) ([]types.Profile, error) {
	f, err := os.Open(filepath.Join(dir, "profiles.ini"))
	if err != nil {
		return nil, fmt.Errorf("open profiles.ini: %w", err)
	}
	defer f.Close()

	sections, err := readINI(f)
	if err != nil {
		return nil, fmt.Errorf("read profiles.ini: %w", err)
	}

	var (
		profiles []types.Profile
		raw      []string
		install  string
	)
	for _, s := range sections {
		switch {
		case strings.HasPrefix(s.name, "Install"):
			if install == "" {
				install = s.keys["Default"]
			}
		case strings.HasPrefix(s.name, "Profile"):
			p := types.Profile{
				Name:       s.keys["Name"],
				Path:       s.keys["Path"],
				IsRelative: s.keys["IsRelative"] == "1",
				IsDefault:  s.keys["Default"] == "1",
			}
			if p.Path == "" {
				continue
			}
			raw = append(raw, p.Path)
			if p.IsRelative {
				p.Path = filepath.Join(dir, filepath.FromSlash(p.Path))
			}
			profiles = append(profiles, p)
		}
	}

	var usable []types.Profile
	for i, p := range profiles {
		if install != "" {
			p.IsDefault = raw[i] == install
		}
		if _, err := SessionPath(p.Path); err == nil {
			usable = append(usable, p)
		}
	}
	return usable, nil
}

// DiscoverProfiles finds and parses the Firefox profiles of this user.
func DiscoverProfiles() ([]types.Profile, error) {
	dir, err := FindDir()
	if err != nil {
		return nil, err
	}
	return ParseProfiles(dir)
}

// Resolve picks a profile by name. An empty name selects the default
// profile, falling back to the first one.
func Resolve(profiles []types.Profile, name string) (types.Profile, error) {
	if len(profiles) == 0 {
		return types.Profile{}, fmt.Errorf("no Firefox profiles with a session file")
	}
	if name != "" {
		for _, p := range profiles {
			if p.Name == name {
				return p, nil
			}
		}
		return types.Profile{}, fmt.Errorf("profile %q not found", name)
	}
	for _, p := range profiles {
		if p.IsDefault {
			return p, nil
		}
	}
	return profiles[0], nil
}

// Load reads the session of the named profile, or of the default profile
// when name is empty.
func Load(name string) (*types.Snapshot, error) {
	profiles, err := DiscoverProfiles()
	if err != nil {
		return nil, fmt.Errorf("discover profiles: %w", err)
	}
	p, err := Resolve(profiles, name)
	if err != nil {
		return nil, err
	}
	return ReadSession(p)
}
