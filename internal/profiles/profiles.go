// Package profiles holds the device-profile catalog: the rendering targets
// handed to the enhancement engine. Built-in profiles cover common e-ink
// readers; additional profiles load from TOML files in the configured
// profile directory and shadow built-ins with the same name.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Profile describes one target device. Read-only input to the enhancement
// engine; the conversion core never mutates it.
type Profile struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	ColorDepth  int    `toml:"color_depth"`
	Grayscale   bool   `toml:"grayscale"`
}

// Args renders the profile as engine command-line arguments.
func (p Profile) Args() []string {
	args := []string{
		"--width", fmt.Sprint(p.Width),
		"--height", fmt.Sprint(p.Height),
	}
	if p.ColorDepth > 0 {
		args = append(args, "--depth", fmt.Sprint(p.ColorDepth))
	}
	if p.Grayscale {
		args = append(args, "--grayscale")
	}
	return args
}

// DefaultName is the profile used when a conversion names none.
const DefaultName = "kindle-paperwhite"

var builtins = []Profile{
	{Name: "kindle-paperwhite", Description: "Kindle Paperwhite 11th gen", Width: 1236, Height: 1648, ColorDepth: 8, Grayscale: true},
	{Name: "kindle-oasis", Description: "Kindle Oasis", Width: 1264, Height: 1680, ColorDepth: 8, Grayscale: true},
	{Name: "kobo-clara", Description: "Kobo Clara 2E", Width: 1072, Height: 1448, ColorDepth: 8, Grayscale: true},
	{Name: "kobo-libra", Description: "Kobo Libra 2", Width: 1264, Height: 1680, ColorDepth: 8, Grayscale: true},
	{Name: "remarkable-2", Description: "reMarkable 2", Width: 1404, Height: 1872, ColorDepth: 8, Grayscale: true},
	{Name: "boox-color", Description: "Onyx Boox color series", Width: 1404, Height: 1872, ColorDepth: 24},
}

// Catalog resolves device profiles by name.
type Catalog struct {
	byName map[string]Profile
}

// Load builds a catalog from the built-in profiles plus any *.toml files in
// profileDir. A missing or empty directory is not an error.
func Load(profileDir string) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Profile, len(builtins))}
	for _, p := range builtins {
		c.byName[p.Name] = p
	}

	if strings.TrimSpace(profileDir) == "" {
		return c, nil
	}
	entries, err := os.ReadDir(profileDir)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read profile directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".toml") {
			continue
		}
		path := filepath.Join(profileDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile %s: %w", entry.Name(), err)
		}
		var p Profile
		if err := toml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", entry.Name(), err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("profile %s: %w", entry.Name(), err)
		}
		c.byName[p.Name] = p
	}
	return c, nil
}

func validate(p Profile) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("width and height must be positive (got %dx%d)", p.Width, p.Height)
	}
	if p.ColorDepth < 0 {
		return fmt.Errorf("color depth must not be negative")
	}
	return nil
}

// Get returns the named profile, or the default when name is empty.
func (c *Catalog) Get(name string) (Profile, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	p, ok := c.byName[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown device profile %q (run `rebind profiles` to list)", name)
	}
	return p, nil
}

// List returns every known profile sorted by name.
func (c *Catalog) List() []Profile {
	out := make([]Profile, 0, len(c.byName))
	for _, p := range c.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
