package profiles

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltins(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	p, err := c.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != DefaultName {
		t.Fatalf("default profile = %q, want %q", p.Name, DefaultName)
	}
	if len(c.List()) == 0 {
		t.Fatal("no built-in profiles")
	}
}

func TestLoadCustomProfileShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	custom := `name = "kindle-paperwhite"
width = 800
height = 600
grayscale = true
`
	if err := os.WriteFile(filepath.Join(dir, "custom.toml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := c.Get("kindle-paperwhite")
	if err != nil {
		t.Fatal(err)
	}
	if p.Width != 800 || p.Height != 600 {
		t.Fatalf("custom profile not applied: %dx%d", p.Width, p.Height)
	}
}

func TestLoadProfileNameDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "my-reader.toml"), []byte("width = 1000\nheight = 1400\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("my-reader"); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.toml"), []byte("width = -4\nheight = 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid profile")
	}
}

func TestGetUnknownProfile(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("no-such-device"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestProfileArgs(t *testing.T) {
	p := Profile{Width: 1236, Height: 1648, ColorDepth: 8, Grayscale: true}
	args := p.Args()
	want := []string{"--width", "1236", "--height", "1648", "--depth", "8", "--grayscale"}
	if len(args) != len(want) {
		t.Fatalf("args = %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}
}
