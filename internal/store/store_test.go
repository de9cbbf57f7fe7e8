package store

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writePack builds a zip pack in dir with the given entries
func writePack(t *testing.T, dir, id string, entries map[string]string) string {
	t.Helper()
	file := filepath.Join(dir, id+PackExt)
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return file
}

// TestDiskReadWrite covers write, list, read and remove
func TestDiskReadWrite(t *testing.T) {
	d := NewDisk(t.TempDir(), "")

	names, err := d.List("HB")
	if err != nil || len(names) != 0 {
		t.Fatalf("empty list = %v, %v", names, err)
	}

	if err := d.Write("HB", "user", []byte(`{"version":3}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := d.Write("HB", "roof", []byte(`{}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	names, err = d.List("HB")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "roof" || names[1] != "user" {
		t.Errorf("List = %v, want [roof user]", names)
	}

	data, err := d.Read("HB", "user")
	if err != nil || string(data) != `{"version":3}` {
		t.Errorf("Read = %q, %v", data, err)
	}

	if _, err := d.Read("HB", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := d.Remove("HB", "roof"); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove("HB", "roof"); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
}

// TestDiskBundlePath verifies the optional bundle directory
func TestDiskBundlePath(t *testing.T) {
	root := t.TempDir()
	d := NewDisk(root, "winter")
	want := filepath.Join(root, "winter", "SM", "user.json")
	if got := d.Path("SM", "user"); got != want {
		t.Errorf("Path = %s, want %s", got, want)
	}
}

// TestOverrides round trips pack enable overrides
func TestOverrides(t *testing.T) {
	d := NewDisk(t.TempDir(), "")
	o, err := d.LoadOverrides("lamps")
	if err != nil || len(o) != 0 {
		t.Fatalf("missing overrides = %v, %v", o, err)
	}
	o["HB/street"] = false
	if err := d.SaveOverrides("lamps", o); err != nil {
		t.Fatal(err)
	}
	back, err := d.LoadOverrides("lamps")
	if err != nil {
		t.Fatal(err)
	}
	if enabled, ok := back["HB/street"]; !ok || enabled {
		t.Errorf("override lost: %v", back)
	}
}

// TestPackMount reads documents and bundles out of a zip pack
func TestPackMount(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "lamps", map[string]string{
		"HB/street.json":        `{"version":3}`,
		"HB/yard.json":          `{}`,
		"HB/nested/skip.json":   `{}`,
		"SM/other.json":         `{}`,
		"bundles/lamp.assets":   "binary",
	})
	if err := os.WriteFile(filepath.Join(dir, "broken.zip"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	packs, err := MountDir(dir)
	if err != nil {
		t.Fatalf("MountDir failed: %v", err)
	}
	defer packs.Close()

	if len(packs.All()) != 1 {
		t.Fatalf("expected 1 mounted pack, got %d", len(packs.All()))
	}
	p := packs.Get("lamps")
	if p == nil {
		t.Fatal("pack lamps not mounted")
	}

	names, _ := p.List("HB")
	if len(names) != 2 || names[0] != "street" || names[1] != "yard" {
		t.Errorf("List = %v, want [street yard]", names)
	}
	data, err := p.Read("HB", "street")
	if err != nil || string(data) != `{"version":3}` {
		t.Errorf("Read = %q, %v", data, err)
	}
	if b, err := p.Open("bundles/lamp.assets"); err != nil || string(b) != "binary" {
		t.Errorf("Open bundle = %q, %v", b, err)
	}
	if _, err := p.Read("HB", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestResourceID keeps disk and pack documents apart
func TestResourceID(t *testing.T) {
	if ResourceID("", "HB", "user") == ResourceID("lamps", "HB", "user") {
		t.Error("disk and pack resources must not collide")
	}
}
