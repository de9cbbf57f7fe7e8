// Package store persists group documents.
//
// Documents live at <root>/[<bundle>/]<yard>/<group>.json on disk. Content
// packs are zip files that overlay read-only documents using the same
// <yard>/<group>.json layout.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the extension of group documents.
const Ext = ".json"

// overridesDir holds pack-scoped enable overrides under the disk root.
const overridesDir = "packs"

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: not found")

// Source is a read-only provider of group documents.
type Source interface {
	// ID is empty for the user's disk store and the pack id otherwise.
	ID() string
	List(yard string) ([]string, error)
	Read(yard, name string) ([]byte, error)
}

// ResourceID builds the composite id used to deduplicate documents.
func ResourceID(sourceID, yard, name string) string {
	return sourceID + ":" + yard + "/" + name
}

// Disk is the writable document store.
type Disk struct {
	Root   string
	Bundle string
}

// NewDisk creates a store rooted at root. bundle may be empty.
func NewDisk(root, bundle string) *Disk {
	return &Disk{Root: root, Bundle: bundle}
}

func (d *Disk) ID() string { return "" }

func (d *Disk) dir(yard string) string {
	if d.Bundle != "" {
		return filepath.Join(d.Root, d.Bundle, yard)
	}
	return filepath.Join(d.Root, yard)
}

// Path returns the file a document is stored at.
func (d *Disk) Path(yard, name string) string {
	return filepath.Join(d.dir(yard), name+Ext)
}

// List returns the group names stored for yard, sorted.
func (d *Disk) List(yard string) ([]string, error) {
	entries, err := os.ReadDir(d.dir(yard))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", yard, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(names)
	return names, nil
}

// Read loads a document.
func (d *Disk) Read(yard, name string) ([]byte, error) {
	data, err := os.ReadFile(d.Path(yard, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, yard, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s/%s: %w", yard, name, err)
	}
	return data, nil
}

// Write replaces a document atomically (temp file + rename).
func (d *Disk) Write(yard, name string, data []byte) error {
	return writeAtomic(d.Path(yard, name), data)
}

// Remove deletes a document. Missing documents are not an error.
func (d *Disk) Remove(yard, name string) error {
	err := os.Remove(d.Path(yard, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: remove %s/%s: %w", yard, name, err)
	}
	return nil
}

// Overrides maps a pack resource (yard/name) to its user enable flag.
type Overrides map[string]bool

func (d *Disk) overridesPath(packID string) string {
	return filepath.Join(d.Root, overridesDir, packID+Ext)
}

// LoadOverrides reads the enable overrides of a pack. Missing files yield an
// empty set.
func (d *Disk) LoadOverrides(packID string) (Overrides, error) {
	data, err := os.ReadFile(d.overridesPath(packID))
	if errors.Is(err, os.ErrNotExist) {
		return Overrides{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read overrides %s: %w", packID, err)
	}
	o := Overrides{}
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("store: decode overrides %s: %w", packID, err)
	}
	return o, nil
}

// SaveOverrides writes the enable overrides of a pack.
func (d *Disk) SaveOverrides(packID string, o Overrides) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode overrides %s: %w", packID, err)
	}
	return writeAtomic(d.overridesPath(packID), data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: rename %s: %w", path, err)
	}
	return nil
}
