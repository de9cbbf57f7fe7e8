package store

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// PackExt is the extension of content pack archives.
const PackExt = ".zip"

// Pack is a read-only zip content pack. Entries are addressed by the same
// relative paths as the disk store.
type Pack struct {
	id    string
	path  string
	rc    *zip.ReadCloser
	files map[string]*zip.File
}

// OpenPack opens a zip content pack. The pack id is the file name without
// extension.
func OpenPack(file string) (*Pack, error) {
	rc, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("store: open pack %s: %w", file, err)
	}
	p := &Pack{
		id:    strings.TrimSuffix(filepath.Base(file), PackExt),
		path:  file,
		rc:    rc,
		files: make(map[string]*zip.File, len(rc.File)),
	}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p.files[path.Clean(strings.TrimPrefix(f.Name, "/"))] = f
	}
	return p, nil
}

func (p *Pack) ID() string { return p.id }

// List returns the group documents the pack carries for yard.
func (p *Pack) List(yard string) ([]string, error) {
	prefix := yard + "/"
	var names []string
	for name := range p.files {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, Ext) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix), Ext)
		if strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

// Read returns a group document.
func (p *Pack) Read(yard, name string) ([]byte, error) {
	return p.Open(yard + "/" + name + Ext)
}

// Open returns any file of the pack, e.g. a mesh bundle.
func (p *Pack) Open(rel string) ([]byte, error) {
	f, ok := p.files[path.Clean(rel)]
	if !ok {
		return nil, fmt.Errorf("%w: %s!%s", ErrNotFound, p.id, rel)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("store: open %s!%s: %w", p.id, rel, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read %s!%s: %w", p.id, rel, err)
	}
	return data, nil
}

// Close releases the archive.
func (p *Pack) Close() error {
	return p.rc.Close()
}

// Packs is the set of mounted content packs.
type Packs struct {
	list []*Pack
}

// MountDir opens every pack archive in dir. A missing dir mounts nothing.
// Broken archives are logged and skipped.
func MountDir(dir string) (*Packs, error) {
	ps := &Packs{}
	if dir == "" {
		return ps, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return ps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan packs %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), PackExt) {
			continue
		}
		p, err := OpenPack(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("⚠️ Skipping content pack %s: %v", e.Name(), err)
			continue
		}
		ps.Mount(p)
	}
	return ps, nil
}

// Mount adds an opened pack.
func (ps *Packs) Mount(p *Pack) {
	ps.list = append(ps.list, p)
	log.Printf("📦 Mounted content pack %s", p.id)
}

// All returns the mounted packs in mount order.
func (ps *Packs) All() []*Pack {
	if ps == nil {
		return nil
	}
	return ps.list
}

// Get returns a mounted pack by id.
func (ps *Packs) Get(id string) *Pack {
	for _, p := range ps.All() {
		if p.id == id {
			return p
		}
	}
	return nil
}

// Close unmounts every pack.
func (ps *Packs) Close() error {
	if ps == nil {
		return nil
	}
	var errs []error
	for _, p := range ps.list {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ps.list = nil
	return errors.Join(errs...)
}
