package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
)

// groupDocument is the on-disk JSON form of a group.
type groupDocument struct {
	Version     int             `json:"version"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	Lights      []spawnerRecord `json:"lights"`
	Meshes      []spawnerRecord `json:"meshes"`
	Decorations []spawnerRecord `json:"decorations"`
}

type spawnerRecord struct {
	Seq          int             `json:"id"`
	Parent       string          `json:"parent,omitempty"`
	Position     [3]float64      `json:"position"`
	Rotation     *[4]float64     `json:"rotation,omitempty"` // x, y, z, w
	Euler        *[3]float64     `json:"euler,omitempty"`    // degrees, version 1 only
	Hash         json.RawMessage `json:"hash,omitempty"`     // number before version 3
	CullDistance float64         `json:"cullDistance,omitempty"`

	Light      *LightProperties      `json:"light,omitempty"`
	Mesh       *MeshProperties       `json:"mesh,omitempty"`
	Decoration *DecorationProperties `json:"decoration,omitempty"`
}

// hashRecord stores hashes as hex strings so JSON numbers never lose bits.
type hashRecord struct {
	Parent  string `json:"parent,omitempty"`
	Spawned string `json:"spawned,omitempty"`
}

func formatHash(h uint64) string {
	if h == 0 {
		return ""
	}
	return strconv.FormatUint(h, 16)
}

func parseHash(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

// decodeHash accepts the split object form and the legacy combined number.
func decodeHash(raw json.RawMessage) (h Hash, legacy uint64, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Hash{}, 0, nil
	}
	if raw[0] == '{' {
		var rec hashRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Hash{}, 0, err
		}
		if h.Parent, err = parseHash(rec.Parent); err != nil {
			return Hash{}, 0, err
		}
		if h.Spawned, err = parseHash(rec.Spawned); err != nil {
			return Hash{}, 0, err
		}
		return h, 0, nil
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Hash{}, 0, fmt.Errorf("legacy hash: %w", err)
	}
	return Hash{}, legacy, nil
}

// record serializes a spawner. Legacy fields survive until upgraded.
func (s *Spawner) record() spawnerRecord {
	rec := spawnerRecord{
		Seq:          s.seq,
		Parent:       s.ParentPath,
		Position:     [3]float64(s.Position),
		CullDistance: s.CullDistance,
	}
	if e := s.legacy.euler; e != nil {
		v := [3]float64(*e)
		rec.Euler = &v
	} else {
		rec.Rotation = &[4]float64{s.Rotation.V[0], s.Rotation.V[1], s.Rotation.V[2], s.Rotation.W}
	}
	if s.legacy.hash != 0 && s.Hash.Parent == 0 {
		rec.Hash, _ = json.Marshal(s.legacy.hash)
	} else if s.Hash != (Hash{}) {
		rec.Hash, _ = json.Marshal(hashRecord{Parent: formatHash(s.Hash.Parent), Spawned: formatHash(s.Hash.Spawned)})
	}
	switch b := s.behavior.(type) {
	case *lightBehavior:
		p := b.props
		rec.Light = &p
	case *meshBehavior:
		p := b.props
		rec.Mesh = &p
	case *decorationBehavior:
		p := b.props
		rec.Decoration = &p
	}
	return rec
}

// spawnerFromRecord rebuilds a spawner of kind from a document of version.
func (c *Controller) spawnerFromRecord(kind Kind, rec spawnerRecord, version int) (*Spawner, error) {
	var b behavior
	var err error
	switch kind {
	case KindLight:
		if rec.Light == nil {
			return nil, fmt.Errorf("light %d has no properties", rec.Seq)
		}
		b, err = newLightBehavior(*rec.Light, c.duty, c.rng)
	case KindMesh:
		if rec.Mesh == nil {
			return nil, fmt.Errorf("mesh %d has no properties", rec.Seq)
		}
		if err = rec.Mesh.Validate(); err == nil {
			b = &meshBehavior{props: *rec.Mesh}
		}
	case KindDecoration:
		if rec.Decoration == nil {
			return nil, fmt.Errorf("decoration %d has no properties", rec.Seq)
		}
		b, err = newDecorationBehavior(*rec.Decoration, c.duty, c.rng)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", kind, rec.Seq, err)
	}

	rot := mgl64.QuatIdent()
	if r := rec.Rotation; r != nil {
		rot = mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
	}
	s := newSpawner(b, rec.Parent, mgl64.Vec3(rec.Position), rot)
	s.seq = rec.Seq
	s.CullDistance = rec.CullDistance
	if rec.Euler != nil {
		e := mgl64.Vec3(*rec.Euler)
		s.legacy.euler = &e
	}
	if s.Hash, s.legacy.hash, err = decodeHash(rec.Hash); err != nil {
		return nil, fmt.Errorf("%s %d: %w", kind, rec.Seq, err)
	}
	if version < BuildVersion {
		s.upgrades = pendingUpgrades(version)
	}
	return s, nil
}

func decodeDocument(data []byte) (groupDocument, error) {
	var doc groupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return groupDocument{}, err
	}
	if doc.Version <= 0 {
		doc.Version = 1
	}
	if doc.Version > BuildVersion {
		return groupDocument{}, fmt.Errorf("document version %d is newer than %d", doc.Version, BuildVersion)
	}
	return doc, nil
}
