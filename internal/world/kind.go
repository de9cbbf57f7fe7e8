package world

import (
	"strings"

	"lightsniper/internal/scene"
)

// Kind is the spawner subtype.
type Kind uint8

const (
	KindLight Kind = iota
	KindMesh
	KindDecoration
)

// Kinds in tick order: meshes first so lights can attach to them.
var Kinds = []Kind{KindMesh, KindLight, KindDecoration}

func (k Kind) String() string {
	switch k {
	case KindLight:
		return "Light"
	case KindMesh:
		return "Mesh"
	case KindDecoration:
		return "Decoration"
	default:
		return "Unknown"
	}
}

func (k Kind) sceneKind() scene.Kind {
	switch k {
	case KindLight:
		return scene.KindLight
	case KindMesh:
		return scene.KindMesh
	default:
		return scene.KindDecoration
	}
}

// ParseKind accepts "light", "mesh" or "decoration" in any case.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "light":
		return KindLight, true
	case "mesh":
		return KindMesh, true
	case "decoration":
		return KindDecoration, true
	}
	return 0, false
}
