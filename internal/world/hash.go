package world

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"

	"lightsniper/internal/scene"
)

// hashQuantum is the inverse of the position resolution hashes tolerate.
const hashQuantum = 10

// Hash fingerprints a spawner's anchor and its own spawned transform.
// Zero means "not recorded yet".
type Hash struct {
	Parent  uint64
	Spawned uint64
}

func positionHash(p mgl64.Vec3) uint64 {
	var buf [24]byte
	for i := 0; i < 3; i++ {
		q := int64(math.Round(p[i] * hashQuantum))
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(q))
	}
	return nonZero(xxhash.Sum64(buf[:]))
}

func transformHash(p mgl64.Vec3, q mgl64.Quat) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(math.Round(f*hashQuantum*100))))
		d.Write(buf[:])
	}
	for _, f := range []float64{p[0], p[1], p[2], q.V[0], q.V[1], q.V[2], q.W} {
		put(f)
	}
	return nonZero(d.Sum64())
}

// parentHash is taken in map space so it survives origin shifts.
func parentHash(g scene.Graph, parent scene.Object) uint64 {
	return positionHash(scene.MapPosition(g, parent.Position()))
}

func nonZero(h uint64) uint64 {
	if h == 0 {
		return 1
	}
	return h
}
