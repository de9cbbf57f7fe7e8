package world

import (
	"github.com/google/uuid"
)

type undoKind uint8

const (
	undoCreate undoKind = iota
	undoDelete
	undoPaint
)

// undoEntry reverts one spawner change. Entries sharing a step are undone
// together.
type undoEntry struct {
	step    uuid.UUID
	kind    undoKind
	spawner SpawnerID
	light   LightProperties // previous settings for undoPaint
}

// undoBuffer keeps the most recent steps, dropping the oldest step whole.
type undoBuffer struct {
	entries  []undoEntry
	maxSteps int
}

func newUndoBuffer(maxSteps int) *undoBuffer {
	if maxSteps <= 0 {
		maxSteps = 1
	}
	return &undoBuffer{maxSteps: maxSteps}
}

func (b *undoBuffer) push(entries ...undoEntry) {
	b.entries = append(b.entries, entries...)
	for b.Steps() > b.maxSteps {
		first := b.entries[0].step
		i := 0
		for i < len(b.entries) && b.entries[i].step == first {
			i++
		}
		b.entries = append(b.entries[:0:0], b.entries[i:]...)
	}
}

// pop removes and returns every entry of the newest step, newest first.
func (b *undoBuffer) pop() []undoEntry {
	n := len(b.entries)
	if n == 0 {
		return nil
	}
	last := b.entries[n-1].step
	i := n
	for i > 0 && b.entries[i-1].step == last {
		i--
	}
	out := make([]undoEntry, 0, n-i)
	for j := n - 1; j >= i; j-- {
		out = append(out, b.entries[j])
	}
	b.entries = b.entries[:i]
	return out
}

// Steps counts distinct steps held.
func (b *undoBuffer) Steps() int {
	steps := 0
	var prev uuid.UUID
	for i, e := range b.entries {
		if i == 0 || e.step != prev {
			steps++
			prev = e.step
		}
	}
	return steps
}
