package pup

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
)

// Type is a committed layout. It owns the layout tree and the metadata derived
// from it; routines are selected once at commit.
type Type struct {
	node *layout.Node
	key  dispatch.Key

	routines [2]Routine
	reasons  [2]error

	mu       sync.Mutex
	md       *metadata.Metadata
	resident Resident
	freed    bool
}

// Node returns the committed layout.
func (t *Type) Node() *layout.Node { return t.node }

// Key returns the specialization key computed at commit.
func (t *Type) Key() dispatch.Key { return t.key }

// Routine returns the routine selected for dir, or nil when the layout is
// unspecialized in that direction.
func (t *Type) Routine(dir offset.Direction) Routine { return t.routines[dir] }

// Specialized reports whether a routine exists for dir.
func (t *Type) Specialized(dir offset.Direction) bool { return t.routines[dir] != nil }

// Reason explains why dir is unspecialized. It is nil for specialized directions.
func (t *Type) Reason(dir offset.Direction) error { return t.reasons[dir] }

// Metadata returns the metadata snapshot, building it on first call.
func (t *Type) Metadata() (*metadata.Metadata, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.buildLocked(); err != nil {
		return nil, err
	}
	return t.md, nil
}

func (t *Type) buildLocked() error {
	if t.freed {
		return fmt.Errorf("%w: %s", errFreed, t.key)
	}
	if t.md != nil {
		return nil
	}
	md, err := metadata.Build(t.node)
	if err != nil {
		return err
	}
	t.md = md
	return nil
}

// residentOn returns the metadata and its device residency, creating both on
// first use.
func (t *Type) residentOn(dev Device) (*metadata.Metadata, Resident, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.buildLocked(); err != nil {
		return nil, nil, err
	}
	if t.resident == nil {
		r, err := dev.Upload(t.md)
		if err != nil {
			return nil, nil, err
		}
		t.resident = r
		Logger().Debug("metadata resident",
			zap.String("type", t.key.String()),
			zap.Int("levels", len(t.md.Levels)),
			zap.Int("pool", len(t.md.Pool)))
	}
	return t.md, t.resident, nil
}

func (t *Type) free() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resident != nil {
		t.resident.Release()
		t.resident = nil
	}
	t.md = nil
	t.freed = true
}
