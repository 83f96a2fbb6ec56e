// Package catalog maps raw notification payloads to named trigger events.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
)

// ErrDuplicatePattern is returned when two definitions share a
// (characteristic, pattern) pair.
var ErrDuplicatePattern = errors.New("duplicate event pattern")

// Catalog is an immutable set of definitions loaded at session start.
type Catalog struct {
	defs  []event.Definition
	index map[event.Key]int
}

// New builds a catalog. Characteristics are canonicalised; duplicates fail.
func New(defs []event.Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]event.Definition, 0, len(defs)),
		index: make(map[event.Key]int, len(defs)),
	}
	for _, d := range defs {
		if len(d.Pattern) == 0 {
			return nil, fmt.Errorf("event %q: empty pattern", d.Label())
		}
		d.Characteristic = event.CanonicalUUID(d.Characteristic)
		d.Pattern = append([]byte(nil), d.Pattern...)
		k := d.Key()
		if _, dup := c.index[k]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePattern, k)
		}
		c.index[k] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Classify returns the definition matching n exactly. false means the
// notification is unknown, which is not an error.
func (c *Catalog) Classify(n event.Notification) (event.Definition, bool) {
	if c == nil {
		return event.Definition{}, false
	}
	i, ok := c.index[n.Key()]
	if !ok {
		return event.Definition{}, false
	}
	return c.defs[i], true
}

// Contains reports whether the pair is defined.
func (c *Catalog) Contains(k event.Key) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[k]
	return ok
}

// Definitions returns a copy of the definitions in load order.
func (c *Catalog) Definitions() []event.Definition {
	if c == nil {
		return nil
	}
	return append([]event.Definition(nil), c.defs...)
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// Captures returns how many definitions fire a capture.
func (c *Catalog) Captures() int {
	n := 0
	for _, d := range c.Definitions() {
		if d.Capture {
			n++
		}
	}
	return n
}

// Unseen is a pattern observed during a session without a definition.
type Unseen struct {
	Key       event.Key
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Accumulator collects unseen patterns for optional persistence at the end
// of a session. It is safe for concurrent use.
type Accumulator struct {
	mu   sync.Mutex
	seen map[event.Key]*Unseen
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[event.Key]*Unseen)}
}

// Add records an unknown notification.
func (a *Accumulator) Add(n event.Notification) {
	k := n.Key()
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.seen[k]
	if !ok {
		a.seen[k] = &Unseen{Key: k, Count: 1, FirstSeen: n.At, LastSeen: n.At}
		return
	}
	u.Count++
	if n.At.Before(u.FirstSeen) {
		u.FirstSeen = n.At
	}
	if n.At.After(u.LastSeen) {
		u.LastSeen = n.At
	}
}

// Len returns the number of distinct unseen patterns.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Snapshot returns the unseen patterns ordered by characteristic then by
// descending count.
func (a *Accumulator) Snapshot() []Unseen {
	a.mu.Lock()
	out := make([]Unseen, 0, len(a.seen))
	for _, u := range a.seen {
		out = append(out, *u)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Characteristic != out[j].Key.Characteristic {
			return out[i].Key.Characteristic < out[j].Key.Characteristic
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key.Pattern < out[j].Key.Pattern
	})
	return out
}
