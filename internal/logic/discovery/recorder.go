// Package discovery records every signal a peripheral emits so unknown
// payloads can be identified and added to a profile.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
)

// Entry is the frequency record for one (characteristic, pattern) pair.
type Entry struct {
	Characteristic string
	Pattern        []byte
	Count          int
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Hex returns the pattern as upper-case hex.
func (e Entry) Hex() string { return event.FormatPattern(e.Pattern) }

// Key returns the entry's catalog key.
func (e Entry) Key() event.Key { return event.NewKey(e.Characteristic, e.Pattern) }

// Summary is the result of a discovery session.
type Summary struct {
	Entries []Entry // by characteristic, then descending count
	Total   int
	Start   time.Time
	End     time.Time
}

// Counts maps each observed pair to its count.
func (s Summary) Counts() map[event.Key]int {
	out := make(map[event.Key]int, len(s.Entries))
	for _, e := range s.Entries {
		out[e.Key()] = e.Count
	}
	return out
}

// Characteristics lists the characteristics that produced signals, sorted.
func (s Summary) Characteristics() []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range s.Entries {
		if !seen[e.Characteristic] {
			seen[e.Characteristic] = true
			out = append(out, e.Characteristic)
		}
	}
	sort.Strings(out)
	return out
}

// Recorder counts notifications. It is safe for concurrent use.
type Recorder struct {
	// OnObserve, if set, is called for each notification after counting.
	OnObserve func(event.Notification)

	mu      sync.Mutex
	entries map[event.Key]*Entry
	total   int
	start   time.Time
	now     func() time.Time
}

// NewRecorder returns an empty recorder whose session starts now.
func NewRecorder() *Recorder {
	return &Recorder{
		entries: make(map[event.Key]*Entry),
		start:   time.Now(),
		now:     time.Now,
	}
}

// Observe counts one notification.
func (r *Recorder) Observe(n event.Notification) {
	k := n.Key()
	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		e = &Entry{
			Characteristic: k.Characteristic,
			Pattern:        k.Bytes(),
			FirstSeen:      n.At,
			LastSeen:       n.At,
		}
		r.entries[k] = e
	}
	e.Count++
	if n.At.Before(e.FirstSeen) {
		e.FirstSeen = n.At
	}
	if n.At.After(e.LastSeen) {
		e.LastSeen = n.At
	}
	r.total++
	r.mu.Unlock()

	if r.OnObserve != nil {
		r.OnObserve(n)
	}
}

// Run observes stream for duration (0 means until ctx is done or the stream
// closes) and returns the summary. A cancelled session still returns what
// was recorded.
func (r *Recorder) Run(ctx context.Context, stream <-chan event.Notification, duration time.Duration) Summary {
	var deadline <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		deadline = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return r.Summary()
		case <-deadline:
			return r.Summary()
		case n, ok := <-stream:
			if !ok {
				return r.Summary()
			}
			r.Observe(n)
		}
	}
}

// Summary snapshots the counts.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		Entries: make([]Entry, 0, len(r.entries)),
		Total:   r.total,
		Start:   r.start,
		End:     r.now(),
	}
	for _, e := range r.entries {
		c := *e
		c.Pattern = append([]byte(nil), e.Pattern...)
		s.Entries = append(s.Entries, c)
	}
	sort.Slice(s.Entries, func(i, j int) bool {
		a, b := s.Entries[i], s.Entries[j]
		if a.Characteristic != b.Characteristic {
			return a.Characteristic < b.Characteristic
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Hex() < b.Hex()
	})
	return s
}
