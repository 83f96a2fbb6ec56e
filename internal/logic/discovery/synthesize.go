package discovery

import (
	"github.com/shuttercam/shuttercam/internal/event"
)

// Policy controls the capture flag given to synthesized definitions.
type Policy struct {
	// ZeroPatternCapture applies to all-zero payloads, which buttons
	// usually send on release. Every other pattern captures.
	ZeroPatternCapture bool
}

// Known tells whether a pair is already defined.
type Known interface {
	Contains(k event.Key) bool
}

// Synthesize returns definitions for the summary entries that known does
// not contain, in summary order. known may be nil.
func Synthesize(s Summary, known Known, p Policy) []event.Definition {
	var out []event.Definition
	for _, e := range s.Entries {
		if known != nil && known.Contains(e.Key()) {
			continue
		}
		capture := true
		if event.IsZeroPattern(e.Pattern) {
			capture = p.ZeroPatternCapture
		}
		out = append(out, event.Definition{
			Characteristic: e.Characteristic,
			Pattern:        append([]byte(nil), e.Pattern...),
			Capture:        capture,
		})
	}
	return out
}
