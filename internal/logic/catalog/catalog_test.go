package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
)

const report = "00002a4d-0000-1000-8000-00805f9b34fb"

func defaults() []event.Definition {
	return []event.Definition{
		{Characteristic: "2a4d", Pattern: []byte{0x40, 0x00}, Name: "manual_button", Capture: true},
		{Characteristic: "2A4D", Pattern: []byte{0x80, 0x00}, Name: "bambu_studio", Capture: true},
		{Characteristic: report, Pattern: []byte{0x00, 0x00}, Name: "release", Capture: false},
	}
}

func notif(char string, data ...byte) event.Notification {
	return event.Notification{Characteristic: char, Data: data, At: time.Unix(0, 0)}
}

func TestNew_DuplicatePattern(t *testing.T) {
	defs := append(defaults(), event.Definition{Characteristic: "00002A4D-0000-1000-8000-00805F9B34FB", Pattern: []byte{0x40, 0x00}})
	_, err := New(defs)
	if !errors.Is(err, ErrDuplicatePattern) {
		t.Fatalf("expected ErrDuplicatePattern, got %v", err)
	}
}

func TestNew_SamePatternOtherCharacteristic(t *testing.T) {
	defs := append(defaults(), event.Definition{Characteristic: "2a19", Pattern: []byte{0x40, 0x00}})
	c, err := New(defs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
}

func TestNew_EmptyPattern(t *testing.T) {
	if _, err := New([]event.Definition{{Characteristic: report}}); err == nil {
		t.Fatal("expected error for empty pattern")
	}
}

func TestClassify(t *testing.T) {
	c, err := New(defaults())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name    string
		n       event.Notification
		want    string
		known   bool
		capture bool
	}{
		{"press short uuid", notif("2a4d", 0x40, 0x00), "manual_button", true, true},
		{"press upper case", notif("00002A4D-0000-1000-8000-00805F9B34FB", 0x40, 0x00), "manual_button", true, true},
		{"release", notif(report, 0x00, 0x00), "release", true, false},
		{"prefix is not a match", notif(report, 0x40), "", false, false},
		{"longer is not a match", notif(report, 0x40, 0x00, 0x00), "", false, false},
		{"other characteristic", notif("2a19", 0x40, 0x00), "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := c.Classify(tt.n)
			if ok != tt.known {
				t.Fatalf("known = %v, want %v", ok, tt.known)
			}
			if def.Name != tt.want || def.Capture != tt.capture {
				t.Errorf("got %q capture=%v, want %q capture=%v", def.Name, def.Capture, tt.want, tt.capture)
			}
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c, _ := New(defaults())
	n := notif(report, 0x80, 0x00)
	first, ok1 := c.Classify(n)
	for i := 0; i < 10; i++ {
		got, ok := c.Classify(n)
		if ok != ok1 || !got.Equal(first) {
			t.Fatalf("classification changed on call %d: %+v vs %+v", i, got, first)
		}
	}
}

func TestCatalog_DefinitionsAreCopies(t *testing.T) {
	defs := defaults()
	c, _ := New(defs)
	defs[0].Pattern[0] = 0xff

	if _, ok := c.Classify(notif(report, 0x40, 0x00)); !ok {
		t.Fatal("catalog must not alias caller patterns")
	}
	got := c.Definitions()
	got[0].Name = "changed"
	if d, _ := c.Classify(notif(report, 0x40, 0x00)); d.Name != "manual_button" {
		t.Errorf("Definitions leaked internal state: %q", d.Name)
	}
	if c.Captures() != 2 {
		t.Errorf("Captures = %d, want 2", c.Captures())
	}
}

func TestAccumulator(t *testing.T) {
	a := NewAccumulator()
	base := time.Unix(1000, 0)
	for _, off := range []int{4, 1, 9} {
		a.Add(event.Notification{Characteristic: report, Data: []byte{0xff, 0x00}, At: base.Add(time.Duration(off) * time.Second)})
	}
	a.Add(event.Notification{Characteristic: report, Data: []byte{0x01}, At: base})

	snap := a.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2", len(snap))
	}
	ff := snap[0]
	if ff.Count != 3 {
		t.Errorf("count = %d, want 3", ff.Count)
	}
	if !ff.FirstSeen.Equal(base.Add(time.Second)) || !ff.LastSeen.Equal(base.Add(9*time.Second)) {
		t.Errorf("first=%v last=%v", ff.FirstSeen, ff.LastSeen)
	}
	if a.Len() != 2 {
		t.Errorf("Len = %d", a.Len())
	}
}
