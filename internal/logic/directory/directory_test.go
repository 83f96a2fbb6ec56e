package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/hw/ble"
)

type fakeScanner struct {
	ads []ble.Advertisement
	err error
}

func (f *fakeScanner) Scan(ctx context.Context, handle func(ble.Advertisement)) error {
	for _, a := range f.ads {
		handle(a)
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func TestScan_FilterAndDedup(t *testing.T) {
	s := &fakeScanner{ads: []ble.Advertisement{
		{Address: "aa:bb:cc:dd:ee:ff", Name: "", RSSI: -80},
		{Address: "11:22:33:44:55:66", Name: "Phone", RSSI: -40},
		{Address: "AA:BB:CC:DD:EE:FF", Name: " BBL_SHUTTER ", RSSI: -60},
		{Address: "22:22:22:22:22:22", Name: "BBL_SHUTTER_2", RSSI: -50},
	}}

	got, err := Scan(context.Background(), s, "BBL_SHUTTER", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d peripherals, want 1: %+v", len(got), got)
	}
	want := event.Peripheral{Address: "AA:BB:CC:DD:EE:FF", Name: "BBL_SHUTTER", RSSI: -60}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestScan_NoFilterKeepsOrder(t *testing.T) {
	s := &fakeScanner{ads: []ble.Advertisement{
		{Address: "01", Name: "a"},
		{Address: "02", Name: "b"},
		{Address: "01", Name: "a"},
	}}
	got, err := Scan(context.Background(), s, "", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 || got[0].Address != "01" || got[1].Address != "02" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestScan_TransportError(t *testing.T) {
	s := &fakeScanner{err: errors.New("hci down")}
	if _, err := Scan(context.Background(), s, "", time.Second); err == nil {
		t.Fatal("expected error")
	}
}

func TestScan_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Scan(ctx, &fakeScanner{}, "", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStrongest(t *testing.T) {
	if _, ok := Strongest(nil); ok {
		t.Fatal("expected false for empty list")
	}
	p, ok := Strongest([]event.Peripheral{{Address: "a", RSSI: -70}, {Address: "b", RSSI: -40}})
	if !ok || p.Address != "b" {
		t.Errorf("got %+v", p)
	}
}
