// Package directory finds shutter buttons by advertised name.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/hw/ble"
)

// Scanner is the part of the transport the directory needs.
type Scanner interface {
	Scan(ctx context.Context, handle func(ble.Advertisement)) error
}

// Scan listens for advertisements for timeout and returns one peripheral
// per address, in order of first sighting. A non-empty nameFilter keeps only
// devices whose trimmed name equals it exactly. The strongest RSSI seen is
// kept, and a name heard later fills a missing one.
func Scan(ctx context.Context, s Scanner, nameFilter string, timeout time.Duration) ([]event.Peripheral, error) {
	debug.Verbose("BLE scan start: timeout=%s filter=%q", timeout, nameFilter)

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		order []string
		seen  = make(map[string]*event.Peripheral)
	)
	err := s.Scan(scanCtx, func(a ble.Advertisement) {
		addr := strings.ToUpper(strings.TrimSpace(a.Address))
		if addr == "" {
			return
		}
		name := strings.TrimSpace(a.Name)

		mu.Lock()
		defer mu.Unlock()
		p, ok := seen[addr]
		if !ok {
			p = &event.Peripheral{Address: addr, Name: name, RSSI: a.RSSI}
			seen[addr] = p
			order = append(order, addr)
			debug.Trace("BLE adv %s name=%q rssi=%d", addr, name, a.RSSI)
			return
		}
		if p.Name == "" {
			p.Name = name
		}
		if a.RSSI > p.RSSI {
			p.RSSI = a.RSSI
		}
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]event.Peripheral, 0, len(order))
	for _, addr := range order {
		p := seen[addr]
		if nameFilter != "" && p.Name != nameFilter {
			continue
		}
		out = append(out, *p)
	}
	debug.Verbose("BLE scan done: %d device(s) found", len(out))
	return out, nil
}

// Strongest returns the peripheral with the best signal, or false if none.
func Strongest(ps []event.Peripheral) (event.Peripheral, bool) {
	if len(ps) == 0 {
		return event.Peripheral{}, false
	}
	sorted := append([]event.Peripheral(nil), ps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RSSI > sorted[j].RSSI })
	return sorted[0], true
}
