// Package event holds the value types shared by the link, catalog,
// dispatch and discovery layers.
package event

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// baseUUIDSuffix completes 16- and 32-bit Bluetooth SIG short UUIDs.
const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// Peripheral is a device found during a scan.
type Peripheral struct {
	Address        string
	Name           string
	Characteristic string // optional notify characteristic
	RSSI           int
}

// Notification is one payload pushed by the peripheral.
type Notification struct {
	Characteristic string
	Data           []byte
	At             time.Time
}

// Hex returns the payload as upper-case hex.
func (n Notification) Hex() string {
	return FormatPattern(n.Data)
}

// Key identifies a (characteristic, pattern) pair.
func (n Notification) Key() Key {
	return NewKey(n.Characteristic, n.Data)
}

// Definition names a payload pattern on a characteristic and says whether it
// fires a capture.
type Definition struct {
	Characteristic string
	Pattern        []byte
	Name           string
	Capture        bool
}

// Label is the symbolic name, or the hex pattern when unnamed.
func (d Definition) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return FormatPattern(d.Pattern)
}

// Key identifies the definition in a catalog.
func (d Definition) Key() Key {
	return NewKey(d.Characteristic, d.Pattern)
}

// Equal reports whether two definitions are identical.
func (d Definition) Equal(o Definition) bool {
	return d.Key() == o.Key() && d.Name == o.Name && d.Capture == o.Capture
}

// Key is a comparable (characteristic, pattern) pair usable as a map key.
type Key struct {
	Characteristic string
	Pattern        string // raw bytes as string
}

// NewKey canonicalises the characteristic and copies the pattern.
func NewKey(characteristic string, pattern []byte) Key {
	return Key{Characteristic: CanonicalUUID(characteristic), Pattern: string(pattern)}
}

// Bytes returns the pattern bytes.
func (k Key) Bytes() []byte {
	return []byte(k.Pattern)
}

func (k Key) String() string {
	return k.Characteristic + "/" + FormatPattern([]byte(k.Pattern))
}

// ParsePattern decodes a hex pattern such as "4000" or "40 00".
func ParsePattern(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex pattern %q: %w", s, err)
	}
	return b, nil
}

// FormatPattern encodes a payload as upper-case hex.
func FormatPattern(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// IsZeroPattern reports whether every byte of b is zero.
func IsZeroPattern(b []byte) bool {
	return len(b) > 0 && len(bytes.Trim(b, "\x00")) == 0
}

// CanonicalUUID normalises a characteristic identifier to lower-case dashed
// 128-bit form. 16-bit and 32-bit short forms are expanded with the Bluetooth
// base UUID. Anything unrecognised is returned lower-cased and trimmed.
func CanonicalUUID(s string) string {
	u := strings.ToLower(strings.TrimSpace(s))
	plain := strings.ReplaceAll(u, "-", "")
	if _, err := hex.DecodeString(plain); err != nil {
		return u
	}
	switch len(plain) {
	case 4:
		return "0000" + plain + baseUUIDSuffix
	case 8:
		return plain + baseUUIDSuffix
	case 32:
		return plain[0:8] + "-" + plain[8:12] + "-" + plain[12:16] + "-" + plain[16:20] + "-" + plain[20:32]
	default:
		return u
	}
}
