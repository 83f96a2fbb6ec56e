package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalUUID(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"short_16bit", "2A4D", "00002a4d-0000-1000-8000-00805f9b34fb"},
		{"short_32bit", "00002a4d", "00002a4d-0000-1000-8000-00805f9b34fb"},
		{"dashed_upper", "00002A4D-0000-1000-8000-00805F9B34FB", "00002a4d-0000-1000-8000-00805f9b34fb"},
		{"plain_128", "6e400003b5a3f393e0a9e50e24dcca9e", "6e400003-b5a3-f393-e0a9-e50e24dcca9e"},
		{"garbage", "  Not-A-UUID ", "not-a-uuid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalUUID(tc.in))
		})
	}
}

func TestParsePattern(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"4000", []byte{0x40, 0x00}},
		{"40 00", []byte{0x40, 0x00}},
		{"0xff00", []byte{0xff, 0x00}},
		{"de:ad", []byte{0xde, 0xad}},
	}
	for _, tc := range cases {
		got, err := ParsePattern(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestParsePattern_Invalid(t *testing.T) {
	for _, in := range []string{"", "zz", "400"} {
		_, err := ParsePattern(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestFormatPattern_UpperCase(t *testing.T) {
	assert.Equal(t, "FF00", FormatPattern([]byte{0xff, 0x00}))
}

func TestIsZeroPattern(t *testing.T) {
	assert.True(t, IsZeroPattern([]byte{0, 0}))
	assert.False(t, IsZeroPattern([]byte{0x40, 0}))
	assert.False(t, IsZeroPattern(nil))
}

func TestDefinition_Label(t *testing.T) {
	named := Definition{Pattern: []byte{0x40, 0}, Name: "manual_button"}
	unnamed := Definition{Pattern: []byte{0x80, 0}}

	assert.Equal(t, "manual_button", named.Label())
	assert.Equal(t, "8000", unnamed.Label())
}

func TestKey_CanonicalisesCharacteristic(t *testing.T) {
	n := Notification{Characteristic: "2A4D", Data: []byte{0x40, 0}, At: time.Now()}
	d := Definition{Characteristic: "00002A4D-0000-1000-8000-00805F9B34FB", Pattern: []byte{0x40, 0}}

	assert.Equal(t, d.Key(), n.Key())
	assert.Equal(t, "00002a4d-0000-1000-8000-00805f9b34fb/4000", n.Key().String())
}

func TestSinks_FanOut(t *testing.T) {
	var got []string
	a := SinkFunc(func(a Activity) { got = append(got, "a:"+a.Kind) })
	b := SinkFunc(func(a Activity) { got = append(got, "b:"+a.Kind) })

	Sinks{a, nil, b}.Publish(Activity{Kind: KindDispatched})

	assert.Equal(t, []string{"a:dispatched", "b:dispatched"}, got)
}
