package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	require.NoError(t, err)
	_, ok := d.(*MockDriver)
	assert.True(t, ok)
}

func TestMockDriver_WriteRead(t *testing.T) {
	m := NewMockDriver()
	require.NoError(t, m.SetupPin(24, Output))
	require.NoError(t, m.WritePin(24, High))

	l, err := m.ReadPin(24)
	require.NoError(t, err)
	assert.Equal(t, High, l)
	assert.Equal(t, 1, m.Writes())
}

func TestMockDriver_WriteToInputFails(t *testing.T) {
	m := NewMockDriver()
	require.NoError(t, m.SetupPin(5, Input))
	assert.Error(t, m.WritePin(5, Low))
}

func TestLevelAndModeStrings(t *testing.T) {
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "LOW", Low.String())
	assert.Equal(t, "output", Output.String())
	assert.Equal(t, "mode(7)", PinMode(7).String())
}
