package syntheticinput

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMouseButtonBitMapping(t *testing.T) {
	assert.Equal(t, uint8(0x01), mouseButtonBit(0)) // Left
	assert.Equal(t, uint8(0x04), mouseButtonBit(1)) // Middle
	assert.Equal(t, uint8(0x02), mouseButtonBit(2)) // Right
	assert.Equal(t, uint8(0), mouseButtonBit(99))
}

func TestClampInt16(t *testing.T) {
	assert.Equal(t, 100, clampInt16(100))
	assert.Equal(t, 32767, clampInt16(100000))
	assert.Equal(t, -32768, clampInt16(-100000))
}
