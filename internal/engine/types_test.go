package engine_test

import (
	"testing"

	"github.com/hidbridge/padlink/internal/engine"
	"github.com/stretchr/testify/assert"
)

func TestSourceTextRoundTrip(t *testing.T) {
	for _, src := range engine.AllSources {
		text, err := src.MarshalText()
		assert.NoError(t, err)
		assert.NotEmpty(t, text)

		var got engine.Source
		assert.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, src, got)
	}
}

func TestSourceUnmarshalTextRejectsUnknownName(t *testing.T) {
	var s engine.Source
	err := s.UnmarshalText([]byte("NotARealSource"))
	assert.Error(t, err)
}

func TestSourceMarshalTextRejectsUnknownValue(t *testing.T) {
	_, err := engine.Source(9999).MarshalText()
	assert.Error(t, err)
}

func TestDefaultMappingHasExactlyOneEntryPerSource(t *testing.T) {
	m := engine.DefaultMapping()
	assert.Len(t, m, len(engine.AllSources))
	for _, src := range engine.AllSources {
		entry, ok := m[src]
		assert.True(t, ok, "missing mapping for %s", src)
		assert.Equal(t, src, entry.Source)
	}
}

func TestDefaultMappingButtonsTargetXboxBits(t *testing.T) {
	m := engine.DefaultMapping()
	cross := m[engine.SourceCross]
	assert.Len(t, cross.Targets, 1)
	assert.Equal(t, engine.TargetXboxButton, cross.Targets[0].Kind)
	assert.Equal(t, uint16(0x1000), cross.Targets[0].XboxButtonBit)
}

func TestDefaultMappingLeavesMuteAndTouchpadUnmapped(t *testing.T) {
	m := engine.DefaultMapping()
	assert.Empty(t, m[engine.SourceMute].Targets)
	assert.Empty(t, m[engine.SourceTouchpad].Targets)
	assert.Empty(t, m[engine.SourceTouchpadLeft].Targets)
	assert.Empty(t, m[engine.SourceTouchpadRight].Targets)
}

func TestTransportStringNamesEveryVariant(t *testing.T) {
	cases := map[engine.Transport]string{
		engine.Disconnected:       "Disconnected",
		engine.USB:                "USB",
		engine.BluetoothSimple:    "BluetoothSimple",
		engine.BluetoothEnhanced:  "BluetoothEnhanced",
	}
	for transport, want := range cases {
		assert.Equal(t, want, transport.String())
	}
}
