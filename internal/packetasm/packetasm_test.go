package packetasm_test

import (
	"testing"

	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/packetasm"
	"github.com/stretchr/testify/assert"
)

func TestAssembleReturnsNilForDisconnectedAndBTSimple(t *testing.T) {
	assert.Nil(t, packetasm.Assemble(packetasm.Request{Transport: engine.Disconnected}))
	assert.Nil(t, packetasm.Assemble(packetasm.Request{Transport: engine.BluetoothSimple}))
}

func TestAssembleUSBReportShape(t *testing.T) {
	out := packetasm.Assemble(packetasm.Request{
		Transport: engine.USB,
		RGB:       engine.RGB{R: 255, G: 0, B: 0, Brightness: 255},
		Rumble:    packetasm.RumbleState{Small: 10, Large: 20},
	})
	assert.Len(t, out, 48)
	assert.Equal(t, byte(0x02), out[0])
	assert.Equal(t, byte(10), out[4])
	assert.Equal(t, byte(20), out[5])
}

func TestAssembleBTEnhancedAppendsCRCTrailer(t *testing.T) {
	out := packetasm.Assemble(packetasm.Request{Transport: engine.BluetoothEnhanced})
	assert.Len(t, out, 78)
	assert.Equal(t, byte(0x31), out[0])
	// The trailer should not be all zero for a non-trivial payload.
	trailerAllZero := out[74] == 0 && out[75] == 0 && out[76] == 0 && out[77] == 0
	assert.False(t, trailerAllZero)
}

func TestRGBBrightnessScalesChannelsLinearly(t *testing.T) {
	full := packetasm.Assemble(packetasm.Request{
		Transport: engine.USB,
		RGB:       engine.RGB{R: 200, G: 100, B: 50, Brightness: 255},
	})
	half := packetasm.Assemble(packetasm.Request{
		Transport: engine.USB,
		RGB:       engine.RGB{R: 200, G: 100, B: 50, Brightness: 127},
	})
	assert.Equal(t, byte(200), full[40])
	assert.Less(t, half[40], full[40])
}

func TestBatteryMaskThresholds(t *testing.T) {
	cases := map[int]byte{
		95: 0x1F,
		90: 0x1F,
		80: 0x0F,
		60: 0x07,
		40: 0x03,
		20: 0x01,
		5:  0x00,
	}
	for percent, want := range cases {
		assert.Equal(t, want, packetasm.BatteryMask(percent), "percent=%d", percent)
	}
}

func TestPLEDMaskFixedWhenBatteryDisplayOff(t *testing.T) {
	out := packetasm.Assemble(packetasm.Request{
		Transport:      engine.USB,
		ShowBatteryLED: false,
		BatteryPercent: 95,
	})
	assert.Equal(t, byte(0x04), out[39])
}

func TestAdaptiveTriggerOffIsAllZero(t *testing.T) {
	out := packetasm.Assemble(packetasm.Request{
		Transport: engine.USB,
		TriggerR2: engine.AdaptiveTrigger{Mode: engine.TriggerOff},
	})
	for i := 6; i < 17; i++ {
		assert.Equal(t, byte(0), out[i], "byte %d", i)
	}
}

func TestAdaptiveTriggerRigidEncodesStartAndForce(t *testing.T) {
	out := packetasm.Assemble(packetasm.Request{
		Transport: engine.USB,
		TriggerR2: engine.AdaptiveTrigger{Mode: engine.TriggerRigid, Start: 50, Force: 200},
	})
	assert.Equal(t, byte(0x01), out[6])
	assert.Equal(t, byte(50), out[7])
	assert.Equal(t, byte(200), out[8])
}
