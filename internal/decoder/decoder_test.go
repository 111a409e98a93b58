package decoder_test

import (
	"testing"

	"github.com/hidbridge/padlink/internal/decoder"
	"github.com/hidbridge/padlink/internal/engine"
	"github.com/stretchr/testify/assert"
)

func usbReport() []byte {
	r := make([]byte, 40)
	r[0] = decoder.ReportIDUSBInput
	r[1] = 128 // LX centered
	r[2] = 128 // LY centered
	r[3] = 128 // RX centered
	r[4] = 128 // RY centered
	r[5] = 0x08 // hat neutral, no face buttons
	r[6] = 0x00 // shoulders
	r[7] = 0x00 // ps/touch
	r[8] = 0    // L2 analog
	r[9] = 0    // R2 analog
	r[30] = 8   // battery level 8/11, not charging
	return r
}

func TestDecodeRejectsEmptyReport(t *testing.T) {
	var dst engine.GamepadState
	err := decoder.Decode(&dst, nil, engine.USB, 0, 0)
	assert.Error(t, err)
}

func TestDecodeRejectsWrongReportID(t *testing.T) {
	var dst engine.GamepadState
	raw := []byte{0x99, 0, 0, 0, 0, 0, 0, 0}
	err := decoder.Decode(&dst, raw, engine.USB, 0, 0)
	assert.Error(t, err)
}

func TestDecodeRejectsDisconnectedTransport(t *testing.T) {
	var dst engine.GamepadState
	err := decoder.Decode(&dst, usbReport(), engine.Disconnected, 0, 0)
	assert.Error(t, err)
}

func TestDecodeCentersSticksAtNeutral(t *testing.T) {
	var dst engine.GamepadState
	err := decoder.Decode(&dst, usbReport(), engine.USB, 0, 0)
	assert.NoError(t, err)
	assert.InDelta(t, 0, dst.LeftStick.X, 0.01)
	assert.InDelta(t, 0, dst.LeftStick.Y, 0.01)
}

func TestDecodeFaceButtons(t *testing.T) {
	raw := usbReport()
	raw[5] = 0x08 | 0x20 // neutral hat, cross pressed
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.True(t, dst.Cross)
	assert.False(t, dst.Circle)
}

func TestDecodeDPadDirections(t *testing.T) {
	raw := usbReport()
	raw[5] = 0x00 // hat up
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.True(t, dst.DPadUp)
	assert.False(t, dst.DPadDown)
	assert.False(t, dst.DPadLeft)
	assert.False(t, dst.DPadRight)
}

func TestDecodeAnalogTriggers(t *testing.T) {
	raw := usbReport()
	raw[8] = 255
	raw[9] = 127
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.InDelta(t, 1.0, dst.L2, 0.01)
	assert.InDelta(t, 0.498, dst.R2, 0.01)
}

func TestDecodeBatteryPercent(t *testing.T) {
	raw := usbReport()
	raw[30] = 11 // max level, not charging
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.Equal(t, 100, dst.BatteryPercent)
	assert.False(t, dst.IsCharging)
}

func TestDecodeBatteryChargingFlag(t *testing.T) {
	raw := usbReport()
	raw[30] = 0x10 | 5 // charging, level 5
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.True(t, dst.IsCharging)
}

func TestDecodeBluetoothSimpleHasNoAnalogTriggersOrBattery(t *testing.T) {
	raw := usbReport()
	raw[0] = decoder.ReportIDBTSimple
	raw[8] = 255
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.BluetoothSimple, 0, 0))
	assert.Equal(t, 0, dst.BatteryPercent)
	assert.Equal(t, 0.0, dst.L2)
}

func TestDecodeRetainsRawBytes(t *testing.T) {
	raw := usbReport()
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.Equal(t, raw, dst.Raw)
}

func TestDeadzoneZeroesSmallStickDeflection(t *testing.T) {
	raw := usbReport()
	raw[1] = 130 // tiny X deflection from center
	raw[2] = 128
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0.2, 0))
	assert.Equal(t, 0.0, dst.LeftStick.X)
	assert.Equal(t, 0.0, dst.LeftStick.Y)
}

func TestDecodeTouchActiveWithCoordinates(t *testing.T) {
	raw := usbReport()
	raw[35] = 0x00 // active (high bit clear)
	raw[36] = 0x2C
	raw[37] = 0x41
	raw[38] = 0x1F
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.True(t, dst.Touch.Active)
	assert.Equal(t, 300, dst.Touch.X)
	assert.Equal(t, 500, dst.Touch.Y)
}

func TestDecodeTouchInactive(t *testing.T) {
	raw := usbReport()
	raw[35] = 0x80 // inactive (high bit set)
	raw[36] = 0x2C
	raw[37] = 0x41
	raw[38] = 0x1F
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0, 0))
	assert.False(t, dst.Touch.Active)
}

func TestDeadzoneRescalesBeyondBoundary(t *testing.T) {
	raw := usbReport()
	raw[1] = 255 // full deflection
	raw[2] = 128
	var dst engine.GamepadState
	assert.NoError(t, decoder.Decode(&dst, raw, engine.USB, 0.1, 0))
	assert.InDelta(t, 1.0, dst.LeftStick.X, 0.02)
}
