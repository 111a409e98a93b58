// Package decoder parses raw DualSense/DualShock4 HID input report bytes
// into the normalized engine.GamepadState. The byte layout
// it reads is the mirror image of what device/dualshock4.buildUSBInputReport
// writes when padlink emulates a DS4 to the host: analog sticks at a fixed
// offset, buttons packed across three bytes with the D-pad in the low
// nibble of the first, a PS/touchpad-click byte, and a six-byte-per-point
// touch record with 12-bit packed coordinates.
package decoder

import (
	"fmt"
	"math"

	"github.com/hidbridge/padlink/internal/engine"
)

// Report ids recognized per transport.
const (
	ReportIDUSBInput     = 0x01
	ReportIDBTSimple     = 0x01
	ReportIDBTEnhanced   = 0x31
	ReportIDHandshakeReq = 0x05
)

// D-pad hat nibble values (0..7 direction, 8 = neutral).
const (
	hatUp = iota
	hatUpRight
	hatRight
	hatDownRight
	hatDown
	hatDownLeft
	hatLeft
	hatUpLeft
	hatNeutral
)

const (
	btnSquare   uint8 = 0x10
	btnCross    uint8 = 0x20
	btnCircle   uint8 = 0x40
	btnTriangle uint8 = 0x80

	btnL1      uint8 = 0x01
	btnR1      uint8 = 0x02
	btnL2      uint8 = 0x04
	btnR2      uint8 = 0x08
	btnShare   uint8 = 0x10
	btnOptions uint8 = 0x20
	btnL3      uint8 = 0x40
	btnR3      uint8 = 0x80

	btnPS       uint8 = 0x01
	btnTouchpad uint8 = 0x02

	touchInactiveMask uint8 = 0x80

	batteryLevelMask    uint8 = 0x0F
	batteryChargingFlag uint8 = 0x10
)

// Decode parses raw into dst, centering sticks, scaling triggers, decoding
// the D-pad hat, touch points and battery, then applying the deadzone.
// Decode never allocates: dst.Raw is resliced from a caller-owned buffer
// (the caller retains the backing array across calls) rather than copied.
func Decode(dst *engine.GamepadState, raw []byte, transport engine.Transport, deadzoneLeft, deadzoneRight float64) error {
	if len(raw) == 0 {
		return fmt.Errorf("decoder: empty report")
	}
	reportID := raw[0]

	switch transport {
	case engine.USB:
		if reportID != ReportIDUSBInput {
			return fmt.Errorf("decoder: unexpected USB report id 0x%02x", reportID)
		}
		decodeFullPayload(dst, raw[1:], true)
	case engine.BluetoothEnhanced:
		if reportID != ReportIDBTEnhanced {
			return fmt.Errorf("decoder: unexpected BT-enhanced report id 0x%02x", reportID)
		}
		if len(raw) < 3 {
			return fmt.Errorf("decoder: short BT-enhanced report")
		}
		decodeFullPayload(dst, raw[2:], true) // 2-byte BT header (report id + seq/flags)
	case engine.BluetoothSimple:
		if reportID != ReportIDBTSimple {
			return fmt.Errorf("decoder: unexpected BT-simple report id 0x%02x", reportID)
		}
		decodeFullPayload(dst, raw[1:], false)
	default:
		return fmt.Errorf("decoder: decode called while disconnected")
	}

	dst.Raw = raw

	applyDeadzone(&dst.LeftStick, deadzoneLeft)
	applyDeadzone(&dst.RightStick, deadzoneRight)
	return nil
}

// decodeFullPayload reads a USB-shaped payload (sticks, buttons, PS/touch
// byte) and, when hasExtended is true, also the trigger, battery and touch
// fields that BluetoothSimple lacks. Gyro/accel bytes are not decoded.
func decodeFullPayload(dst *engine.GamepadState, p []byte, hasExtended bool) {
	if len(p) < 7 {
		return
	}

	dst.LeftStick.X, dst.LeftStick.Y = centerStick(p[0]), centerStick(p[1])
	dst.RightStick.X, dst.RightStick.Y = centerStick(p[2]), centerStick(p[3])

	hat := p[4] & 0x0F
	dst.DPadUp = hat == hatUp || hat == hatUpRight || hat == hatUpLeft
	dst.DPadDown = hat == hatDown || hat == hatDownRight || hat == hatDownLeft
	dst.DPadLeft = hat == hatLeft || hat == hatUpLeft || hat == hatDownLeft
	dst.DPadRight = hat == hatRight || hat == hatUpRight || hat == hatDownRight

	face := p[4] & 0xF0
	dst.Square = face&btnSquare != 0
	dst.Cross = face&btnCross != 0
	dst.Circle = face&btnCircle != 0
	dst.Triangle = face&btnTriangle != 0

	shoulders := p[5]
	dst.L1 = shoulders&btnL1 != 0
	dst.R1 = shoulders&btnR1 != 0
	dst.Share = shoulders&btnShare != 0
	dst.Options = shoulders&btnOptions != 0
	dst.L3 = shoulders&btnL3 != 0
	dst.R3 = shoulders&btnR3 != 0
	l2Digital := shoulders&btnL2 != 0
	r2Digital := shoulders&btnR2 != 0

	psTouch := p[6]
	dst.PS = psTouch&btnPS != 0
	dst.Touchpad = psTouch&btnTouchpad != 0

	if !hasExtended {
		// BluetoothSimple: no analog triggers, no touch, no battery.
		dst.L2 = boolTo01(l2Digital)
		dst.R2 = boolTo01(r2Digital)
		dst.Touch = engine.Touch{}
		dst.BatteryPercent = 0
		dst.IsCharging = false
		return
	}

	if len(p) < 38 {
		return
	}
	dst.L2 = float64(p[7]) / 255.0
	dst.R2 = float64(p[8]) / 255.0

	battery := p[29]
	dst.BatteryPercent = batteryPercent(battery & batteryLevelMask)
	dst.IsCharging = battery&batteryChargingFlag != 0

	active := p[34]&touchInactiveMask == 0
	dst.Touch = decodeTouch(p[35:38])
	dst.Touch.Active = active
}

// decodeTouch reads one touch point's 3-byte 12-bit-packed coordinate slice
// (the preceding counter/active-flag byte is not included in b; callers read
// that byte separately). Mirrors encodeTouchCoords in
// device/dualshock4.device.go exactly, read backwards.
func decodeTouch(b []byte) engine.Touch {
	if len(b) < 3 {
		return engine.Touch{}
	}
	x := uint16(b[0]) | (uint16(b[1]&0x0F) << 8)
	y := uint16(b[1]>>4) | (uint16(b[2]) << 4)
	return engine.Touch{X: int(x), Y: int(y)}
}

func centerStick(b byte) float64 {
	return (float64(b) - 128.0) / 127.0
}

func boolTo01(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}

// batteryPercent maps the DualShock4 4-bit battery level (0..11, where
// level 11 is "fully charged") onto a 0-100 percent scale.
func batteryPercent(level uint8) int {
	if level > 11 {
		level = 11
	}
	return int(math.Round(float64(level) / 11.0 * 100))
}

// applyDeadzone performs radial remapping: below the
// deadzone radius both components are zero; otherwise the stick is
// rescaled so the deadzone boundary maps to the unit circle.
func applyDeadzone(s *engine.Stick, deadzone float64) {
	radius := math.Hypot(s.X, s.Y)
	if radius < deadzone {
		s.X, s.Y = 0, 0
		return
	}
	if deadzone >= 1.0 {
		s.X, s.Y = 0, 0
		return
	}
	scale := (radius - deadzone) / (1.0 - deadzone) / radius
	s.X *= scale
	s.Y *= scale
	if s.X > 1 {
		s.X = 1
	} else if s.X < -1 {
		s.X = -1
	}
	if s.Y > 1 {
		s.Y = 1
	} else if s.Y < -1 {
		s.Y = -1
	}
}
