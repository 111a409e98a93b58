// Package packetasm assembles outbound DualSense/DualShock4 control reports
// (lightbar RGB, player-LED mask, adaptive trigger descriptors, rumble) and
// appends the Bluetooth CRC-32 trailer.
package packetasm

import (
	"hash/crc32"

	"github.com/hidbridge/padlink/internal/engine"
)

const (
	usbReportLen = 48
	btReportLen  = 78

	usbReportID = 0x02
	btReportID  = 0x31

	crcSeedOutput = 0xA2
)

// RumbleState is the motor intensities carried in an outbound report.
type RumbleState struct {
	Small, Large uint8
}

// Request bundles everything one assembled outbound report depends on.
type Request struct {
	Transport      engine.Transport
	RGB            engine.RGB
	ShowBatteryLED bool
	BatteryPercent int
	PLEDLevel      engine.PLEDLevel
	TriggerL2      engine.AdaptiveTrigger
	TriggerR2      engine.AdaptiveTrigger
	Rumble         RumbleState
}

// Assemble builds the fixed-length outbound report for the request's
// transport. USB reports are 48 bytes (id 0x02, no CRC); BT-enhanced
// reports are 78 bytes (id 0x31, CRC-32 trailer). Assemble returns nil for
// Disconnected/BluetoothSimple, which have no outbound control report
// (the CRC trailer, and indeed the whole enhanced report, exists iff
// Transport = BluetoothEnhanced; USB emits its own
// simpler report instead).
func Assemble(req Request) []byte {
	switch req.Transport {
	case engine.USB:
		return assembleUSB(req)
	case engine.BluetoothEnhanced:
		return assembleBTEnhanced(req)
	default:
		return nil
	}
}

func assembleUSB(req Request) []byte {
	b := make([]byte, usbReportLen)
	b[0] = usbReportID
	writeControlFlags(b, 1)
	writeRumble(b, 4, req.Rumble)
	writeTrigger(b, 6, req.TriggerR2) // R2 descriptor (11 bytes)
	writeTrigger(b, 17, req.TriggerL2) // L2 descriptor (11 bytes)
	// bytes 28..37 reserved gap
	b[38] = pledBrightnessByte(req.PLEDLevel)
	b[39] = pledMask(req)
	writeRGB(b, 40, req.RGB)
	return b
}

func assembleBTEnhanced(req Request) []byte {
	b := make([]byte, btReportLen)
	b[0] = btReportID
	b[1] = 0xFF // flag byte 1: enable all subsections
	b[2] = 0x07 // flag byte 2: enable RGB (bit0), trigger (bit1), LED (bit2)
	writeControlFlags(b, 3)
	writeRumble(b, 6, req.Rumble)
	writeTrigger(b, 8, req.TriggerR2)
	writeTrigger(b, 19, req.TriggerL2)
	b[40] = pledBrightnessByte(req.PLEDLevel)
	b[41] = pledMask(req)
	writeRGB(b, 42, req.RGB)

	crc := crc32.Checksum(append([]byte{crcSeedOutput, btReportID}, b[1:74]...), crc32.IEEETable)
	b[74] = uint8(crc)
	b[75] = uint8(crc >> 8)
	b[76] = uint8(crc >> 16)
	b[77] = uint8(crc >> 24)
	return b
}

// writeControlFlags declares which subfields are valid: rumble, LED, and
// both trigger descriptors are always populated by this implementation.
func writeControlFlags(b []byte, at int) {
	const (
		flagRumble    = 0x01
		flagLED       = 0x02
		flagLEDBlink  = 0x04
		flagTriggerR2 = 0x08
		flagTriggerL2 = 0x10
	)
	b[at] = flagRumble | flagLED | flagTriggerR2 | flagTriggerL2
}

func writeRumble(b []byte, at int, r RumbleState) {
	b[at] = r.Small
	b[at+1] = r.Large
}

// writeTrigger encodes an 11-byte adaptive trigger descriptor: byte 0 is
// the mode opcode, start/force occupy the firmware-defined parameter
// positions. Off transmits an all-zero descriptor.
func writeTrigger(b []byte, at int, t engine.AdaptiveTrigger) {
	desc := b[at : at+11]
	switch t.Mode {
	case engine.TriggerOff:
		// all-zero
	case engine.TriggerRigid:
		desc[0] = 0x01
		desc[1] = t.Start
		desc[2] = t.Force
	case engine.TriggerPulse:
		desc[0] = 0x02
		desc[1] = t.Start
		desc[2] = t.Force
		desc[3] = t.Force
	case engine.TriggerSection:
		desc[0] = 0x06
		desc[1] = t.Start
		desc[2] = 0xFF
		desc[3] = t.Force
	}
}

func pledBrightnessByte(level engine.PLEDLevel) uint8 {
	switch level {
	case engine.PLEDLow:
		return 0x01
	case engine.PLEDHigh:
		return 0xFF
	default:
		return 0x02
	}
}

// pledMask derives the 5-bit player-LED mask from battery thresholds, or
// the fixed single-center indicator when battery display is disabled.
func pledMask(req Request) uint8 {
	if !req.ShowBatteryLED {
		return 0x04
	}
	return BatteryMask(req.BatteryPercent)
}

// BatteryMask maps a battery percentage to the 5-bit player-LED mask.
func BatteryMask(percent int) uint8 {
	switch {
	case percent >= 90:
		return 0x1F
	case percent >= 70:
		return 0x0F
	case percent >= 50:
		return 0x07
	case percent >= 30:
		return 0x03
	case percent >= 10:
		return 0x01
	default:
		return 0x00
	}
}

func writeRGB(b []byte, at int, rgb engine.RGB) {
	scale := func(c uint8) uint8 {
		return uint8(uint32(c) * uint32(rgb.Brightness) / 255)
	}
	b[at] = scale(rgb.R)
	b[at+1] = scale(rgb.G)
	b[at+2] = scale(rgb.B)
}
