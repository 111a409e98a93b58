// Package engine holds the bridge's normalized data model: the decoded
// controller frame, the transport tag, the mapping set, and the engine-wide
// configuration. Every other internal package (decoder, mapping, packetasm,
// profile) operates on these types rather than raw report bytes.
package engine

import "fmt"

// Transport is the tagged variant driving input-report offsets, output
// report length, and whether the BT CRC trailer is appended.
type Transport int

const (
	Disconnected Transport = iota
	USB
	BluetoothSimple
	BluetoothEnhanced
)

func (t Transport) String() string {
	switch t {
	case USB:
		return "USB"
	case BluetoothSimple:
		return "BluetoothSimple"
	case BluetoothEnhanced:
		return "BluetoothEnhanced"
	default:
		return "Disconnected"
	}
}

// Stick is a centered, deadzone-applied analog stick vector, each axis in
// [-1.0, +1.0].
type Stick struct {
	X, Y float64
}

// Touch is the decoded touchpad contact point; X/Y are only
// meaningful when Active is true.
type Touch struct {
	X, Y   int
	Active bool
}

// GamepadState is the normalized decoded frame. It is
// reconstructed every cycle by the decoder; only the previous frame is kept
// around for edge detection, so callers should treat every field as
// value-copied rather than retained by reference.
type GamepadState struct {
	Cross, Circle, Square, Triangle bool
	L1, R1, L3, R3                  bool
	Share, Options, PS, Mute        bool
	Touchpad                        bool
	DPadUp, DPadDown, DPadLeft, DPadRight bool

	L2, R2 float64 // [0.0, 1.0]

	LeftStick, RightStick Stick

	Touch Touch

	BatteryPercent int // [0, 100]
	IsCharging     bool

	Raw []byte // ≤ 80 bytes, retained for diagnostics
}

// Source names a physical or synthesized aggregate input the mapping set
// keys on.
type Source int

const (
	SourceCross Source = iota
	SourceCircle
	SourceSquare
	SourceTriangle
	SourceL1
	SourceR1
	SourceL3
	SourceR3
	SourceShare
	SourceOptions
	SourcePS
	SourceMute
	SourceTouchpad
	SourceDPadUp
	SourceDPadDown
	SourceDPadLeft
	SourceDPadRight
	SourceL2
	SourceR2
	SourceLeftStick
	SourceRightStick
	SourceTouchpadLeft
	SourceTouchpadRight
)

// AllSources lists every recognized source exactly once: for every
// recognized source there exists exactly one mapping entry.
var AllSources = []Source{
	SourceCross, SourceCircle, SourceSquare, SourceTriangle,
	SourceL1, SourceR1, SourceL3, SourceR3,
	SourceShare, SourceOptions, SourcePS, SourceMute, SourceTouchpad,
	SourceDPadUp, SourceDPadDown, SourceDPadLeft, SourceDPadRight,
	SourceL2, SourceR2,
	SourceLeftStick, SourceRightStick,
	SourceTouchpadLeft, SourceTouchpadRight,
}

var sourceNames = map[Source]string{
	SourceCross: "Cross", SourceCircle: "Circle", SourceSquare: "Square", SourceTriangle: "Triangle",
	SourceL1: "L1", SourceR1: "R1", SourceL3: "L3", SourceR3: "R3",
	SourceShare: "Share", SourceOptions: "Options", SourcePS: "PS", SourceMute: "Mute",
	SourceTouchpad: "Touchpad",
	SourceDPadUp: "DPadUp", SourceDPadDown: "DPadDown", SourceDPadLeft: "DPadLeft", SourceDPadRight: "DPadRight",
	SourceL2: "L2", SourceR2: "R2",
	SourceLeftStick: "LeftStick", SourceRightStick: "RightStick",
	SourceTouchpadLeft: "TouchpadLeft", SourceTouchpadRight: "TouchpadRight",
}

func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return "Unknown"
}

// MarshalText renders a Source as its name, so profile documents key their
// mapping tables by a stable, human-readable string instead of an integer
// that would shift if this enum is ever reordered.
func (s Source) MarshalText() ([]byte, error) {
	if _, ok := sourceNames[s]; !ok {
		return nil, fmt.Errorf("engine: unknown source %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a Source name as produced by MarshalText.
func (s *Source) UnmarshalText(text []byte) error {
	name := string(text)
	for src, n := range sourceNames {
		if n == name {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("engine: unknown source name %q", name)
}

// TargetKind tags which variant of Target is populated.
type TargetKind int

const (
	TargetXboxButton TargetKind = iota
	TargetXboxTrigger
	TargetXboxStick
	TargetKeyboard
	TargetMouse
	TargetMouseMove
	TargetMouseScroll
)

// XboxTriggerSide selects LT or RT for a TargetXboxTrigger.
type XboxTriggerSide int

const (
	TriggerLT XboxTriggerSide = iota
	TriggerRT
)

// XboxStickSide selects LS or RS for a TargetXboxStick.
type XboxStickSide int

const (
	StickLS XboxStickSide = iota
	StickRS
)

// Target is a closed tagged variant (an exhaustive enum in place of an
// untyped "mapping target" object) for
// what a mapping entry dispatches a source's value to.
type Target struct {
	Kind TargetKind

	XboxButtonBit uint16          // TargetXboxButton
	TriggerSide   XboxTriggerSide // TargetXboxTrigger
	StickSide     XboxStickSide   // TargetXboxStick
	VK            uint8           // TargetKeyboard: HID keyboard usage code
	MouseButton   int             // TargetMouse: 0=Left,1=Middle,2=Right
	XSpeed        float64         // TargetMouseMove
	YSpeed        float64         // TargetMouseMove
	ScrollSpeed   float64         // TargetMouseScroll
}

// Mapping is one source's ordered target list.
type Mapping struct {
	Source  Source
	Targets []Target
}

// MappingSet is keyed by Source so "exactly one entry per source" is
// enforced structurally rather than by a separate validation pass.
type MappingSet map[Source]Mapping

// PLEDLevel is the player-LED brightness tier.
type PLEDLevel int

const (
	PLEDLow PLEDLevel = iota
	PLEDMedium
	PLEDHigh
)

// TriggerMode is an adaptive trigger's operating mode.
type TriggerMode int

const (
	TriggerOff TriggerMode = iota
	TriggerRigid
	TriggerPulse
	TriggerSection
)

// AdaptiveTrigger is one trigger's descriptor parameters.
type AdaptiveTrigger struct {
	Mode  TriggerMode
	Start uint8
	Force uint8
}

// RGB is the lightbar color; brightness scales r,g,b on the wire with no
// gamma correction — visual gamma only ever applies in a preview UI, out
// of scope here.
type RGB struct {
	R, G, B, Brightness uint8
}

// EngineConfig is the live, mutable engine configuration.
type EngineConfig struct {
	HideController       bool
	StartMinimized        bool
	DeadzoneLeft          float64
	DeadzoneRight         float64
	MouseSensLeft         float64
	MouseSensRight        float64
	MouseSensTouchpad     float64
	RGB                   RGB
	ShowBatteryLED        bool
	PlayerLEDBrightness   PLEDLevel
	TriggerL2             AdaptiveTrigger
	TriggerR2             AdaptiveTrigger
}

// DefaultEngineConfig matches the Default profile's engine configuration:
// no deadzone beyond a small stick-noise margin, moderate sensitivities,
// a blue lightbar at full brightness, battery-as-PLED enabled, and both
// triggers off.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HideController:      false,
		StartMinimized:      false,
		DeadzoneLeft:        0.05,
		DeadzoneRight:       0.05,
		MouseSensLeft:       1.0,
		MouseSensRight:      1.0,
		MouseSensTouchpad:   1.0,
		RGB:                 RGB{R: 0, G: 0, B: 255, Brightness: 255},
		ShowBatteryLED:      true,
		PlayerLEDBrightness: PLEDMedium,
		TriggerL2:           AdaptiveTrigger{Mode: TriggerOff},
		TriggerR2:           AdaptiveTrigger{Mode: TriggerOff},
	}
}

// DefaultMapping returns the one-to-one Default profile mapping:
// face/shoulder/meta buttons to their Xbox equivalents, sticks to
// LS/RS, triggers to LT/RT, and empty target lists for Mute/Touchpad/the
// touchpad halves.
func DefaultMapping() MappingSet {
	m := make(MappingSet, len(AllSources))
	for _, s := range AllSources {
		m[s] = Mapping{Source: s}
	}
	btn := func(s Source, bit uint16) {
		m[s] = Mapping{Source: s, Targets: []Target{{Kind: TargetXboxButton, XboxButtonBit: bit}}}
	}
	btn(SourceCross, 0x1000)
	btn(SourceCircle, 0x2000)
	btn(SourceSquare, 0x4000)
	btn(SourceTriangle, 0x8000)
	btn(SourceL1, 0x0100)
	btn(SourceR1, 0x0200)
	btn(SourceL3, 0x0040)
	btn(SourceR3, 0x0080)
	btn(SourceShare, 0x0020) // Back
	btn(SourceOptions, 0x0010)
	btn(SourcePS, 0x0400) // Guide
	btn(SourceDPadUp, 0x0001)
	btn(SourceDPadDown, 0x0002)
	btn(SourceDPadLeft, 0x0004)
	btn(SourceDPadRight, 0x0008)

	m[SourceL2] = Mapping{Source: SourceL2, Targets: []Target{{Kind: TargetXboxTrigger, TriggerSide: TriggerLT}}}
	m[SourceR2] = Mapping{Source: SourceR2, Targets: []Target{{Kind: TargetXboxTrigger, TriggerSide: TriggerRT}}}
	m[SourceLeftStick] = Mapping{Source: SourceLeftStick, Targets: []Target{{Kind: TargetXboxStick, StickSide: StickLS}}}
	m[SourceRightStick] = Mapping{Source: SourceRightStick, Targets: []Target{{Kind: TargetXboxStick, StickSide: StickRS}}}
	// Mute, Touchpad, TouchpadLeft, TouchpadRight keep empty target lists.
	return m
}
