// Package mapping implements the Mapping Engine pipeline: it turns a
// decoded GamepadState plus the active mapping set into a target
// XboxPadState, a list of synthetic key/button edges, and a list of
// pointer-delta/scroll events.
package mapping

import (
	"github.com/hidbridge/padlink/device/xbox360"
	"github.com/hidbridge/padlink/internal/engine"
)

// KeyEdge is a press (Down=true) or release (Down=false) edge for a
// synthetic keyboard usage code.
type KeyEdge struct {
	VK   uint8
	Down bool
}

// MouseButtonEdge is a press/release edge for a synthetic mouse button.
type MouseButtonEdge struct {
	Button int // 0=Left, 1=Middle, 2=Right
	Down   bool
}

// PointerEvent carries an integer relative cursor delta and/or wheel tick,
// already popped from the Engine's fractional accumulators.
type PointerEvent struct {
	DX, DY, Wheel int
}

// Engine runs the mapping pipeline across cycles, retaining the fractional
// remainders for MouseMove/MouseScroll integration and the currently-held
// synthetic keys/buttons so it can emit edges rather than raw levels.
type Engine struct {
	heldKeys    map[uint8]bool
	heldButtons map[int]bool
	fracX, fracY, fracWheel float64
}

func NewEngine() *Engine {
	return &Engine{
		heldKeys:    make(map[uint8]bool),
		heldButtons: make(map[int]bool),
	}
}

// Result is everything one Process call produces.
type Result struct {
	Pad           xbox360.InputState
	KeyEdges      []KeyEdge
	ButtonEdges   []MouseButtonEdge
	Pointer       PointerEvent
}

// Process runs one cycle of the pipeline against cur/prev frames and the
// active mapping set.
func (e *Engine) Process(cur, prev engine.GamepadState, mappings engine.MappingSet) Result {
	digital, scalar, vector := evaluateSources(cur)

	var res Result
	var buttons uint32
	var lt, rt uint8
	var ls, rs engine.Stick
	lsSet, rsSet := false, false

	var dxAcc, dyAcc, wheelAcc float64
	dxAcc, dyAcc, wheelAcc = e.fracX, e.fracY, e.fracWheel

	seenKeys := make(map[uint8]bool)
	seenButtons := make(map[int]bool)

	for _, src := range engine.AllSources {
		m, ok := mappings[src]
		if !ok {
			continue
		}
		for _, t := range m.Targets {
			switch t.Kind {
			case engine.TargetXboxButton:
				if digital[src] {
					buttons |= uint32(t.XboxButtonBit)
				}
			case engine.TargetXboxTrigger:
				v := triggerByte(src, scalar, digital)
				if t.TriggerSide == engine.TriggerLT {
					lt = v
				} else {
					rt = v
				}
			case engine.TargetXboxStick:
				v := vector[src]
				if t.StickSide == engine.StickLS {
					ls, lsSet = v, true
				} else {
					rs, rsSet = v, true
				}
			case engine.TargetKeyboard:
				seenKeys[t.VK] = true
				pressed := digital[src]
				if pressed && !e.heldKeys[t.VK] {
					res.KeyEdges = append(res.KeyEdges, KeyEdge{VK: t.VK, Down: true})
					e.heldKeys[t.VK] = true
				} else if !pressed && e.heldKeys[t.VK] {
					res.KeyEdges = append(res.KeyEdges, KeyEdge{VK: t.VK, Down: false})
					e.heldKeys[t.VK] = false
				}
			case engine.TargetMouse:
				seenButtons[t.MouseButton] = true
				pressed := digital[src]
				if pressed && !e.heldButtons[t.MouseButton] {
					res.ButtonEdges = append(res.ButtonEdges, MouseButtonEdge{Button: t.MouseButton, Down: true})
					e.heldButtons[t.MouseButton] = true
				} else if !pressed && e.heldButtons[t.MouseButton] {
					res.ButtonEdges = append(res.ButtonEdges, MouseButtonEdge{Button: t.MouseButton, Down: false})
					e.heldButtons[t.MouseButton] = false
				}
			case engine.TargetMouseMove:
				v := vector[src]
				dxAcc += v.X * t.XSpeed
				dyAcc += v.Y * t.YSpeed
			case engine.TargetMouseScroll:
				v := vector[src]
				wheelAcc += v.Y * t.ScrollSpeed
			}
		}
	}

	dxi, dxAcc := splitFraction(dxAcc)
	dyi, dyAcc := splitFraction(dyAcc)
	wi, wheelAcc := splitFraction(wheelAcc)
	e.fracX, e.fracY, e.fracWheel = dxAcc, dyAcc, wheelAcc
	res.Pointer = PointerEvent{DX: dxi, DY: dyi, Wheel: wi}

	// Auto-release any held key/button no longer targeted by the active set.
	for vk, held := range e.heldKeys {
		if held && !seenKeys[vk] {
			res.KeyEdges = append(res.KeyEdges, KeyEdge{VK: vk, Down: false})
			e.heldKeys[vk] = false
		}
	}
	for btn, held := range e.heldButtons {
		if held && !seenButtons[btn] {
			res.ButtonEdges = append(res.ButtonEdges, MouseButtonEdge{Button: btn, Down: false})
			e.heldButtons[btn] = false
		}
	}

	if !lsSet {
		ls = engine.Stick{}
	}
	if !rsSet {
		rs = engine.Stick{}
	}
	res.Pad = xbox360.InputState{
		Buttons: buttons,
		LT:      lt,
		RT:      rt,
		LX:      toSigned16(ls.X),
		LY:      toSigned16(ls.Y),
		RX:      toSigned16(rs.X),
		RY:      toSigned16(rs.Y),
	}
	return res
}

// ReleaseAll emits a release edge for every currently-held synthetic key
// and mouse button — called on engine stop and on disconnect so no
// synthetic input is left stuck down: exactly one release fires before
// shutdown completes.
func (e *Engine) ReleaseAll() ([]KeyEdge, []MouseButtonEdge) {
	var keys []KeyEdge
	for vk, held := range e.heldKeys {
		if held {
			keys = append(keys, KeyEdge{VK: vk, Down: false})
			e.heldKeys[vk] = false
		}
	}
	var buttons []MouseButtonEdge
	for btn, held := range e.heldButtons {
		if held {
			buttons = append(buttons, MouseButtonEdge{Button: btn, Down: false})
			e.heldButtons[btn] = false
		}
	}
	return keys, buttons
}

func splitFraction(v float64) (int, float64) {
	whole := int(v)
	return whole, v - float64(whole)
}

func toSigned16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v >= 0 {
		return int16(v * 32767)
	}
	return int16(v * 32768)
}

func triggerByte(src engine.Source, scalar map[engine.Source]float64, digital map[engine.Source]bool) uint8 {
	if v, ok := scalar[src]; ok {
		return uint8(v * 255)
	}
	if digital[src] {
		return 255
	}
	return 0
}

// evaluateSources computes each source's digital/scalar/vector value for
// one frame, synthesizing the TouchpadLeft/TouchpadRight aggregates from
// the touch point.
func evaluateSources(s engine.GamepadState) (digital map[engine.Source]bool, scalar map[engine.Source]float64, vector map[engine.Source]engine.Stick) {
	digital = map[engine.Source]bool{
		engine.SourceCross:      s.Cross,
		engine.SourceCircle:     s.Circle,
		engine.SourceSquare:     s.Square,
		engine.SourceTriangle:   s.Triangle,
		engine.SourceL1:         s.L1,
		engine.SourceR1:         s.R1,
		engine.SourceL3:         s.L3,
		engine.SourceR3:         s.R3,
		engine.SourceShare:      s.Share,
		engine.SourceOptions:    s.Options,
		engine.SourcePS:         s.PS,
		engine.SourceMute:       s.Mute,
		engine.SourceTouchpad:   s.Touchpad,
		engine.SourceDPadUp:     s.DPadUp,
		engine.SourceDPadDown:   s.DPadDown,
		engine.SourceDPadLeft:   s.DPadLeft,
		engine.SourceDPadRight:  s.DPadRight,
		engine.SourceL2:         s.L2 > 0,
		engine.SourceR2:         s.R2 > 0,
	}
	scalar = map[engine.Source]float64{
		engine.SourceL2: s.L2,
		engine.SourceR2: s.R2,
	}
	vector = map[engine.Source]engine.Stick{
		engine.SourceLeftStick:  s.LeftStick,
		engine.SourceRightStick: s.RightStick,
	}

	tpLeft, tpRight := false, false
	if s.Touchpad && s.Touch.Active {
		tpLeft = s.Touch.X < 960
		tpRight = !tpLeft
	}
	digital[engine.SourceTouchpadLeft] = tpLeft
	digital[engine.SourceTouchpadRight] = tpRight

	if s.Touch.Active {
		// Touchpad-as-pointer vector: position normalized to [-1,1], the same
		// shape a stick vector has so MouseMove/MouseScroll targets work on it
		// unchanged. Sensitivity is applied by the target's XSpeed/YSpeed
		// (mouse_sens_touchpad).
		v := engine.Stick{X: float64(s.Touch.X)/959.5 - 1, Y: float64(s.Touch.Y)/539.5 - 1}
		vector[engine.SourceTouchpad] = v
		vector[engine.SourceTouchpadLeft] = v
		vector[engine.SourceTouchpadRight] = v
	}
	return
}
