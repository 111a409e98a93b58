// Package syntheticinput is the Synthetic Input Sink: it
// turns mapping-engine key/button edges and pointer events into USB HID
// keyboard/mouse report state on the same virtual bus as the virtual pad,
// so the kernel's ordinary HID input stack drives them rather than a
// platform input-injection API.
package syntheticinput

import (
	"sync"

	"github.com/hidbridge/padlink/device/keyboard"
	"github.com/hidbridge/padlink/device/mouse"
	"github.com/hidbridge/padlink/internal/mapping"
)

// mouseButtonBit maps the external 0=Left,1=Middle,2=Right button numbering
// to device/mouse.InputState's bit positions (bit0=Left, bit1=Right, bit2=Middle).
func mouseButtonBit(button int) uint8 {
	switch button {
	case 0:
		return 0x01 // Left
	case 1:
		return 0x04 // Middle
	case 2:
		return 0x02 // Right
	default:
		return 0
	}
}

// Sink owns the live keyboard/mouse InputState and pushes updates into the
// two virtual HID devices exported on the bus.
type Sink struct {
	mu  sync.Mutex
	kb  *keyboard.Keyboard
	ms  *mouse.Mouse
	kst keyboard.InputState
	mst mouse.InputState
}

func New(kb *keyboard.Keyboard, ms *mouse.Mouse) *Sink {
	return &Sink{kb: kb, ms: ms}
}

// Apply pushes one mapping-engine Result's key/button edges and pointer
// delta into the virtual keyboard/mouse, leaving held keys/buttons set
// between calls (so repeated frames without edges don't drop a hold).
func (s *Sink) Apply(r mapping.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range r.KeyEdges {
		idx := e.VK / 8
		bit := uint8(1) << (e.VK % 8)
		if e.Down {
			s.kst.KeyBitmap[idx] |= bit
		} else {
			s.kst.KeyBitmap[idx] &^= bit
		}
	}
	if len(r.KeyEdges) > 0 {
		s.kb.UpdateInputState(s.kst)
	}

	for _, e := range r.ButtonEdges {
		bit := mouseButtonBit(e.Button)
		if e.Down {
			s.mst.Buttons |= bit
		} else {
			s.mst.Buttons &^= bit
		}
	}
	s.mst.DX = int16(clampInt16(r.Pointer.DX))
	s.mst.DY = int16(clampInt16(r.Pointer.DY))
	s.mst.Wheel = int16(clampInt16(r.Pointer.Wheel))
	s.ms.UpdateInputState(s.mst)
}

// ReleaseAll clears every held synthetic key and mouse button, called on
// engine stop and on disconnect.
func (s *Sink) ReleaseAll(keys []mapping.KeyEdge, buttons []mapping.MouseButtonEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range keys {
		idx := e.VK / 8
		bit := uint8(1) << (e.VK % 8)
		s.kst.KeyBitmap[idx] &^= bit
	}
	if len(keys) > 0 {
		s.kb.UpdateInputState(s.kst)
	}
	for _, e := range buttons {
		s.mst.Buttons &^= mouseButtonBit(e.Button)
	}
	if len(buttons) > 0 {
		s.ms.UpdateInputState(s.mst)
	}
}

func clampInt16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
