package mapping_test

import (
	"testing"

	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/mapping"
	"github.com/stretchr/testify/assert"
)

func TestProcessDefaultMappingButtonPassthrough(t *testing.T) {
	eng := mapping.NewEngine()
	mset := engine.DefaultMapping()

	cur := engine.GamepadState{Cross: true}
	res := eng.Process(cur, engine.GamepadState{}, mset)

	assert.Equal(t, uint32(0x1000), res.Pad.Buttons)
}

func TestProcessSticksPassThroughWhenMapped(t *testing.T) {
	eng := mapping.NewEngine()
	mset := engine.DefaultMapping()

	cur := engine.GamepadState{LeftStick: engine.Stick{X: 1, Y: -1}}
	res := eng.Process(cur, engine.GamepadState{}, mset)

	assert.Equal(t, int16(32767), res.Pad.LX)
	assert.Equal(t, int16(-32768), res.Pad.LY)
}

func TestProcessKeyboardTargetEmitsEdgeOnPressAndRelease(t *testing.T) {
	eng := mapping.NewEngine()
	mset := engine.MappingSet{
		engine.SourceCross: {
			Source:  engine.SourceCross,
			Targets: []engine.Target{{Kind: engine.TargetKeyboard, VK: 0x04}},
		},
	}

	down := engine.GamepadState{Cross: true}
	up := engine.GamepadState{Cross: false}

	res1 := eng.Process(down, engine.GamepadState{}, mset)
	assert.Equal(t, []mapping.KeyEdge{{VK: 0x04, Down: true}}, res1.KeyEdges)

	// Holding the button another frame must not re-emit the press edge.
	res2 := eng.Process(down, down, mset)
	assert.Empty(t, res2.KeyEdges)

	res3 := eng.Process(up, down, mset)
	assert.Equal(t, []mapping.KeyEdge{{VK: 0x04, Down: false}}, res3.KeyEdges)
}

func TestProcessReleasesHeldKeyWhenMappingChangesAway(t *testing.T) {
	eng := mapping.NewEngine()
	withKey := engine.MappingSet{
		engine.SourceCross: {
			Source:  engine.SourceCross,
			Targets: []engine.Target{{Kind: engine.TargetKeyboard, VK: 0x04}},
		},
	}
	withoutKey := engine.MappingSet{}

	down := engine.GamepadState{Cross: true}
	eng.Process(down, engine.GamepadState{}, withKey)

	res := eng.Process(down, down, withoutKey)
	assert.Equal(t, []mapping.KeyEdge{{VK: 0x04, Down: false}}, res.KeyEdges)
}

func TestReleaseAllEmitsReleaseForEveryHeldKeyAndButton(t *testing.T) {
	eng := mapping.NewEngine()
	mset := engine.MappingSet{
		engine.SourceCross: {
			Source:  engine.SourceCross,
			Targets: []engine.Target{{Kind: engine.TargetKeyboard, VK: 0x04}},
		},
		engine.SourceCircle: {
			Source:  engine.SourceCircle,
			Targets: []engine.Target{{Kind: engine.TargetMouse, MouseButton: 0}},
		},
	}
	eng.Process(engine.GamepadState{Cross: true, Circle: true}, engine.GamepadState{}, mset)

	keys, buttons := eng.ReleaseAll()
	assert.Equal(t, []mapping.KeyEdge{{VK: 0x04, Down: false}}, keys)
	assert.Equal(t, []mapping.MouseButtonEdge{{Button: 0, Down: false}}, buttons)

	// A second call has nothing left to release.
	keys, buttons = eng.ReleaseAll()
	assert.Empty(t, keys)
	assert.Empty(t, buttons)
}

func TestProcessMouseMoveAccumulatesFractionAcrossFrames(t *testing.T) {
	eng := mapping.NewEngine()
	mset := engine.MappingSet{
		engine.SourceRightStick: {
			Source:  engine.SourceRightStick,
			Targets: []engine.Target{{Kind: engine.TargetMouseMove, XSpeed: 0.5, YSpeed: 0}},
		},
	}
	cur := engine.GamepadState{RightStick: engine.Stick{X: 1, Y: 0}}

	var totalDX int
	for i := 0; i < 4; i++ {
		res := eng.Process(cur, cur, mset)
		totalDX += res.Pointer.DX
	}
	// 4 frames * 0.5 = 2.0 accumulated, should have emitted whole pixels
	// summing to 2 once fractional remainders cross whole-pixel boundaries.
	assert.Equal(t, 2, totalDX)
}

func TestTriggerTargetScalesAnalogValue(t *testing.T) {
	eng := mapping.NewEngine()
	mset := engine.DefaultMapping()

	cur := engine.GamepadState{L2: 1.0, R2: 0.5}
	res := eng.Process(cur, engine.GamepadState{}, mset)

	assert.Equal(t, uint8(255), res.Pad.LT)
	assert.Equal(t, uint8(127), res.Pad.RT)
}
