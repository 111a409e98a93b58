package supervisor

import (
	"testing"
	"time"

	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/linkstate"
	"github.com/stretchr/testify/assert"
)

// applyCommand only touches s.mappings/s.config/s.profiles/s.hiderImpl/s.logger for
// commands other than CmdDisconnectController, so a bare Supervisor is
// enough to exercise the link-state/forceTeardown contract in isolation.

func TestApplyCommandDisconnectForcesTeardown(t *testing.T) {
	s := &Supervisor{}
	link := linkstate.NewMachine()
	link.Opened(false)
	link.FrameDecoded()
	assert.Equal(t, linkstate.Active, link.State())

	force := s.applyCommand(Command{Kind: CmdDisconnectController}, link)

	assert.True(t, force)
	assert.Equal(t, linkstate.Disconnected, link.State())
	assert.Equal(t, engine.Disconnected, link.Transport())
}

func TestApplyCommandOtherCommandsDoNotForceTeardown(t *testing.T) {
	s := &Supervisor{}
	link := linkstate.NewMachine()
	link.Opened(false)

	force := s.applyCommand(Command{Kind: CmdSetRGB, RGB: engine.RGB{R: 1, G: 2, B: 3}}, link)

	assert.False(t, force)
	assert.Equal(t, engine.RGB{R: 1, G: 2, B: 3}, s.config.RGB)
	assert.NotEqual(t, linkstate.Disconnected, link.State())
}

func TestApplyCommandGetInitialStateRepliesWithoutForceTeardown(t *testing.T) {
	s := &Supervisor{mappings: engine.DefaultMapping(), config: engine.DefaultEngineConfig()}
	link := linkstate.NewMachine()
	reply := make(chan Notification, 1)

	force := s.applyCommand(Command{Kind: CmdGetInitialState, Reply: reply}, link)

	assert.False(t, force)
	select {
	case n := <-reply:
		assert.Equal(t, NotifyInitialState, n.Kind)
		assert.Equal(t, engine.DefaultMapping(), n.Mappings)
	case <-time.After(time.Second):
		t.Fatal("expected a reply notification")
	}
}
