package linkstate_test

import (
	"testing"
	"time"

	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/linkstate"
	"github.com/stretchr/testify/assert"
)

func TestUSBOpenGoesActiveOnFirstFrame(t *testing.T) {
	m := linkstate.NewMachine()
	assert.Equal(t, linkstate.Unopened, m.State())

	m.Opened(false)
	assert.Equal(t, linkstate.OpenedUSB, m.State())
	assert.Equal(t, engine.USB, m.Transport())

	m.FrameDecoded()
	assert.Equal(t, linkstate.Active, m.State())
}

func TestBluetoothHandshakeSucceeds(t *testing.T) {
	m := linkstate.NewMachine()
	now := time.Now()

	m.Opened(true)
	assert.Equal(t, linkstate.OpenedBTSimple, m.State())
	assert.Equal(t, engine.BluetoothSimple, m.Transport())

	m.BeginHandshake(now)
	assert.Equal(t, linkstate.Handshaking, m.State())

	ok := m.ObserveInputReportID(0x31, now)
	assert.True(t, ok)
	assert.Equal(t, linkstate.OpenedBTEnhanced, m.State())
	assert.Equal(t, engine.BluetoothEnhanced, m.Transport())
}

func TestBluetoothHandshakeTimesOutBackToSimple(t *testing.T) {
	m := linkstate.NewMachine()
	now := time.Now()

	m.Opened(true)
	m.BeginHandshake(now)

	late := now.Add(time.Second)
	ok := m.ObserveInputReportID(0x01, late)
	assert.False(t, ok)
	assert.Equal(t, linkstate.OpenedBTSimple, m.State())
	assert.False(t, m.HandshakeTimedOut(late), "no longer Handshaking, so not timed out")
}

func TestHandshakeExhaustedAfterTwoAttempts(t *testing.T) {
	m := linkstate.NewMachine()
	now := time.Now()
	m.Opened(true)

	m.BeginHandshake(now)
	m.ObserveInputReportID(0x01, now.Add(time.Second))
	assert.False(t, m.HandshakeExhausted())

	m.BeginHandshake(now)
	m.ObserveInputReportID(0x01, now.Add(time.Second))
	assert.True(t, m.HandshakeExhausted())
}

func TestThreeReadFailuresWithin200msDisconnects(t *testing.T) {
	m := linkstate.NewMachine()
	m.Opened(false)

	base := time.Now()
	m.ReadFailed(base)
	assert.NotEqual(t, linkstate.Disconnected, m.State())
	m.ReadFailed(base.Add(50 * time.Millisecond))
	assert.NotEqual(t, linkstate.Disconnected, m.State())
	m.ReadFailed(base.Add(100 * time.Millisecond))

	assert.Equal(t, linkstate.Disconnected, m.State())
	assert.Equal(t, engine.Disconnected, m.Transport())
}

func TestReadFailureStreakResetsAfterGap(t *testing.T) {
	m := linkstate.NewMachine()
	m.Opened(false)

	base := time.Now()
	m.ReadFailed(base)
	m.ReadFailed(base.Add(300 * time.Millisecond)) // gap > 200ms resets the streak
	m.ReadFailed(base.Add(320 * time.Millisecond))

	assert.NotEqual(t, linkstate.Disconnected, m.State())
}

func TestReadSucceededClearsStreak(t *testing.T) {
	m := linkstate.NewMachine()
	m.Opened(false)

	base := time.Now()
	m.ReadFailed(base)
	m.ReadFailed(base.Add(10 * time.Millisecond))
	m.ReadSucceeded()
	m.ReadFailed(base.Add(20 * time.Millisecond))
	m.ReadFailed(base.Add(30 * time.Millisecond))

	assert.NotEqual(t, linkstate.Disconnected, m.State())
}

func TestDisconnectAndReset(t *testing.T) {
	m := linkstate.NewMachine()
	m.Opened(false)
	m.FrameDecoded()

	m.Disconnect()
	assert.Equal(t, linkstate.Disconnected, m.State())
	assert.Equal(t, engine.Disconnected, m.Transport())

	m.Reset()
	assert.Equal(t, linkstate.Unopened, m.State())
}
