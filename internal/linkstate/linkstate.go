// Package linkstate implements the HID link state machine that drives the
// Bluetooth "enable enhanced mode" handshake and classifies when a physical
// connection has gone away.
package linkstate

import (
	"time"

	"github.com/hidbridge/padlink/internal/engine"
)

// State names a node in the link state machine.
type State int

const (
	Unopened State = iota
	OpenedUSB
	OpenedBTSimple
	Handshaking
	OpenedBTEnhanced
	Active
	Disconnected
)

func (s State) Transport() engine.Transport {
	switch s {
	case OpenedUSB:
		return engine.USB
	case OpenedBTSimple, Handshaking:
		return engine.BluetoothSimple
	case OpenedBTEnhanced:
		return engine.BluetoothEnhanced
	case Active:
		return engine.USB // caller tracks the active sub-transport separately; see Machine.transport
	default:
		return engine.Disconnected
	}
}

// Machine tracks link state transitions for one physical device session.
// It is driven entirely by the worker goroutine; it holds no lock because
// nothing else touches it.
type Machine struct {
	state            State
	transport        engine.Transport
	handshakeAttempt int
	handshakeDeadline time.Time
	readFailures      int
	firstFailureAt    time.Time
}

// NewMachine starts in Unopened.
func NewMachine() *Machine {
	return &Machine{state: Unopened, transport: engine.Disconnected}
}

func (m *Machine) State() State               { return m.state }
func (m *Machine) Transport() engine.Transport { return m.transport }

// Opened transitions Unopened -> Opened(T), T determined by the OS-reported
// bus type at open() time.
func (m *Machine) Opened(isBluetooth bool) {
	if isBluetooth {
		m.state = OpenedBTSimple
		m.transport = engine.BluetoothSimple
	} else {
		m.state = OpenedUSB
		m.transport = engine.USB
	}
	m.readFailures = 0
}

// BeginHandshake transitions Opened(BTSimple) -> Handshaking: the caller
// sends feature report 0x05 and arms a 500ms deadline for the next input
// report to carry report id 0x31.
func (m *Machine) BeginHandshake(now time.Time) {
	if m.state != OpenedBTSimple {
		return
	}
	m.state = Handshaking
	m.handshakeAttempt++
	m.handshakeDeadline = now.Add(500 * time.Millisecond)
}

// ObserveInputReportID feeds the just-read report id while Handshaking.
// Returns true if the handshake succeeded (report id 0x31 arrived within
// the deadline).
func (m *Machine) ObserveInputReportID(reportID uint8, now time.Time) (handshakeOK bool) {
	if m.state != Handshaking {
		return false
	}
	if reportID == 0x31 {
		m.state = OpenedBTEnhanced
		m.transport = engine.BluetoothEnhanced
		return true
	}
	if now.After(m.handshakeDeadline) {
		if m.handshakeAttempt >= 2 {
			// Remain in BTSimple and surface a user-visible warning (caller's job).
			m.state = OpenedBTSimple
		} else {
			m.state = OpenedBTSimple // caller should retry BeginHandshake
		}
	}
	return false
}

// HandshakeTimedOut reports whether the Handshaking deadline has passed
// without success, regardless of attempt count.
func (m *Machine) HandshakeTimedOut(now time.Time) bool {
	return m.state == Handshaking && now.After(m.handshakeDeadline)
}

// HandshakeExhausted reports whether both handshake attempts have failed.
func (m *Machine) HandshakeExhausted() bool {
	return m.handshakeAttempt >= 2
}

// FrameDecoded transitions Opened(*) -> Active on the first successfully
// decoded frame.
func (m *Machine) FrameDecoded() {
	switch m.state {
	case OpenedUSB, OpenedBTSimple, OpenedBTEnhanced:
		m.state = Active
	}
}

// ReadFailed records a read failure; three consecutive failures within
// 200ms classify the link as disconnected.
func (m *Machine) ReadFailed(now time.Time) {
	if m.readFailures == 0 || now.Sub(m.firstFailureAt) > 200*time.Millisecond {
		m.firstFailureAt = now
		m.readFailures = 1
		return
	}
	m.readFailures++
	if m.readFailures >= 3 {
		m.state = Disconnected
		m.transport = engine.Disconnected
	}
}

// ReadSucceeded clears the read-failure streak.
func (m *Machine) ReadSucceeded() {
	m.readFailures = 0
}

// Disconnect forces a transition to Disconnected, e.g. on user-requested
// reconnect.
func (m *Machine) Disconnect() {
	m.state = Disconnected
	m.transport = engine.Disconnected
	m.readFailures = 0
	m.handshakeAttempt = 0
}

// Reset returns the machine to Unopened for a fresh open() attempt.
func (m *Machine) Reset() {
	*m = Machine{state: Unopened, transport: engine.Disconnected}
}
