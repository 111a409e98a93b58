// Package virtualpad is the Virtual Pad Sink: it owns one
// plugged virtual Xbox 360 pad against the host bus driver. The virtual pad
// is backed by virtualbus.VirtualBus and internal/server/usb.Server's USB/IP
// protocol implementation, run fully in-process and driven directly from
// device/xbox360.Xbox360 instead of a remote network client, then plugged
// into the kernel via internal/busdriver (`usbip attach`).
package virtualpad

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hidbridge/padlink/device"
	"github.com/hidbridge/padlink/device/keyboard"
	"github.com/hidbridge/padlink/device/mouse"
	"github.com/hidbridge/padlink/device/xbox360"
	"github.com/hidbridge/padlink/internal/busdriver"
	"github.com/hidbridge/padlink/internal/engineerr"
	"github.com/hidbridge/padlink/internal/log"
	usbsrv "github.com/hidbridge/padlink/internal/server/usb"
	"github.com/hidbridge/padlink/virtualbus"
)

// Sink manages the lifecycle of the virtual Xbox 360 pad plus the synthetic
// keyboard/mouse devices exported on the same bus, so synthetic keyboard
// and mouse input shares this sink's server/bus rather than a second one.
type Sink struct {
	mu        sync.Mutex
	server    *usbsrv.Server
	bus       *virtualbus.VirtualBus
	pad       *xbox360.Xbox360
	kb        *keyboard.Keyboard
	ms        *mouse.Mouse
	plugged   bool
	available bool
	logger    *slog.Logger

	rumbleCallback func(xbox360.XRumbleState)
}

// New starts a USB/IP server listening on addr (":0" for an ephemeral
// port) but does not yet plug a pad; Submit() does that lazily.
func New(addr string, logger *slog.Logger, rawLogger log.RawLogger) (*Sink, error) {
	srv := usbsrv.New(usbsrv.ServerConfig{Addr: addr, WriteBatchFlushInterval: time.Millisecond}, logger, rawLogger)

	kb, err := keyboard.New(&device.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("virtualpad: create keyboard device: %w", err)
	}
	ms, err := mouse.New(&device.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("virtualpad: create mouse device: %w", err)
	}

	s := &Sink{
		server: srv,
		pad:    xbox360.New(&device.CreateOptions{}),
		kb:     kb,
		ms:     ms,
		logger: logger,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("usbip server stopped", "error", err)
		}
	}()
	<-srv.Ready()
	return s, nil
}

// Keyboard and Mouse expose the synthetic HID devices for
// internal/syntheticinput to drive; they share this sink's bus/server.
func (s *Sink) Keyboard() *keyboard.Keyboard { return s.kb }
func (s *Sink) Mouse() *mouse.Mouse          { return s.ms }

// SetRumbleCallback forwards rumble written by the OS to the virtual pad up
// to the packet assembler: physical-controller haptics mirror whatever
// rumbles the virtual Xbox 360 pad.
func (s *Sink) SetRumbleCallback(f func(xbox360.XRumbleState)) {
	s.rumbleCallback = f
	s.pad.SetRumbleCallback(f)
}

// Submit plugs the virtual pad if needed (lazy replug after a
// disconnect-gap) and pushes the latest state. If the bus driver is
// unavailable, Submit is a no-op that records the status.
func (s *Sink) Submit(ctx context.Context, state xbox360.InputState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.plugged {
		if err := s.plugLocked(ctx); err != nil {
			s.available = false
			return engineerr.Wrap(engineerr.VirtualPadPlugFailed, "plug virtual pad", err)
		}
	}
	s.pad.UpdateInputState(state)
	return nil
}

// Available reports whether the last plug attempt succeeded.
func (s *Sink) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *Sink) plugLocked(ctx context.Context) error {
	if !busdriver.CheckPrerequisites(s.logger) {
		return engineerr.New(engineerr.BusDriverUnavailable, "usbip/vhci-hcd not available")
	}

	s.bus = virtualbus.New()
	if _, err := s.bus.Add(s.pad); err != nil {
		return err
	}
	if _, err := s.bus.Add(s.kb); err != nil {
		return err
	}
	if _, err := s.bus.Add(s.ms); err != nil {
		return err
	}
	if err := s.server.AddBus(s.bus); err != nil {
		return err
	}

	for _, meta := range s.bus.GetAllDeviceMetas() {
		m := meta.Meta
		if err := busdriver.Attach(ctx, &m, s.server.GetListenPort(), s.logger); err != nil {
			return err
		}
	}

	s.plugged = true
	s.available = true
	return nil
}

// Unplug removes the bus from the server, which makes every attached USB/IP
// client see a disconnect. Called on engine shutdown, on loss of physical
// transport, and on user-requested reconnect.
func (s *Sink) Unplug() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.plugged || s.bus == nil {
		return
	}
	if err := s.server.RemoveBus(s.bus.BusID()); err != nil {
		s.logger.Warn("failed to remove virtual bus", "error", err)
	}
	s.plugged = false
	s.bus = nil
}

// Close stops the underlying USB/IP server.
func (s *Sink) Close() error {
	return s.server.Close()
}
