// Package supervisor owns the worker goroutine that drives one physical
// controller session end to end: open, decode, map, assemble, submit,
// reconnect. It exposes a single-producer/single-consumer command channel
// to a UI (or any other caller) and publishes state-update notifications,
// the same goroutine-plus-channel shape used elsewhere in this codebase for
// the USB/IP accept loop, applied here to a polling HID session instead of
// a network listener.
package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hidbridge/padlink/device/xbox360"

	"github.com/hidbridge/padlink/internal/busdriver"
	"github.com/hidbridge/padlink/internal/decoder"
	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/engineerr"
	"github.com/hidbridge/padlink/internal/hider"
	"github.com/hidbridge/padlink/internal/linkstate"
	"github.com/hidbridge/padlink/internal/mapping"
	"github.com/hidbridge/padlink/internal/packetasm"
	"github.com/hidbridge/padlink/internal/profile"
	"github.com/hidbridge/padlink/internal/syntheticinput"
	"github.com/hidbridge/padlink/internal/transport"
	"github.com/hidbridge/padlink/internal/virtualpad"
)

const (
	reconnectInterval = time.Second
	readTimeout       = 16 * time.Millisecond
)

// CommandKind tags which Command variant is populated, mirroring the
// UI-to-engine command table.
type CommandKind int

const (
	CmdGetInitialState CommandKind = iota
	CmdUpdateMappings
	CmdSetRGB
	CmdSetPlayerLEDBrightness
	CmdSetShowBatteryLED
	CmdSetDeadzones
	CmdSetMouseSens
	CmdSetTouchpadSens
	CmdSetTriggerL2
	CmdSetTriggerR2
	CmdSetHideController
	CmdSaveProfile
	CmdLoadProfile
	CmdDeleteProfile
	CmdGetProfiles
	CmdDisconnectController
	CmdTriggerDriverRefresh
)

// Command is one UI->engine request, applied at the next frame boundary.
type Command struct {
	Kind CommandKind

	Mappings engine.MappingSet // CmdUpdateMappings

	RGB engine.RGB // CmdSetRGB

	PLEDLevel engine.PLEDLevel // CmdSetPlayerLEDBrightness

	ShowBatteryLED bool // CmdSetShowBatteryLED

	DeadzoneLeft, DeadzoneRight float64 // CmdSetDeadzones
	MouseSensLeft, MouseSensRight float64 // CmdSetMouseSens
	TouchpadSens                  float64 // CmdSetTouchpadSens

	Trigger engine.AdaptiveTrigger // CmdSetTriggerL2 / CmdSetTriggerR2

	HideController bool // CmdSetHideController

	ProfileName string // CmdSaveProfile / CmdLoadProfile / CmdDeleteProfile

	// Reply, if non-nil, receives exactly one Notification answering this
	// command (e.g. the snapshot for CmdGetInitialState, or an error).
	Reply chan Notification
}

// NotificationKind tags which Notification variant is populated.
type NotificationKind int

const (
	NotifyStateUpdate NotificationKind = iota
	NotifyInitialState
	NotifyProfiles
	NotifyError
	NotifyMigration
)

// Notification is an engine->UI event, published at up to 60 Hz for
// NotifyStateUpdate and on-demand for the rest.
type Notification struct {
	Kind NotificationKind

	GamepadState   engine.GamepadState
	ConnectionMode engine.Transport
	BusDriverOK    bool
	HiderOK        bool

	Mappings engine.MappingSet
	Config   engine.EngineConfig
	Profile  string

	ProfileNames []string

	Err error
}

// Supervisor ties transport, decoder, link state, mapping engine, packet
// assembler, virtual pad sink, synthetic input sink, and hider together
// into a single worker loop.
type Supervisor struct {
	logger   *slog.Logger
	profiles *profile.Store
	vpad     *virtualpad.Sink

	commands chan Command
	notify   chan Notification

	mappings engine.MappingSet
	config   engine.EngineConfig

	hiderImpl *hider.Hider

	// rumble holds the most recent packetasm.RumbleState reported by the
	// virtual Xbox 360 pad's rumble callback, so physical-controller
	// haptics mirror whatever rumbles the virtual pad.
	rumble atomic.Value
}

// New constructs a Supervisor. vpad must already be running (see
// virtualpad.New); the Supervisor does not own its lifecycle.
func New(logger *slog.Logger, profiles *profile.Store, vpad *virtualpad.Sink) *Supervisor {
	_, mappings, cfg, err := profiles.Current()
	if err != nil {
		mappings = engine.DefaultMapping()
		cfg = engine.DefaultEngineConfig()
	}
	s := &Supervisor{
		logger:    logger,
		profiles:  profiles,
		vpad:      vpad,
		commands:  make(chan Command, 8),
		notify:    make(chan Notification, 8),
		mappings:  mappings,
		config:    cfg,
		hiderImpl: hider.New(),
	}
	s.rumble.Store(packetasm.RumbleState{})
	vpad.SetRumbleCallback(func(r xbox360.XRumbleState) {
		s.rumble.Store(packetasm.RumbleState{Small: r.RightMotor, Large: r.LeftMotor})
	})
	if profiles.Migrated {
		s.notify <- Notification{Kind: NotifyMigration}
	}
	return s
}

// Commands returns the channel callers send Command values on.
func (s *Supervisor) Commands() chan<- Command { return s.commands }

// Notifications returns the channel state-update and reply notifications
// are published on.
func (s *Supervisor) Notifications() <-chan Notification { return s.notify }

// Run is the worker loop. It blocks until ctx is cancelled, reconnecting to
// the controller every reconnectInterval while disconnected, and exits only
// after releasing the virtual pad, synthetic input, and hider state.
func (s *Supervisor) Run(ctx context.Context) {
	mapEngine := mapping.NewEngine()
	synth := syntheticinput.New(s.vpad.Keyboard(), s.vpad.Mouse())
	link := linkstate.NewMachine()
	var prev engine.GamepadState
	var handle *transport.Handle
	var lastPublish time.Time

	defer func() {
		s.shutdown(mapEngine, synth)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			if s.applyCommand(cmd, link) && handle != nil {
				s.teardownSession(handle, mapEngine, synth)
				handle = nil
				prev = engine.GamepadState{}
			}
		default:
		}

		if handle == nil {
			h, cand, err := s.tryOpen()
			if err != nil {
				s.logger.Warn("controller open failed, retrying", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectInterval):
				}
				continue
			}
			handle = h
			link.Reset()
			link.Opened(cand.IsBluetooth)
			if s.config.HideController {
				_, _ = s.hiderImpl.Hide(cand.HidrawPath, cand.EvdevPath)
			}
			continue
		}

		raw := make([]byte, 80)
		n, err := handle.Read(raw, readTimeout)
		now := time.Now()
		if err != nil {
			link.ReadFailed(now)
			if link.State() == linkstate.Disconnected {
				s.teardownSession(handle, mapEngine, synth)
				handle = nil
				prev = engine.GamepadState{}
			}
			continue
		}
		link.ReadSucceeded()

		if link.State() == linkstate.Handshaking {
			link.ObserveInputReportID(raw[0], now)
		}
		if link.State() == linkstate.OpenedBTSimple {
			if link.HandshakeExhausted() {
				s.logger.Warn("enhanced-mode handshake failed twice, staying in Bluetooth simple mode")
			} else {
				link.BeginHandshake(now)
				_ = handle.WriteFeature([]byte{decoder.ReportIDHandshakeReq})
			}
		}

		var cur engine.GamepadState
		if err := decoder.Decode(&cur, raw[:n], link.Transport(), s.config.DeadzoneLeft, s.config.DeadzoneRight); err != nil {
			s.logger.Debug("frame decode skipped", "error", err)
			continue
		}
		link.FrameDecoded()

		result := mapEngine.Process(cur, prev, s.mappings)
		prev = cur

		if err := s.vpad.Submit(ctx, result.Pad); err != nil {
			s.logger.Debug("virtual pad submit degraded", "error", err)
		}
		synth.Apply(result)

		req := packetasm.Request{
			Transport:      link.Transport(),
			RGB:            s.config.RGB,
			ShowBatteryLED: s.config.ShowBatteryLED,
			BatteryPercent: cur.BatteryPercent,
			PLEDLevel:      s.config.PlayerLEDBrightness,
			TriggerL2:      s.config.TriggerL2,
			TriggerR2:      s.config.TriggerR2,
			Rumble:         s.rumble.Load().(packetasm.RumbleState),
		}
		if out := packetasm.Assemble(req); out != nil {
			if werr := handle.WriteOutput(out); werr != nil {
				s.logger.Debug("outbound report write failed", "error", werr)
			}
		}

		if now.Sub(lastPublish) >= (time.Second / 60) {
			s.publishState(cur, link)
			lastPublish = now
		}
	}
}

func (s *Supervisor) tryOpen() (*transport.Handle, transport.Candidate, error) {
	cands, err := transport.Enumerate()
	if err != nil || len(cands) == 0 {
		if err == nil {
			err = engineerr.New(engineerr.TransportNotFound, "no controller enumerated")
		}
		return nil, transport.Candidate{}, err
	}
	h, err := transport.Open(cands[0])
	if err != nil {
		return nil, transport.Candidate{}, err
	}
	return h, cands[0], nil
}

func (s *Supervisor) teardownSession(handle *transport.Handle, mapEngine *mapping.Engine, synth *syntheticinput.Sink) {
	keys, buttons := mapEngine.ReleaseAll()
	synth.ReleaseAll(keys, buttons)
	s.hiderImpl.UnhideAll()
	s.vpad.Unplug()
	_ = handle.Close()
}

func (s *Supervisor) shutdown(mapEngine *mapping.Engine, synth *syntheticinput.Sink) {
	keys, buttons := mapEngine.ReleaseAll()
	synth.ReleaseAll(keys, buttons)
	s.hiderImpl.UnhideAll()
	s.vpad.Unplug()
}

func (s *Supervisor) publishState(cur engine.GamepadState, link *linkstate.Machine) {
	n := Notification{
		Kind:           NotifyStateUpdate,
		GamepadState:   cur,
		ConnectionMode: link.Transport(),
		BusDriverOK:    s.vpad.Available(),
		HiderOK:        true,
	}
	select {
	case s.notify <- n:
	default:
	}
}

// applyCommand applies one UI->engine command and reports whether it
// requires the worker loop to force-close the current transport.Handle and
// restart the reconnect loop (only CmdDisconnectController does).
func (s *Supervisor) applyCommand(cmd Command, link *linkstate.Machine) (forceTeardown bool) {
	reply := func(n Notification) {
		if cmd.Reply != nil {
			cmd.Reply <- n
		}
	}

	switch cmd.Kind {
	case CmdGetInitialState:
		reply(Notification{
			Kind:     NotifyInitialState,
			Mappings: s.mappings,
			Config:   s.config,
		})
	case CmdUpdateMappings:
		s.mappings = cmd.Mappings
	case CmdSetRGB:
		s.config.RGB = cmd.RGB
	case CmdSetPlayerLEDBrightness:
		s.config.PlayerLEDBrightness = cmd.PLEDLevel
	case CmdSetShowBatteryLED:
		s.config.ShowBatteryLED = cmd.ShowBatteryLED
	case CmdSetDeadzones:
		s.config.DeadzoneLeft = cmd.DeadzoneLeft
		s.config.DeadzoneRight = cmd.DeadzoneRight
	case CmdSetMouseSens:
		s.config.MouseSensLeft = cmd.MouseSensLeft
		s.config.MouseSensRight = cmd.MouseSensRight
	case CmdSetTouchpadSens:
		s.config.MouseSensTouchpad = cmd.TouchpadSens
	case CmdSetTriggerL2:
		s.config.TriggerL2 = cmd.Trigger
	case CmdSetTriggerR2:
		s.config.TriggerR2 = cmd.Trigger
	case CmdSetHideController:
		s.config.HideController = cmd.HideController
		if !cmd.HideController {
			s.hiderImpl.UnhideAll()
		}
	case CmdSaveProfile:
		err := s.profiles.SaveProfile(cmd.ProfileName, s.mappings, s.config)
		reply(errNotification(err))
	case CmdLoadProfile:
		mappings, cfg, err := s.profiles.LoadProfile(cmd.ProfileName)
		if err == nil {
			s.mappings = mappings
			s.config = cfg
		}
		reply(errNotification(err))
	case CmdDeleteProfile:
		err := s.profiles.DeleteProfile(cmd.ProfileName)
		reply(errNotification(err))
	case CmdGetProfiles:
		reply(Notification{Kind: NotifyProfiles, ProfileNames: s.profiles.List()})
	case CmdDisconnectController:
		link.Disconnect()
		forceTeardown = true
	case CmdTriggerDriverRefresh:
		reply(Notification{
			Kind:        NotifyStateUpdate,
			BusDriverOK: busdriver.CheckPrerequisites(s.logger),
		})
	}
	return forceTeardown
}

func errNotification(err error) Notification {
	if err != nil {
		return Notification{Kind: NotifyError, Err: err}
	}
	return Notification{Kind: NotifyError}
}
