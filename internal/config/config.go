// Package config defines the padlinkd command-line surface: the bridge
// daemon itself (run), profile management, systemd service installation,
// and controller enumeration, each as its own per-command config struct.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hidbridge/padlink/internal/cmd"
	"github.com/hidbridge/padlink/internal/log"
	"github.com/hidbridge/padlink/internal/profile"
	"github.com/hidbridge/padlink/internal/supervisor"
	"github.com/hidbridge/padlink/internal/transport"
	"github.com/hidbridge/padlink/internal/virtualpad"
	usbsrv "github.com/hidbridge/padlink/internal/server/usb"
)

// CLI is the top-level Kong command tree for the padlinkd binary.
type CLI struct {
	Log struct {
		Level   string `help:"Log level (trace, debug, info, warn, error)." default:"info" enum:"trace,debug,info,warn,error"`
		File    string `help:"Mirror logs to this file in addition to stdout/stderr."`
		RawFile string `help:"Write raw HID input/output report bytes to this file for diagnostics."`
	} `embed:"" prefix:"log."`

	Run     RunCommand            `cmd:"" default:"1" help:"Run the controller bridge daemon."`
	Profile ProfileCommand        `cmd:"" help:"Manage saved mapping/config profiles."`
	Service cmd.ServiceCommand    `cmd:"" help:"Install or remove the padlinkd systemd service."`
	Devices DevicesCommand        `cmd:"" help:"List connected Sony DualSense/DualShock4 controllers."`
	Config  ConfigScaffoldCommand `cmd:"" help:"Generate a padlinkd configuration file template."`
}

// RunCommand starts the bridge daemon: opens the profile store, starts the
// virtual pad sink, and runs the supervisor worker loop until interrupted.
type RunCommand struct {
	ProfilePath string           `help:"Path to the profile store (defaults to the platform config dir)."`
	UsbServerConfig usbsrv.ServerConfig `embed:"" prefix:"usb."`
}

// Run is called by Kong when the run command is executed.
func (r *RunCommand) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := profile.Open(r.ProfilePath)
	if err != nil {
		return fmt.Errorf("padlinkd: open profile store: %w", err)
	}
	if store.Migrated {
		logger.Warn("profile store schema was newer than this build supports, reset to Default")
	}

	vpad, err := virtualpad.New(r.UsbServerConfig.Addr, logger, rawLogger)
	if err != nil {
		return fmt.Errorf("padlinkd: start virtual pad sink: %w", err)
	}
	defer func() { _ = vpad.Close() }()

	sup := supervisor.New(logger, store, vpad)
	logger.Info("padlinkd running", "usb_addr", r.UsbServerConfig.Addr)
	sup.Run(ctx)
	return nil
}

// ProfileCommand groups profile management subcommands.
type ProfileCommand struct {
	Path string `help:"Path to the profile store (defaults to the platform config dir)." group:"profile"`

	List   ProfileList   `cmd:"" help:"List saved profile names."`
	Save   ProfileSave   `cmd:"" help:"Save the current profile's engine config as a new or existing profile."`
	Load   ProfileLoad   `cmd:"" help:"Make a saved profile the current profile."`
	Delete ProfileDelete `cmd:"" help:"Delete a saved profile (the Default profile cannot be deleted)."`
}

// ProfileList prints every saved profile name.
type ProfileList struct {
	Path string `help:"Path to the profile store (defaults to the platform config dir)."`
}

func (c *ProfileList) Run(logger *slog.Logger) error {
	store, err := profile.Open(c.Path)
	if err != nil {
		return err
	}
	for _, name := range store.List() {
		fmt.Println(name)
	}
	return nil
}

// ProfileSave duplicates the current profile under a new name and makes it
// current.
type ProfileSave struct {
	Path string `help:"Path to the profile store (defaults to the platform config dir)."`
	Name string `arg:"" help:"Name to save the current profile as."`
}

func (c *ProfileSave) Run(logger *slog.Logger) error {
	store, err := profile.Open(c.Path)
	if err != nil {
		return err
	}
	_, mappings, cfg, err := store.Current()
	if err != nil {
		return err
	}
	if err := store.SaveProfile(c.Name, mappings, cfg); err != nil {
		return err
	}
	logger.Info("profile saved", "name", c.Name)
	return nil
}

// ProfileLoad makes a saved profile current.
type ProfileLoad struct {
	Path string `help:"Path to the profile store (defaults to the platform config dir)."`
	Name string `arg:"" help:"Name of the profile to load."`
}

func (c *ProfileLoad) Run(logger *slog.Logger) error {
	store, err := profile.Open(c.Path)
	if err != nil {
		return err
	}
	if _, _, err := store.LoadProfile(c.Name); err != nil {
		return err
	}
	logger.Info("profile loaded", "name", c.Name)
	return nil
}

// ProfileDelete removes a saved profile.
type ProfileDelete struct {
	Path string `help:"Path to the profile store (defaults to the platform config dir)."`
	Name string `arg:"" help:"Name of the profile to delete."`
}

func (c *ProfileDelete) Run(logger *slog.Logger) error {
	store, err := profile.Open(c.Path)
	if err != nil {
		return err
	}
	if err := store.DeleteProfile(c.Name); err != nil {
		return err
	}
	logger.Info("profile deleted", "name", c.Name)
	return nil
}

// DevicesCommand lists connected controllers, the same enumeration the run
// command uses to pick a controller to bridge.
type DevicesCommand struct {
	List DevicesList `cmd:"" default:"1" help:"List connected controllers and their resolved device nodes."`
}

// DevicesList enumerates Sony DualSense/DualShock4 controllers.
type DevicesList struct{}

func (c *DevicesList) Run(logger *slog.Logger) error {
	cands, err := transport.Enumerate()
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		fmt.Println("no controllers found")
		return nil
	}
	for _, cand := range cands {
		kind := "USB"
		if cand.IsBluetooth {
			kind = "Bluetooth"
		}
		fmt.Printf("bus=%d addr=%d product=0x%04x transport=%s hidraw=%s evdev=%s\n",
			cand.Bus, cand.Address, cand.ProductID, kind, cand.HidrawPath, cand.EvdevPath)
	}
	return nil
}
