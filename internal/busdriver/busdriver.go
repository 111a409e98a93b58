//go:build linux

// Package busdriver realizes the kernel-mode bus driver on Linux: it
// shells out to the usbip client to attach/detach the exported virtual
// devices into the kernel's vhci-hcd driver, and probes whether the
// prerequisites (the usbip tool, the vhci-hcd module) are actually present.
package busdriver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/hidbridge/padlink/usbip"
)

// Attach runs `usbip attach -r localhost -b <bus>-<dev>` against the given
// export, the same invocation pattern as a standard USB/IP auto-attach helper.
func Attach(ctx context.Context, meta *usbip.ExportMeta, serverPort uint16, logger *slog.Logger) error {
	logger.Info("attaching virtual pad into vhci-hcd", "busID", meta.BusId, "deviceID", meta.DevId)

	cmd := exec.CommandContext(ctx, "usbip",
		"--tcp-port", strconv.FormatUint(uint64(serverPort), 10),
		"attach",
		"-r", "localhost",
		"-b", fmt.Sprintf("%d-%d", meta.BusId, meta.DevId),
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("usbip attach failed", "error", err, "port", serverPort, "output", string(output))
		return err
	}
	logger.Debug("usbip attach output", "output", string(output))
	return nil
}

// Port identifies an attached vhci-hcd port as reported by `usbip port`,
// needed to detach a specific device without tearing down unrelated ports.
type Port struct {
	Port int
	BusID string
}

// Detach runs `usbip detach -p <port>`.
func Detach(ctx context.Context, port int, logger *slog.Logger) error {
	cmd := exec.CommandContext(ctx, "usbip", "detach", "-p", strconv.Itoa(port))
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("usbip detach failed", "error", err, "port", port, "output", string(output))
		return err
	}
	logger.Debug("usbip detach output", "output", string(output))
	return nil
}

// CheckPrerequisites reports whether both the usbip CLI and the vhci-hcd
// kernel module are available, logging actionable install instructions
// when they aren't. This is reprobed by the supervisor's
// driver-refresh command without tearing down an active session.
func CheckPrerequisites(logger *slog.Logger) bool {
	allOK := true

	if _, err := exec.LookPath("usbip"); err != nil {
		logger.Warn("usbip tool not found in PATH")
		logger.Info("Install usbip: apt install linux-tools-generic, or pacman -S usbip")
		allOK = false
	} else {
		logger.Debug("usbip tool found in PATH")
	}

	data, err := os.ReadFile("/proc/modules")
	if err != nil {
		logger.Debug("could not read /proc/modules", "error", err)
	} else if !bytes.Contains(data, []byte("vhci_hcd")) {
		logger.Warn("vhci-hcd kernel module is not loaded")
		logger.Info("Load it now: sudo modprobe vhci-hcd")
		allOK = false
	} else {
		logger.Debug("vhci-hcd kernel module is loaded")
	}

	return allOK
}
