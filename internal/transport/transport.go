//go:build linux

// Package transport is the HID Transport: it enumerates
// Sony controllers over USB, resolves the matching /dev/hidrawN node by
// walking sysfs exactly as dalmatheo-procon2-driver's
// GetHidrawForUSB/matchesUSBDevice do, classifies USB vs Bluetooth from
// that sysfs walk, and performs timed reads plus feature/output report
// writes (the feature-report writes and reads going through HIDIOCSFEATURE/HIDIOCGFEATURE
// ioctls issued via golang.org/x/sys/unix, the same ioctl-via-x/sys pattern
// HopIT-Hub-R1-Control and dalmatheo-procon2-driver use for device ioctls).
package transport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"github.com/google/gousb"
	"golang.org/x/sys/unix"

	"github.com/hidbridge/padlink/internal/engineerr"
)

// Sony vendor id and DualSense/DualShock4 product ids.
const (
	VendorSony = 0x054C

	ProductDualSense  = 0x0CE6
	ProductDS4V1      = 0x05C4
	ProductDS4V2      = 0x09CC
)

// Candidate is one enumerated controller, resolved to both its USB identity
// and its hidraw/evdev device nodes.
type Candidate struct {
	Bus, Address int
	ProductID    uint16
	HidrawPath   string
	EvdevPath    string
	IsBluetooth  bool
}

// Enumerate walks the USB device tree for Sony DualSense/DualShock4
// vendor/product ids and resolves each to a hidraw node.
func Enumerate() ([]Candidate, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != gousb.ID(VendorSony) {
			return false
		}
		switch desc.Product {
		case gousb.ID(ProductDualSense), gousb.ID(ProductDS4V1), gousb.ID(ProductDS4V2):
			return true
		}
		return false
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.TransportNotFound, "usb enumeration failed", err)
	}

	var out []Candidate
	for _, dev := range devs {
		bus, addr := dev.Desc.Bus, dev.Desc.Address
		path, herr := hidrawForUSB(bus, addr)
		isBT := herr != nil || looksBluetooth(path)
		evdevPath, _ := evdevForUSB(bus, addr)
		out = append(out, Candidate{
			Bus: bus, Address: addr,
			ProductID:   uint16(dev.Desc.Product),
			HidrawPath:  path,
			EvdevPath:   evdevPath,
			IsBluetooth: isBT,
		})
		dev.Close()
	}
	return out, nil
}

// Handle is an open HID connection plus the descriptors needed to issue
// feature-report ioctls.
type Handle struct {
	f *os.File
}

// Open opens the candidate's hidraw node.
func Open(c Candidate) (*Handle, error) {
	if c.HidrawPath == "" {
		return nil, engineerr.New(engineerr.TransportNotFound, "no hidraw node resolved")
	}
	f, err := os.OpenFile(c.HidrawPath, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, engineerr.Wrap(engineerr.TransportOpenDenied, c.HidrawPath, err)
		}
		return nil, engineerr.Wrap(engineerr.TransportNotFound, c.HidrawPath, err)
	}
	return &Handle{f: f}, nil
}

// Close releases the hidraw handle.
func (h *Handle) Close() error {
	if h == nil || h.f == nil {
		return nil
	}
	return h.f.Close()
}

// Read blocks for up to timeout for one input report. Read never retries;
// callers classify three consecutive Timeout/Error results within 200ms as
// disconnection.
func (h *Handle) Read(buf []byte, timeout time.Duration) (int, error) {
	_ = h.f.SetReadDeadline(time.Now().Add(timeout))
	n, err := h.f.Read(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return 0, engineerr.Wrap(engineerr.TransportReadTimeout, "hidraw read", err)
		}
		return 0, engineerr.Wrap(engineerr.TransportReadFailed, "hidraw read", err)
	}
	return n, nil
}

// WriteOutput issues a plain write(2) of an output report.
func (h *Handle) WriteOutput(report []byte) error {
	if _, err := h.f.Write(report); err != nil {
		return engineerr.Wrap(engineerr.TransportWriteFailed, "hidraw write", err)
	}
	return nil
}

// WriteFeature issues HIDIOCSFEATURE with report as the buffer (report[0]
// is the report id, as hidraw expects).
func (h *Handle) WriteFeature(report []byte) error {
	if err := hidIoctl(h.f.Fd(), hidiocSFeature(len(report)), report); err != nil {
		return engineerr.Wrap(engineerr.TransportWriteFailed, "HIDIOCSFEATURE", err)
	}
	return nil
}

// ReadFeature issues HIDIOCGFEATURE, filling buf (buf[0] must already hold
// the report id being requested, per the hidraw ABI).
func (h *Handle) ReadFeature(buf []byte) error {
	if err := hidIoctl(h.f.Fd(), hidiocGFeature(len(buf)), buf); err != nil {
		return engineerr.Wrap(engineerr.TransportReadFailed, "HIDIOCGFEATURE", err)
	}
	return nil
}

// Linux ioctl request encoding (asm-generic/ioctl.h) for hidraw's
// variable-length HIDIOCSFEATURE/HIDIOCGFEATURE, whose request number
// depends on the buffer size.
const (
	iocWrite    = 1
	iocRead     = 2
	iocNrShift  = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uint) uint {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func hidiocSFeature(len int) uint { return ioc(iocWrite|iocRead, 'H', 0x06, uint(len)) }
func hidiocGFeature(len int) uint { return ioc(iocWrite|iocRead, 'H', 0x07, uint(len)) }

func hidIoctl(fd uintptr, req uint, buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("empty feature report buffer")
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// hidrawForUSB resolves /sys/class/hidraw/*/device to the matching
// busnum/devnum pair, mirroring matchesUSBDevice's sysfs walk.
func hidrawForUSB(targetBus, targetAddr int) (string, error) {
	entries, err := os.ReadDir("/sys/class/hidraw")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "hidraw") {
			continue
		}
		devPath := filepath.Join("/sys/class/hidraw", e.Name(), "device")
		if matchesUSBDevice(devPath, targetBus, targetAddr) {
			return "/dev/" + e.Name(), nil
		}
	}
	return "", fmt.Errorf("no hidraw device found for bus %d addr %d", targetBus, targetAddr)
}

// evdevForUSB resolves /sys/class/input/eventN/device to the matching
// busnum/devnum pair, mirroring dalmatheo-procon2-driver's GetEvdevForUSB;
// the resolved node is what internal/hider grabs with EVIOCGRAB.
func evdevForUSB(targetBus, targetAddr int) (string, error) {
	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		devPath := filepath.Join("/sys/class/input", e.Name(), "device")
		if matchesUSBDevice(devPath, targetBus, targetAddr) {
			return filepath.Join("/dev/input", e.Name()), nil
		}
	}
	return "", fmt.Errorf("no evdev node found for bus %d addr %d", targetBus, targetAddr)
}

func matchesUSBDevice(startPath string, targetBus, targetAddr int) bool {
	real, err := filepath.EvalSymlinks(startPath)
	if err != nil {
		return false
	}
	dir := real
	for i := 0; i < 6; i++ {
		busFile := filepath.Join(dir, "busnum")
		devFile := filepath.Join(dir, "devnum")
		if fileExists(busFile) && fileExists(devFile) {
			bus, _ := readIntFile(busFile)
			addr, _ := readIntFile(devFile)
			return bus == targetBus && addr == targetAddr
		}
		dir = filepath.Clean(filepath.Join(dir, ".."))
		if dir == "/" || dir == "." {
			break
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// looksBluetooth reads the hidraw node's device/uevent for a HID_PHYS value
// that is a BT MAC-style address (aa:bb:cc:dd:ee:ff), the signal used to
// report whether the device is connected via USB or Bluetooth.
func looksBluetooth(hidrawPath string) bool {
	if hidrawPath == "" {
		return false
	}
	name := filepath.Base(hidrawPath)
	data, err := os.ReadFile(filepath.Join("/sys/class/hidraw", name, "device/uevent"))
	if err != nil {
		return false
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if phys, ok := bytes.CutPrefix(line, []byte("HID_PHYS=")); ok {
			return len(phys) == 17 && bytes.Count(phys, []byte(":")) == 5
		}
	}
	return false
}
