//go:build linux

// Package hider is the Device Hider: it exclusively grabs
// the physical controller's evdev node with EVIOCGRAB so other processes
// stop seeing its input, the same technique
// dalmatheo-procon2-driver uses to hide the Pro Controller's kernel evdev
// node before exposing its own virtual pad.
package hider

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/hidbridge/padlink/internal/engineerr"
)

const eviocgrab = 0x40044590

// Hider owns the grabbed evdev handle(s) for the currently opened
// controller. On disconnect the caller clears it via Unhide.
type Hider struct {
	grabbed map[string]*os.File
}

func New() *Hider {
	return &Hider{grabbed: make(map[string]*os.File)}
}

// Hide exclusively grabs the evdev node at path for instanceID. Returns
// engineerr.HiderUnavailable-classified error (via the returned bool) if no
// evdev node exists or the grab ioctl fails.
func (h *Hider) Hide(instanceID, evdevPath string) (ok bool, err error) {
	if evdevPath == "" {
		return false, engineerr.New(engineerr.HiderUnavailable, "no evdev node resolved for "+instanceID)
	}
	f, err := os.OpenFile(evdevPath, os.O_RDONLY, 0)
	if err != nil {
		return false, engineerr.Wrap(engineerr.HiderUnavailable, "open "+evdevPath, err)
	}
	if ierr := ioctl(f.Fd(), eviocgrab, 1); ierr != nil {
		f.Close()
		return false, engineerr.Wrap(engineerr.HiderUnavailable, "EVIOCGRAB "+evdevPath, ierr)
	}
	h.grabbed[instanceID] = f
	return true, nil
}

// Unhide releases the grab on instanceID, if held.
func (h *Hider) Unhide(instanceID string) {
	f, ok := h.grabbed[instanceID]
	if !ok {
		return
	}
	_ = ioctl(f.Fd(), eviocgrab, 0)
	_ = f.Close()
	delete(h.grabbed, instanceID)
}

// UnhideAll releases every held grab; called on disconnect. Hiding applies
// exactly to the physical HID instances of the currently opened controller,
// so the grabbed set is cleared in full on disconnect.
func (h *Hider) UnhideAll() {
	for id := range h.grabbed {
		h.Unhide(id)
	}
}

func ioctl(fd uintptr, request uintptr, arg uintptr) error {
	return unix.IoctlSetInt(int(fd), uint(request), int(arg))
}
