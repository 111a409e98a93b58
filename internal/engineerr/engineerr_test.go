package engineerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hidbridge/padlink/internal/engineerr"
	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := engineerr.New(engineerr.ProfileNotFound, "My Profile")
	assert.Equal(t, "Profile.NotFound: My Profile", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapFormatsCause(t *testing.T) {
	cause := errors.New("permission denied")
	err := engineerr.Wrap(engineerr.TransportOpenDenied, "/dev/hidraw0", cause)
	assert.Equal(t, "Transport.OpenDenied: /dev/hidraw0: permission denied", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsUnwrapsThroughFmtErrorf(t *testing.T) {
	base := engineerr.New(engineerr.HiderUnavailable, "no evdev node")
	wrapped := fmt.Errorf("open session: %w", base)

	assert.True(t, engineerr.Is(wrapped, engineerr.HiderUnavailable))
	assert.False(t, engineerr.Is(wrapped, engineerr.BusDriverUnavailable))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, engineerr.Is(errors.New("plain"), engineerr.TransportNotFound))
	assert.False(t, engineerr.Is(nil, engineerr.TransportNotFound))
}

func TestRecoverable(t *testing.T) {
	recoverable := []engineerr.Kind{
		engineerr.TransportNotFound, engineerr.TransportOpenDenied, engineerr.TransportReadTimeout,
		engineerr.TransportReadFailed, engineerr.TransportWriteFailed,
		engineerr.ProtocolUnknownReportId, engineerr.ProtocolCrcBadOnHandshake,
		engineerr.BusDriverUnavailable, engineerr.HiderUnavailable, engineerr.VirtualPadPlugFailed,
	}
	for _, k := range recoverable {
		assert.True(t, engineerr.Recoverable(k), k.String())
	}

	notRecoverable := []engineerr.Kind{engineerr.ProfileNotFound, engineerr.ProfileNameInvalid}
	for _, k := range notRecoverable {
		assert.False(t, engineerr.Recoverable(k), k.String())
	}
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", engineerr.Kind(999).String())
}
