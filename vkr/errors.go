package vkr

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrNoSuitableDevice is returned when no physical device can run the
	// renderer.
	ErrNoSuitableDevice = errors.New("failed to find a suitable physical device")

	// ErrMissingExtension is returned when a required instance or device
	// extension is not available.
	ErrMissingExtension = errors.New("required extension is not available")

	// ErrMissingLayer is returned when validation was requested but the
	// validation layers are not installed.
	ErrMissingLayer = errors.New("validation layers requested but not available")

	// ErrUnsupportedLayoutTransition is returned for image layout transitions
	// the backend does not know the access masks for.
	ErrUnsupportedLayoutTransition = errors.New("unsupported layout transition")

	// ErrNoMemoryType is returned when no memory type has the requested
	// properties.
	ErrNoMemoryType = errors.New("failed to find suitable memory type")

	// ErrNoFormat is returned when none of the candidate formats is supported.
	ErrNoFormat = errors.New("could not find suitable format")
)
