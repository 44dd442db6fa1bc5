package frame

import (
	"fmt"

	"github.com/robotalks/framelink/pkg/l0/ring"
)

// Config defines the capacities and wire markers of a Link.
// Both directions use the same capacities.
type Config struct {
	// BufSize is the size of the byte buffer, a power of two.
	// A packet holds at most BufSize-1 bytes.
	BufSize int
	// Slots is the size of the boundary ring, a power of two.
	// TX queues up to Slots-1 packets, RX up to Slots-2.
	Slots   int
	Markers Markers
}

// MinSlots is the smallest usable boundary ring.
const MinSlots = 4

// DefaultConfig sizes the link for a small microcontroller: 128 bytes and
// 8 packet slots per direction.
var DefaultConfig = Config{
	BufSize: 128,
	Slots:   8,
	Markers: DefaultMarkers,
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field string
	Err   error
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Validate checks the config.
func (c Config) Validate() error {
	if !ring.ValidCapacity(c.BufSize) {
		return &ConfigError{Field: "BufSize", Err: ring.ErrCapacity}
	}
	if !ring.ValidCapacity(c.Slots) {
		return &ConfigError{Field: "Slots", Err: ring.ErrCapacity}
	}
	if c.Slots < MinSlots {
		return &ConfigError{Field: "Slots", Err: fmt.Errorf("less than %d", MinSlots)}
	}
	if err := c.Markers.Validate(); err != nil {
		return &ConfigError{Field: "Markers", Err: err}
	}
	return nil
}
