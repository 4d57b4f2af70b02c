// Package toml adds support to marshal and unmarshal types not in the official TOML spec.
package toml // import "github.com/teleinfo-cn/idpointer/toml"

import (
	"fmt"
	"time"
)

// Duration is a TOML wrapper type for time.Duration.
type Duration time.Duration

// String returns the string representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a TOML value into a duration value.
func (d *Duration) UnmarshalText(text []byte) error {
	// Ignore if there is no value set.
	if len(text) == 0 {
		return nil
	}

	// Otherwise parse as a duration formatted string.
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	// Set duration and return.
	*d = Duration(duration)
	return nil
}

// MarshalText converts a duration to a string for decoding toml
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}

// Size represents a TOML parseable file size.
// Users can specify size using "k" or "K" for kibibytes, "m" or "M" for mebibytes,
// and "g" or "G" for gibibytes. If a size suffix isn't specified then bytes are assumed.
type Size uint64

// UnmarshalText parses a byte size from text.
func (s *Size) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return fmt.Errorf("size was empty")
	}

	// The multiplier defaults to 1 in case the size has no suffix.
	mult := uint64(1)

	// Preserve the original text for error messages.
	orig := string(text)

	suffix := text[len(text)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		text = text[:len(text)-1]
	case 'm', 'M':
		mult = 1 << 20
		text = text[:len(text)-1]
	case 'g', 'G':
		mult = 1 << 30
		text = text[:len(text)-1]
	}

	var size uint64
	for _, d := range text {
		if d < '0' || d > '9' {
			return fmt.Errorf("invalid size: %s", orig)
		}
		size = size*10 + uint64(d-'0')
	}
	*s = Size(size * mult)
	return nil
}
