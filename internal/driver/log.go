// SPDX-License-Identifier: GPL-3.0-only

package driver

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Log is a dry-run driver. It keeps the last fraction of every channel and
// logs each write at debug level.
type Log struct {
	mu        sync.Mutex
	names     []string
	fractions []float64
}

// NewLog creates a dry-run driver for channels with the given names.
func NewLog(names []string) *Log {
	return &Log{
		names:     names,
		fractions: make([]float64, len(names)),
	}
}

// SetDutyFraction implements mixer.ChannelDriver.
func (l *Log) SetDutyFraction(channel int, fraction float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if channel < 0 || channel >= len(l.fractions) {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}

	if l.fractions[channel] != fraction {
		log.Debug().
			Str("channel", l.names[channel]).
			Float64("fraction", fraction).
			Msg("Set duty fraction")
	}
	l.fractions[channel] = fraction
	return nil
}

// Fractions returns a copy of the last fraction of every channel.
func (l *Log) Fractions() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]float64, len(l.fractions))
	copy(out, l.fractions)
	return out
}

// Close implements io.Closer.
func (l *Log) Close() error {
	return nil
}
