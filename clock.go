package vntpd

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Layouts tried for zone-less time strings, which are taken as UTC.
// time.Parse accepts a fractional seconds suffix without a layout
// marker, so these cover "2006-01-02 15:04:05.999" too.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ServerClock decides what time the server claims it is. With no
// configured base it reflects the system clock. With one, the claim
// starts at the base instant and advances at real-world rate, so
// repeated polls always see forward progress. Immutable once built;
// safe to share across workers.
type ServerClock struct {
	base    time.Time
	started time.Time
	virtual bool
}

func newSystemClock() *ServerClock {
	return &ServerClock{}
}

func newVirtualClock(base, started time.Time) *ServerClock {
	return &ServerClock{base: base.UTC(), started: started, virtual: true}
}

// newClock builds the clock from the configured base time string,
// empty meaning the system clock.
func newClock(baseTime string) (*ServerClock, error) {
	if baseTime == "" {
		return newSystemClock(), nil
	}
	base, err := parseBaseTime(baseTime)
	if err != nil {
		return nil, err
	}
	return newVirtualClock(base, time.Now()), nil
}

// Transmit reports the claimed time at the real instant realNow.
func (c *ServerClock) Transmit(realNow time.Time) time.Time {
	if !c.virtual {
		return realNow
	}
	return c.base.Add(realNow.Sub(c.started))
}

func (c *ServerClock) Virtual() bool {
	return c.virtual
}

// Offset is the constant gap between the claimed and the real clock.
func (c *ServerClock) Offset() time.Duration {
	if !c.virtual {
		return 0
	}
	return c.base.Sub(c.started)
}

// parseBaseTime accepts a Unix timestamp (integer or fractional),
// then RFC 3339, then the naive layouts. A base before 1900 or past
// the 2036 rollover is the operator's problem, same as upstream ntp
// tooling treats it.
func parseBaseTime(s string) (time.Time, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time string: %q", s)
}
