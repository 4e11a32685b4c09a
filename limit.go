package vntpd

import (
	"net/netip"
	"sync"
	"time"
)

// secondLimiter allows each client one answer per interval. The
// minute is split into interval-wide buckets; a client lands in the
// bucket of its arrival second and stays there until the bucket is
// recycled.
type secondLimiter struct {
	mu       sync.Mutex
	interval int
	bucket   []map[netip.Addr]struct{}
}

func newLimiter(interval int) *secondLimiter {
	if interval < 1 {
		interval = 1
	}
	// one bucket minimum, intervals past a minute collapse into it
	if interval > 60 {
		interval = 60
	}
	m := make([]map[netip.Addr]struct{}, 60/interval)
	for i := range m {
		m[i] = map[netip.Addr]struct{}{}
	}
	return &secondLimiter{interval: interval, bucket: m}
}

func (l *secondLimiter) index(ts time.Time) int {
	return (ts.Second() / l.interval) % len(l.bucket)
}

func (l *secondLimiter) allow(ip netip.Addr, ts time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	buck := l.bucket[l.index(ts)]
	if _, in := buck[ip]; in {
		return false
	}
	buck[ip] = struct{}{}
	return true
}

func (l *secondLimiter) clear(ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(ts)
	l.bucket[i] = make(map[netip.Addr]struct{}, len(l.bucket[i])/2)
}

// run recycles the upcoming bucket ahead of the wall clock reaching
// it. Runs for the life of the process.
func (l *secondLimiter) run() {
	step := time.Duration(l.interval) * time.Second
	t := time.NewTicker(step)
	for ts := range t.C {
		l.clear(ts.Add(step))
	}
}
