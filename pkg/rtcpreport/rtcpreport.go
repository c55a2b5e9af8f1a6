// Package rtcpreport contains utilities to generate RTCP sender and receiver reports.
package rtcpreport

import (
	"crypto/rand"
	"math"
	"sync/atomic"
	"time"
)

// seconds between 1st January 1900 and 1st January 1970.
const ntpEpochOffset = 2208988800

// ntpEncode encodes a timestamp in NTP format.
// higher 32 bits are the integer part, lower 32 bits are the fractional part.
func ntpEncode(t time.Time) uint64 {
	ntp := uint64(t.UnixNano()) + ntpEpochOffset*1000000000
	secs := ntp / 1000000000
	fractional := uint64(math.Round(float64((ntp%1000000000)*(1<<32)) / 1000000000))
	return secs<<32 | fractional
}

// ntpDecode decodes a timestamp in NTP format.
func ntpDecode(v uint64) time.Time {
	secs := int64((v >> 32) - ntpEpochOffset)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1000000000) / (1 << 32))))
	return time.Unix(secs, nanos)
}

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// periodic runs a function periodically until it is closed.
type periodic struct {
	terminate chan struct{}
	done      chan struct{}
	inside    atomic.Bool
}

func newPeriodic(period time.Duration, f func()) *periodic {
	p := &periodic{
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.run(period, f)
	return p
}

func (p *periodic) run(period time.Duration, f func()) {
	defer close(p.done)

	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.inside.Store(true)
			f()
			p.inside.Store(false)

		case <-p.terminate:
			return
		}
	}
}

// close stops the routine.
// When called by f, it returns without waiting, and the routine exits after f.
func (p *periodic) close() {
	close(p.terminate)

	if !p.inside.Load() {
		<-p.done
	}
}
