package vntpd

import (
	"encoding/binary"
	"time"
)

const nanoPerSec = 1e9

const (
	liVnModePos = iota
	stratumPos
	pollPos
	clockPrecisionPos
)

const (
	rootDelayPos = iota*4 + 4
	rootDispersionPos
	referIDPos
)

const (
	referenceTimeStamp = iota*8 + 16
	originTimeStamp
	receiveTimeStamp
	transmitTimeStamp
)

const (
	modeReserved uint8 = iota
	modeSymmetricActive
	modeSymmetricPassive
	modeClient
	modeServer
	modeBroadcast
	modeControlMessage
	modeReservedPrivate
)

const (
	packetSize = 48

	defaultStratum   = 2
	defaultPoll      = 1
	defaultPrecision = -20

	// LOCL | uncalibrated local clock
	localRefID = 0x4c4f434c
)

var ntpEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// toNtpTime converts t to the 64bit fixed point NTP format:
// seconds since 1900-01-01T00:00:00 UTC in the high half,
// fraction scaled by 2^32 in the low half. t must not precede
// the NTP epoch; seconds overflow past 2036 is not handled.
func toNtpTime(t time.Time) uint64 {
	nsec := uint64(t.UTC().Sub(ntpEpoch))
	sec := nsec / nanoPerSec
	frac := (nsec - sec*nanoPerSec) << 32 / nanoPerSec
	return sec<<32 | frac
}

// fromNtpTime is the inverse of toNtpTime, rounded to microseconds.
// The wire fraction resolves ~233ps but sub-microsecond detail is
// deliberately discarded, so a round trip holds only to 1us.
func fromNtpTime(ts uint64) time.Time {
	sec := ts >> 32
	usec := ((ts&0xffffffff)*1e6 + 1<<31) >> 32
	return ntpEpoch.Add(time.Duration(sec)*time.Second +
		time.Duration(usec)*time.Microsecond)
}

// toNtpShortTime converts d to the 16.16 fixed point format used
// by the root delay and root dispersion fields.
func toNtpShortTime(d time.Duration) uint32 {
	sec := d / nanoPerSec
	frac := (d - sec*nanoPerSec) << 16 / nanoPerSec
	return uint32(sec<<16 | frac)
}

func setLi(m []byte, li uint8) {
	m[0] = (m[0] & 0x3f) | li<<6
}

func setVersion(m []byte, v uint8) {
	m[0] = (m[0] & 0xc7) | v<<3
}

func setMode(m []byte, mode uint8) {
	m[0] = (m[0] & 0xf8) | mode
}

func setUint8(m []byte, index int, value uint8) {
	m[index] = value
}

func setInt8(m []byte, index int, value int8) {
	m[index] = byte(value)
}

func setUint32(m []byte, index int, value uint32) {
	binary.BigEndian.PutUint32(m[index:], value)
}

func setUint64(m []byte, index int, value uint64) {
	binary.BigEndian.PutUint64(m[index:], value)
}

// parseRequest extracts the origin timestamp to echo back to the
// client. Anything under 48 bytes is rejected; nothing else in the
// header, version and mode included, is inspected. Any datagram
// long enough to carry the field gets an answer.
func parseRequest(p []byte) (origin uint64, ok bool) {
	if len(p) < packetSize {
		return 0, false
	}
	return binary.BigEndian.Uint64(p[originTimeStamp:]), true
}

// newTemplate builds the fixed part of every response: flags,
// identity fields and the 1ms root delay/dispersion claim. The
// per-request timestamps are stamped over a copy by makeResponse.
func newTemplate(stratum uint8, refID uint32) (t []byte) {
	t = make([]byte, packetSize)
	setLi(t, 0)
	setVersion(t, 4)
	setMode(t, modeServer)
	setUint8(t, stratumPos, stratum)
	setInt8(t, pollPos, defaultPoll)
	setInt8(t, clockPrecisionPos, defaultPrecision)
	setUint32(t, rootDelayPos, toNtpShortTime(time.Millisecond))
	setUint32(t, rootDispersionPos, toNtpShortTime(time.Millisecond))
	setUint32(t, referIDPos, refID)
	return
}

// makeResponse assembles one 48 byte response. The origin field
// carries the client value verbatim; reference equals transmit since
// the local clock is the claimed source.
func makeResponse(tmpl []byte, origin uint64, recv, xmit time.Time) []byte {
	p := make([]byte, packetSize)
	copy(p, tmpl)
	setUint64(p, referenceTimeStamp, toNtpTime(xmit))
	setUint64(p, originTimeStamp, origin)
	setUint64(p, receiveTimeStamp, toNtpTime(recv))
	setUint64(p, transmitTimeStamp, toNtpTime(xmit))
	return p
}
