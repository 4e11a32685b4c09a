package vntpd

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func newTestService(t *testing.T, cfg *Config) (*Service, net.Conn) {
	t.Helper()
	cfg.Listen = "127.0.0.1:0"
	s, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Shutdown() })

	conn, err := net.Dial("udp", s.conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return s, conn
}

func TestServeVirtualClock(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	_, conn := newTestService(t, &Config{
		WorkerNum: 1,
		BaseTime:  "2024-01-15T10:30:00Z",
	})

	req := make([]byte, 48)
	setVersion(req, 4)
	setMode(req, modeClient)
	if _, err := conn.Write(req); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp := make([]byte, 64)
	n, err := conn.Read(resp)
	if err != nil {
		t.Fatal(err)
	}
	if n != 48 {
		t.Fatal(n)
	}
	if resp[liVnModePos] != 0x24 {
		t.Fatalf("flags %#x", resp[0])
	}
	if got := binary.BigEndian.Uint64(resp[originTimeStamp:]); got != 0 {
		t.Fatal(got)
	}
	xmit := fromNtpTime(binary.BigEndian.Uint64(resp[transmitTimeStamp:]))
	if d := xmit.Sub(base); d < 0 || d > 2*time.Second {
		t.Fatalf("transmit %s not near base, off by %s", xmit, d)
	}
}

func TestServeOriginEcho(t *testing.T) {
	_, conn := newTestService(t, &Config{WorkerNum: 1})

	req := make([]byte, 48)
	binary.BigEndian.PutUint64(req[originTimeStamp:], 0xdeadbeefcafebabe)
	if _, err := conn.Write(req); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp := make([]byte, 64)
	if _, err := conn.Read(resp); err != nil {
		t.Fatal(err)
	}
	if got := binary.BigEndian.Uint64(resp[originTimeStamp:]); got != 0xdeadbeefcafebabe {
		t.Fatalf("%x", got)
	}
}

func TestServeDropsShort(t *testing.T) {
	_, conn := newTestService(t, &Config{WorkerNum: 1})

	if _, err := conn.Write(make([]byte, 47)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 64)); err == nil {
		t.Fatal("short request answered")
	}
}

func TestServeDropsACL(t *testing.T) {
	_, conn := newTestService(t, &Config{
		WorkerNum: 1,
		DropCIDR:  []string{"127.0.0.0/8"},
	})

	if _, err := conn.Write(make([]byte, 48)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 64)); err == nil {
		t.Fatal("dropped client answered")
	}
}

func TestServeRateLimit(t *testing.T) {
	_, conn := newTestService(t, &Config{
		WorkerNum:  1,
		ReqRateSec: 60,
	})

	if _, err := conn.Write(make([]byte, 48)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 64)); err != nil {
		t.Fatal(err)
	}

	if _, err := conn.Write(make([]byte, 48)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 64)); err == nil {
		t.Fatal("second request in interval answered")
	}
}

func TestServeTransmitFromReceive(t *testing.T) {
	// with a passthrough clock the transmit instant is the receive
	// instant, so the two fields must match exactly
	_, conn := newTestService(t, &Config{WorkerNum: 1})

	if _, err := conn.Write(make([]byte, 48)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp := make([]byte, 64)
	if _, err := conn.Read(resp); err != nil {
		t.Fatal(err)
	}
	recvTS := binary.BigEndian.Uint64(resp[receiveTimeStamp:])
	xmitTS := binary.BigEndian.Uint64(resp[transmitTimeStamp:])
	if recvTS != xmitTS {
		t.Fatalf("recv=%x xmit=%x", recvTS, xmitTS)
	}
}

func TestServeWorkerFault(t *testing.T) {
	cfg := &Config{Listen: "127.0.0.1:0", WorkerNum: 1}
	cfg.normalize()
	uc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	// drop table left nil so the first request blows up the worker
	s := &Service{
		cfg:      cfg,
		conn:     uc,
		clock:    newSystemClock(),
		template: newTemplate(defaultStratum, localRefID),
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve() }()

	conn, err := net.Dial("udp", uc.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write(make([]byte, 48)); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("fault swallowed, Serve returned nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after worker fault")
	}
}

func TestShutdownReleasesSocket(t *testing.T) {
	cfg := &Config{Listen: "127.0.0.1:0", WorkerNum: 2}
	s, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.Serve()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := s.Shutdown(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not drain after shutdown")
	}
}
