package vntpd

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"
)

type Service struct {
	cfg      *Config
	conn     *net.UDPConn
	clock    *ServerClock
	template []byte
	stats    *statistic
	drop     *dropTable
	limiter  *secondLimiter
}

func NewService(cfg *Config) (s *Service, err error) {
	cfg.normalize()
	s = &Service{cfg: cfg}

	s.clock, err = newClock(cfg.BaseTime)
	if err != nil {
		return nil, err
	}

	refID, err := refIDToUint32(cfg.RefID)
	if err != nil {
		return nil, err
	}
	s.template = newTemplate(cfg.Stratum, refID)

	s.drop, err = newDropTable(cfg.DropCIDR)
	if err != nil {
		return nil, err
	}

	if cfg.ReqRateSec > 0 {
		s.limiter = newLimiter(cfg.ReqRateSec)
	}

	lc := net.ListenConfig{Control: udpControl}
	pc, err := lc.ListenPacket(context.Background(), "udp", cfg.Listen)
	if err != nil {
		return nil, err
	}
	s.conn = pc.(*net.UDPConn)

	if cfg.Metric != "" {
		s.stats, err = newStatistic(cfg)
		if err != nil {
			s.conn.Close()
			return nil, err
		}
		s.stats.offsetGauge.Set(s.clock.Offset().Seconds())
	}
	return s, nil
}

// Serve answers requests until the socket is closed by Shutdown.
func (s *Service) Serve() error {
	if s.clock.Virtual() {
		Info.Printf("claiming virtual time %s (offset %s)",
			s.clock.Transmit(time.Now()).Format(time.RFC3339), s.clock.Offset())
	} else {
		Info.Print("claiming system time")
	}
	Info.Printf("start listen: %s", s.conn.LocalAddr())

	if s.limiter != nil {
		Info.Printf("limiter %d", s.cfg.ReqRateSec)
		go s.limiter.run()
	}

	var wg sync.WaitGroup
	faults := make(chan error, s.cfg.WorkerNum)
	for i := 0; i < s.cfg.WorkerNum; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.worker(i); err != nil {
				faults <- err
				// take the rest of the pool down with us
				s.conn.Close()
			}
		}(i)
	}
	wg.Wait()

	select {
	case err := <-faults:
		return err
	default:
		return nil
	}
}

// Shutdown releases the socket; workers drain out on the next read.
// No in-flight request needs special handling, a datagram is fully
// answered before the next read.
func (s *Service) Shutdown() error {
	return s.conn.Close()
}

// worker answers requests until the socket closes. A panic while
// serving comes back as a non-nil fault for Serve to report.
func (s *Service) worker(id int) (fault error) {
	var (
		n      int
		remote netip.AddrPort
		err    error
		rcv    time.Time
		origin uint64
		ok     bool
	)

	// anything past 48 bytes is irrelevant, let the kernel truncate
	buf := make([]byte, packetSize)

	defer func(id int) {
		if r := recover(); r != nil {
			Error.Printf("worker: %d fatal, reason:%s, read:%d", id, r, n)
			fault = fmt.Errorf("worker %d: %v", id, r)
		} else {
			Info.Printf("worker: %d exited, reason:%s, read:%d", id, err, n)
		}
	}(id)
	Info.Printf("worker %d start", id)

	for {
		n, remote, err = s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		rcv = time.Now()

		origin, ok = parseRequest(buf[:n])
		if !ok {
			Warn.Printf("worker: %s get small packet %d", remote, n)
			s.logDrop("short")
			continue
		}

		ip := remote.Addr()
		if s.drop.contains(ip) {
			s.logDrop("acl")
			continue
		}
		if s.limiter != nil && !s.limiter.allow(ip, rcv) {
			s.logDrop("rate")
			continue
		}

		resp := makeResponse(s.template, origin, rcv, s.clock.Transmit(rcv))
		_, err = s.conn.WriteToUDPAddrPort(resp, remote)
		if err != nil {
			Error.Printf("worker: %s write failed. %s", remote, err)
			continue
		}
		if s.stats != nil {
			s.stats.logRequest(ip)
		}
	}
}

func (s *Service) logDrop(reason string) {
	if s.stats != nil {
		s.stats.logDrop(reason)
	}
}
