package vntpd

import (
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	geoip2 "github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type statistic struct {
	reqCounter  *prometheus.CounterVec
	dropCounter *prometheus.CounterVec
	offsetGauge prometheus.Gauge
	clientGauge prometheus.Gauge

	mu      sync.Mutex
	clients *lru
	geoDB   *geoip2.Reader
}

func newStatistic(cfg *Config) (*statistic, error) {

	s := &statistic{clients: newLRU(cfg.CacheSize)}

	if cfg.GeoDB != "" {
		var err error
		s.geoDB, err = geoip2.Open(cfg.GeoDB)
		if err != nil {
			return nil, err
		}
	}

	s.reqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntp",
		Subsystem: "requests",
		Name:      "total",
		Help:      "The total number of ntp requests answered",
	}, []string{"cc"})
	prometheus.MustRegister(s.reqCounter)

	s.dropCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntp",
		Subsystem: "requests",
		Name:      "drop",
		Help:      "The number of ntp requests dropped, by reason",
	}, []string{"reason"})
	prometheus.MustRegister(s.dropCounter)

	s.offsetGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ntp",
		Subsystem: "clock",
		Name:      "offset_sec",
		Help:      "The offset of the claimed clock to the system clock",
	})
	prometheus.MustRegister(s.offsetGauge)

	s.clientGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ntp",
		Subsystem: "clients",
		Name:      "tracked",
		Help:      "The number of recently seen client addresses",
	})
	prometheus.MustRegister(s.clientGauge)

	http.Handle("/metrics", promhttp.Handler())
	Info.Printf("listen metric: %s", cfg.Metric)
	go http.ListenAndServe(cfg.Metric, nil)

	return s, nil
}

func (s *statistic) logRequest(ip netip.Addr) {
	s.reqCounter.WithLabelValues(s.country(ip)).Inc()

	s.mu.Lock()
	s.clients.Add(ip, time.Now().Unix())
	s.clientGauge.Set(float64(s.clients.Len()))
	s.mu.Unlock()
}

func (s *statistic) logDrop(reason string) {
	s.dropCounter.WithLabelValues(reason).Inc()
}

func (s *statistic) country(ip netip.Addr) string {
	if s.geoDB == nil || ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}
	country, err := s.geoDB.Country(net.IP(ip.Unmap().AsSlice()))
	if err != nil {
		Warn.Print("stat ip err=", err)
		return ""
	}
	return country.Country.IsoCode
}
