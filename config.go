package vntpd

import (
	"fmt"
	"os"
	"runtime"

	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	Listen     string   `yaml:"listen"`
	WorkerNum  int      `yaml:"worker_num"`
	Metric     string   `yaml:"metric"`
	GeoDB      string   `yaml:"geo_db"`
	BaseTime   string   `yaml:"base_time"`
	Stratum    uint8    `yaml:"stratum"`
	RefID      string   `yaml:"refid"`
	ReqRateSec int      `yaml:"req_rate_sec"`
	DropCIDR   []string `yaml:"drop_cidr"`
	CacheSize  int      `yaml:"cache_size"`
}

func NewConfigFromFile(p string) (cfg *Config, err error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return
	}
	cfg = &Config{}
	err = yaml.Unmarshal(data, cfg)
	return
}

func (c *Config) normalize() {
	if c.Listen == "" {
		c.Listen = ":123"
	}
	if c.WorkerNum <= 0 {
		c.WorkerNum = runtime.NumCPU()
	}
	if c.Stratum == 0 {
		c.Stratum = defaultStratum
	}
	if c.RefID == "" {
		c.RefID = "LOCL"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 1000
	}
}

// refIDToUint32 packs the configured reference identifier tag into
// the wire field, NUL padded on the right.
func refIDToUint32(s string) (uint32, error) {
	if len(s) == 0 || len(s) > 4 {
		return 0, fmt.Errorf("refid must be 1 to 4 bytes: %q", s)
	}
	var id uint32
	for i := 0; i < 4; i++ {
		id <<= 8
		if i < len(s) {
			id |= uint32(s[i])
		}
	}
	return id, nil
}
