package vntpd

import (
	"fmt"
	"net/netip"
	"strings"
)

// dropTable rejects clients by source prefix. Lookups see a few
// entries at most, so a linear scan over masked prefixes is enough.
type dropTable struct {
	prefixes []netip.Prefix
}

func newDropTable(cidrs []string) (d *dropTable, err error) {
	d = &dropTable{}
	for _, c := range cidrs {
		var p netip.Prefix
		p, err = netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("drop_cidr %q: %w", c, err)
		}
		d.prefixes = append(d.prefixes, p.Masked())
	}
	return
}

func (d *dropTable) contains(ip netip.Addr) bool {
	// 4-in-6 sources must match v4 prefixes
	ip = ip.Unmap()
	for _, p := range d.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *dropTable) String() string {
	var w strings.Builder
	for _, p := range d.prefixes {
		fmt.Fprintf(&w, "%s\n", p)
	}
	return w.String()
}
