package vntpd

import (
	"container/list"
	"net/netip"
)

// lru tracks the most recently seen client addresses with their
// last-seen unix time, capped at maxEntry. Not safe for concurrent
// use; the statistic owns the lock.
type lru struct {
	cache    map[netip.Addr]*list.Element
	ll       *list.List
	maxEntry int
}

type lruEntry struct {
	key      netip.Addr
	lastUnix int64
}

func newLRU(s int) *lru {
	return &lru{
		map[netip.Addr]*list.Element{},
		list.New(),
		s}
}

func (u *lru) Add(ip netip.Addr, val int64) {
	if ee, ok := u.cache[ip]; ok {
		u.ll.MoveToFront(ee)
		ee.Value.(*lruEntry).lastUnix = val
		return
	}

	ele := u.ll.PushFront(&lruEntry{ip, val})
	u.cache[ip] = ele
	if u.maxEntry < u.ll.Len() {
		u.removeOldest()
	}
}

func (u *lru) removeOldest() {
	ele := u.ll.Back()
	ee := ele.Value.(*lruEntry)
	delete(u.cache, ee.key)
	u.ll.Remove(ele)
}

func (u *lru) Get(ip netip.Addr) (val int64, ok bool) {
	var ele *list.Element
	if ele, ok = u.cache[ip]; ok {
		val = ele.Value.(*lruEntry).lastUnix
	}
	return
}

func (u *lru) Len() int {
	return u.ll.Len()
}
