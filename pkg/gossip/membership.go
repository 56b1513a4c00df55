package gossip

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Source identifies one discovery signal that can vouch for a peer.
type Source string

const (
	// SourceMDNS marks a peer found through local-network mDNS discovery.
	SourceMDNS Source = "mdns"

	// SourceConn marks a peer with a live transport connection.
	SourceConn Source = "conn"
)

type memberRecord struct {
	vouches map[Source]time.Time
	joined  time.Time
}

// Membership tracks the set of reachable peers that scope gossip broadcasts.
// Each peer carries the set of sources currently vouching for it; a peer is
// dropped only when no signal vouches for it anymore, so an expiry reported
// by one discovery signal cannot evict a peer another signal still sees.
// Discovery events arrive concurrently with message dispatch, hence the lock.
type Membership struct {
	mu      sync.RWMutex
	records map[peer.ID]*memberRecord
	order   []peer.ID // join order, most recent last
}

// NewMembership returns an empty membership tracker.
func NewMembership() *Membership {
	return &Membership{records: make(map[peer.ID]*memberRecord)}
}

// Add records that source vouches for the peer, adding the peer to the group
// if it is new.
func (m *Membership) Add(p peer.ID, source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[p]
	if !ok {
		rec = &memberRecord{vouches: make(map[Source]time.Time), joined: time.Now()}
		m.records[p] = rec
		m.order = append(m.order, p)
	}
	rec.vouches[source] = time.Now()
}

// Drop withdraws one source's vouch. The peer leaves the group only when no
// source still vouches for it.
func (m *Membership) Drop(p peer.ID, source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[p]
	if !ok {
		return
	}
	delete(rec.vouches, source)
	if len(rec.vouches) == 0 {
		m.remove(p)
	}
}

// ExpireBefore withdraws every vouch of the given source older than cutoff.
// Used to sweep out stale mDNS sightings.
func (m *Membership) ExpireBefore(cutoff time.Time, source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, rec := range m.records {
		seen, ok := rec.vouches[source]
		if ok && seen.Before(cutoff) {
			delete(rec.vouches, source)
			if len(rec.vouches) == 0 {
				m.remove(p)
			}
		}
	}
}

// remove must be called with the lock held.
func (m *Membership) remove(p peer.ID) {
	delete(m.records, p)
	for i, q := range m.order {
		if q == p {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether the peer is currently in the gossip group.
func (m *Membership) Contains(p peer.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[p]
	return ok
}

// Peers returns the current gossip group in join order.
func (m *Membership) Peers() []peer.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]peer.ID(nil), m.order...)
}

// Latest returns the most recently joined peer.
func (m *Membership) Latest() (peer.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return "", false
	}
	return m.order[len(m.order)-1], true
}

// Len returns the number of peers in the group.
func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
