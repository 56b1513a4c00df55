package gossip

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	peerA = peer.ID("peer-a")
	peerB = peer.ID("peer-b")
)

func TestMembershipAddDrop(t *testing.T) {
	m := NewMembership()

	m.Add(peerA, SourceMDNS)
	m.Add(peerA, SourceConn)
	m.Add(peerB, SourceConn)

	if got := m.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if !m.Contains(peerA) || !m.Contains(peerB) {
		t.Fatal("added peers not reported as members")
	}

	// One vouch withdrawn, the other still holds.
	m.Drop(peerA, SourceMDNS)
	if !m.Contains(peerA) {
		t.Error("peer evicted while a connection still vouched for it")
	}

	m.Drop(peerA, SourceConn)
	if m.Contains(peerA) {
		t.Error("peer kept with no remaining vouches")
	}
	if got := m.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	// Dropping an unknown peer is a no-op.
	m.Drop(peer.ID("peer-c"), SourceConn)
}

func TestMembershipExpireBefore(t *testing.T) {
	m := NewMembership()
	m.Add(peerA, SourceMDNS)
	m.Add(peerB, SourceMDNS)
	m.Add(peerB, SourceConn)

	// Everything recorded so far is older than a cutoff in the future.
	m.ExpireBefore(time.Now().Add(time.Second), SourceMDNS)

	if m.Contains(peerA) {
		t.Error("stale mdns-only peer survived the sweep")
	}
	if !m.Contains(peerB) {
		t.Error("connected peer evicted by the mdns sweep")
	}
}

func TestMembershipOrder(t *testing.T) {
	m := NewMembership()

	if _, ok := m.Latest(); ok {
		t.Fatal("Latest() on empty membership reported a peer")
	}

	m.Add(peerA, SourceConn)
	m.Add(peerB, SourceMDNS)
	m.Add(peerA, SourceMDNS) // re-vouch must not reorder

	if got := m.Peers(); len(got) != 2 || got[0] != peerA || got[1] != peerB {
		t.Errorf("Peers() = %v", got)
	}
	latest, ok := m.Latest()
	if !ok || latest != peerB {
		t.Errorf("Latest() = %v, %v", latest, ok)
	}
}
