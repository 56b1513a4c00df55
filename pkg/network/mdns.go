package network

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	"github.com/cinderchain/cinder/pkg/gossip"
)

// mdnsServiceTag scopes discovery to cinder nodes on the local network.
const mdnsServiceTag = "cinder.local"

type mdnsService interface {
	Start() error
	Close() error
}

// mdnsNotifee receives peer sightings from the mDNS responder. Sightings
// arrive on their own goroutine, independent of message dispatch.
type mdnsNotifee struct {
	node *P2PNode
}

func (nf *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	n := nf.node
	if info.ID == n.host.ID() {
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()
	if err := n.host.Connect(ctx, info); err != nil {
		n.log.Warn("connecting to discovered peer", "peer", info.ID, "err", err)
		return
	}
	n.emit(gossip.PeerJoined{Peer: info.ID, Source: gossip.SourceMDNS})
}

func (n *P2PNode) startMDNS() error {
	svc := mdns.NewMdnsService(n.host, mdnsServiceTag, &mdnsNotifee{node: n})
	if err := svc.Start(); err != nil {
		return err
	}
	n.mdns = svc
	return nil
}
