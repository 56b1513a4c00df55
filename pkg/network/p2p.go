package network

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	quicTransport "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/multiformats/go-multiaddr"

	"github.com/cinderchain/cinder/pkg/gossip"
)

// P2PNode is the transport boundary: a libp2p host speaking one stream
// protocol per gossip topic. Delivered payloads are handed to the gossip
// handler as opaque bytes; outbound payloads are broadcast to the current
// peer group.
type P2PNode struct {
	host    host.Host
	topics  []gossip.Topic
	members *gossip.Membership
	events  chan<- gossip.Event
	mdns    mdnsService

	ctx        context.Context
	cancelFunc context.CancelFunc
	log        *slog.Logger
}

// NewP2PNode creates a P2P node that reports peers and payloads onto events
// and scopes broadcasts by members.
func NewP2PNode(members *gossip.Membership, events chan<- gossip.Event, logger *slog.Logger) *P2PNode {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &P2PNode{
		topics:     []gossip.Topic{gossip.ChainTopic, gossip.BlockTopic},
		members:    members,
		events:     events,
		ctx:        ctx,
		cancelFunc: cancel,
		log:        logger,
	}
}

// Start brings up the libp2p host on the given host:port listen address and
// begins mDNS discovery.
func (n *P2PNode) Start(listenAddr string) error {
	// Self-generated identity, stable for the process lifetime.
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Ed25519, 2048, rand.Reader)
	if err != nil {
		return err
	}

	ip, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/udp/%s/quic-v1", ip, port))
	if err != nil {
		return err
	}

	h, err := libp2p.New(
		libp2p.ListenAddrs(addr),
		libp2p.Identity(priv),
		libp2p.Transport(quicTransport.NewTransport),
		libp2p.NATPortMap(),
	)
	if err != nil {
		return err
	}
	n.host = h

	for _, topic := range n.topics {
		n.host.SetStreamHandler(protocol.ID(topic), n.handleStream)
	}

	// Live connections are one of the signals vouching for a peer.
	n.host.Network().Notify(&libp2pnetwork.NotifyBundle{
		ConnectedF: func(_ libp2pnetwork.Network, c libp2pnetwork.Conn) {
			n.emit(gossip.PeerJoined{Peer: c.RemotePeer(), Source: gossip.SourceConn})
		},
		DisconnectedF: func(_ libp2pnetwork.Network, c libp2pnetwork.Conn) {
			n.emit(gossip.PeerLeft{Peer: c.RemotePeer(), Source: gossip.SourceConn})
		},
	})

	if err := n.startMDNS(); err != nil {
		return fmt.Errorf("starting mdns discovery: %w", err)
	}

	n.log.Info("p2p node started", "id", n.host.ID(), "addrs", n.host.Addrs())
	return nil
}

// ID returns this node's peer identity.
func (n *P2PNode) ID() peer.ID {
	return n.host.ID()
}

// Connect dials a peer given its full multiaddress. Used for configured
// bootnodes; peers on the local network are found via mDNS without it.
func (n *P2PNode) Connect(peerAddr string) error {
	addr, err := multiaddr.NewMultiaddr(peerAddr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()
	if err := n.host.Connect(ctx, *info); err != nil {
		return err
	}

	n.log.Info("connected to peer", "peer", info.ID)
	return nil
}

// Broadcast sends a payload to every peer in the current gossip group on the
// given topic. Per-peer failures are logged and skipped; gossip sends carry
// no delivery guarantee.
func (n *P2PNode) Broadcast(topic gossip.Topic, data []byte) {
	for _, p := range n.members.Peers() {
		if p == n.host.ID() {
			continue
		}
		stream, err := n.host.NewStream(n.ctx, p, protocol.ID(topic))
		if err != nil {
			n.log.Warn("opening stream", "peer", p, "topic", topic, "err", err)
			continue
		}
		if _, err := stream.Write(data); err != nil {
			n.log.Warn("writing to peer", "peer", p, "topic", topic, "err", err)
			stream.Reset()
			continue
		}
		stream.CloseWrite()
		stream.Close()
	}
}

// Stop shuts down discovery and the host.
func (n *P2PNode) Stop() error {
	n.cancelFunc()
	if n.mdns != nil {
		n.mdns.Close()
	}
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

func (n *P2PNode) handleStream(stream libp2pnetwork.Stream) {
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		n.log.Warn("reading stream", "peer", stream.Conn().RemotePeer(), "err", err)
		return
	}
	n.emit(gossip.InboundMessage{
		From: stream.Conn().RemotePeer(),
		Data: data,
	})
}

// emit hands an event to the gossip handler without ever blocking the
// transport callbacks that call it.
func (n *P2PNode) emit(ev gossip.Event) {
	select {
	case n.events <- ev:
	default:
		n.log.Warn("event queue full, dropping event")
	}
}
