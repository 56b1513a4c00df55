// Package node wires the ledger, gossip handler, transport, miner and RPC
// surface into one running peer.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cinderchain/cinder/pkg/core"
	"github.com/cinderchain/cinder/pkg/db"
	"github.com/cinderchain/cinder/pkg/gossip"
	"github.com/cinderchain/cinder/pkg/miner"
	"github.com/cinderchain/cinder/pkg/network"
	"github.com/cinderchain/cinder/pkg/rpc"
)

// mdnsVouchTTL is how long an mDNS sighting keeps vouching for a peer.
const mdnsVouchTTL = 2 * time.Minute

// Config holds node configuration, resolved once at startup and threaded by
// reference into every component.
type Config struct {
	DataDir    string
	DBBackend  string
	ListenAddr string
	RPCAddr    string
	Genesis    *core.Genesis
	Logger     *slog.Logger
}

// Node is one peer: a replica of the ledger plus the machinery to reconcile
// it with other peers.
type Node struct {
	cfg     Config
	genesis *core.Genesis
	log     *slog.Logger

	store   db.Store
	ledger  *core.Ledger
	members *gossip.Membership
	events  chan gossip.Event
	handler *gossip.Handler
	p2p     *network.P2PNode
	miner   *miner.Miner
	rpc     *rpc.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens storage and builds the node's passive state. Start brings the
// network up.
func New(cfg Config) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	genesis := cfg.Genesis
	if genesis == nil {
		genesis = core.DefaultGenesis()
	}

	// A node that silently runs without persistence is worse than one that
	// refuses to start.
	store, err := db.Open(db.Backend(cfg.DBBackend), filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return nil, fmt.Errorf("opening chain database: %w", err)
	}

	ledger, err := core.NewLedger(store, genesis.Block(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	return &Node{
		cfg:     cfg,
		genesis: genesis,
		log:     logger,
		store:   store,
		ledger:  ledger,
		members: gossip.NewMembership(),
		events:  make(chan gossip.Event, 64),
	}, nil
}

// Ledger exposes the node's ledger, mainly for inspection.
func (n *Node) Ledger() *core.Ledger {
	return n.ledger
}

// Start brings up transport, gossip processing, mining and RPC.
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.p2p = network.NewP2PNode(n.members, n.events, n.log)
	if err := n.p2p.Start(n.cfg.ListenAddr); err != nil {
		cancel()
		return fmt.Errorf("starting p2p node: %w", err)
	}

	for _, bootnode := range n.genesis.Bootnodes {
		if err := n.p2p.Connect(bootnode); err != nil {
			n.log.Warn("connecting to bootnode", "addr", bootnode, "err", err)
		}
	}

	n.handler = gossip.NewHandler(n.p2p.ID().String(), n.ledger, n.members, n.events, n.log)
	n.miner = miner.New(n.ledger, n.events, n.log)
	n.rpc = rpc.NewServer(n.cfg.RPCAddr, n.ledger, n.members, n.miner, n.events, n.log)
	n.handler.OnBlockAccepted(n.rpc.NotifyBlock)
	n.handler.OnChainReplaced(n.rpc.NotifyChain)

	n.miner.Start()
	if err := n.rpc.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting rpc server: %w", err)
	}

	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		n.handler.Run(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.pumpOutbound(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.housekeeping(ctx)
	}()

	n.log.Info("node started",
		"peer", n.p2p.ID(),
		"height", n.ledger.Height(),
		"chain", n.genesis.ChainID,
	)
	return nil
}

// pumpOutbound moves queued gossip payloads onto the wire.
func (n *Node) pumpOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-n.handler.Outbound():
			n.p2p.Broadcast(env.Topic, env.Data)
		}
	}
}

// housekeeping issues the startup chain sync once discovery has had a moment
// to find peers, and periodically expires stale mDNS vouches.
func (n *Node) housekeeping(ctx context.Context) {
	initialSync := time.NewTimer(time.Second)
	defer initialSync.Stop()
	sweep := time.NewTicker(30 * time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initialSync.C:
			select {
			case n.events <- gossip.SyncRequest{}:
			default:
			}
		case <-sweep.C:
			n.members.ExpireBefore(time.Now().Add(-mdnsVouchTTL), gossip.SourceMDNS)
		}
	}
}

// Stop shuts the node down in dependency order.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	if n.miner != nil {
		n.miner.Stop()
	}
	if n.rpc != nil {
		if err := n.rpc.Stop(); err != nil {
			n.log.Warn("stopping rpc server", "err", err)
		}
	}
	if n.p2p != nil {
		if err := n.p2p.Stop(); err != nil {
			n.log.Warn("stopping p2p node", "err", err)
		}
	}
	n.wg.Wait()
	if err := n.store.Close(); err != nil {
		n.log.Warn("closing chain database", "err", err)
	}
	n.log.Info("node stopped")
}
