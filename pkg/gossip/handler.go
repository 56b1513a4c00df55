package gossip

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/cinderchain/cinder/pkg/core"
)

// Event is one unit of work for the protocol handler. Events from every
// producer (transport streams, the miner, the RPC surface, discovery) funnel
// into a single channel and are processed one at a time in arrival order, so
// the ledger has exactly one logical writer.
type Event interface {
	event()
}

// InboundMessage is an opaque payload delivered by the transport.
type InboundMessage struct {
	From peer.ID
	Data []byte
}

// MinedBlock is a completed candidate handed off by the local miner. It is
// treated with the same priority as an inbound block announcement.
type MinedBlock struct {
	Block core.Block
}

// SyncRequest asks the handler to request the chain of the most recently
// discovered peer.
type SyncRequest struct{}

// PeerJoined reports that a discovery signal saw a peer.
type PeerJoined struct {
	Peer   peer.ID
	Source Source
}

// PeerLeft reports that a discovery signal lost a peer.
type PeerLeft struct {
	Peer   peer.ID
	Source Source
}

func (InboundMessage) event() {}
func (MinedBlock) event()     {}
func (SyncRequest) event()    {}
func (PeerJoined) event()     {}
func (PeerLeft) event()       {}

// Envelope is an outbound payload bound for one gossip topic. Sends are
// fire-and-forget: the protocol defines no retry or timeout.
type Envelope struct {
	Topic Topic
	Data  []byte
}

// Handler interprets inbound gossip, drives the ledger and fork selection,
// and queues outbound responses for the transport boundary.
type Handler struct {
	self    string
	ledger  *core.Ledger
	members *Membership

	events   chan Event
	outbound chan Envelope

	onAccept  func(core.Block)
	onReplace func([]core.Block)

	log *slog.Logger
}

// NewHandler builds a handler for the node identified by self, the string
// form of this node's peer identity. Every producer must push onto the same
// events channel so processing stays strictly sequential.
func NewHandler(self string, ledger *core.Ledger, members *Membership, events chan Event, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = make(chan Event, 64)
	}
	return &Handler{
		self:     self,
		ledger:   ledger,
		members:  members,
		events:   events,
		outbound: make(chan Envelope, 16),
		log:      logger,
	}
}

// Events is the channel producers push work onto.
func (h *Handler) Events() chan<- Event {
	return h.events
}

// Outbound is the queue of payloads the transport must broadcast.
func (h *Handler) Outbound() <-chan Envelope {
	return h.outbound
}

// OnBlockAccepted registers a callback invoked for every block appended to
// the ledger, mined locally or received from a peer.
func (h *Handler) OnBlockAccepted(fn func(core.Block)) {
	h.onAccept = fn
}

// OnChainReplaced registers a callback invoked when a remote chain is adopted.
func (h *Handler) OnChainReplaced(fn func([]core.Block)) {
	h.onReplace = fn
}

// Run processes events until the context is cancelled.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

func (h *Handler) handle(ev Event) {
	switch ev := ev.(type) {
	case InboundMessage:
		h.handleMessage(ev)
	case MinedBlock:
		h.handleMined(ev.Block)
	case SyncRequest:
		h.handleSync()
	case PeerJoined:
		h.members.Add(ev.Peer, ev.Source)
		h.log.Debug("peer joined", "peer", ev.Peer, "source", ev.Source, "peers", h.members.Len())
	case PeerLeft:
		h.members.Drop(ev.Peer, ev.Source)
		h.log.Debug("peer left", "peer", ev.Peer, "source", ev.Source, "peers", h.members.Len())
	}
}

func (h *Handler) handleMessage(msg InboundMessage) {
	switch m := Decode(msg.Data).(type) {
	case ChainResponse:
		h.handleChainResponse(msg.From, m)
	case ChainRequest:
		h.handleChainRequest(msg.From, m)
	case BlockAnnounce:
		h.handleAnnounce(msg.From, m.Block)
	case Unrecognized:
		h.log.Debug("unrecognized payload", "from", msg.From, "bytes", len(msg.Data))
	}
}

func (h *Handler) handleChainResponse(from peer.ID, resp ChainResponse) {
	if resp.Receiver != h.self {
		return
	}
	h.log.Info("received chain", "from", from, "height", len(resp.Blocks))

	local := h.ledger.Blocks()
	chosen, err := core.ChooseChain(local, resp.Blocks)
	if err != nil {
		// No safe choice exists; refuse the adoption and keep running.
		h.log.Error("chain adoption aborted", "from", from, "err", err)
		return
	}

	adopted := len(chosen) != len(local) || chosen[len(chosen)-1].Hash != local[len(local)-1].Hash
	if !adopted {
		h.log.Info("keeping local chain", "height", len(local))
		return
	}
	if err := h.ledger.Replace(chosen); err != nil {
		h.log.Error("replacing chain", "err", err)
		return
	}
	h.log.Info("adopted remote chain", "from", from, "height", len(chosen))
	if h.onReplace != nil {
		h.onReplace(chosen)
	}
}

func (h *Handler) handleChainRequest(from peer.ID, req ChainRequest) {
	if req.FromPeerID != h.self {
		return
	}
	h.log.Info("sending local chain", "to", from)

	data, err := json.Marshal(ChainResponse{
		Receiver: from.String(),
		Blocks:   h.ledger.Blocks(),
	})
	if err != nil {
		h.log.Error("encoding chain response", "err", err)
		return
	}
	h.send(Envelope{Topic: ChainTopic, Data: data})
}

func (h *Handler) handleAnnounce(from peer.ID, block core.Block) {
	// Rejection is logged, never propagated back: this protocol sends no
	// negative acknowledgements.
	if err := h.ledger.Append(block); err != nil {
		h.log.Warn("rejected block", "from", from, "err", err)
		return
	}
	h.log.Info("accepted block", "from", from, "id", block.ID, "hash", block.Hash)
	if h.onAccept != nil {
		h.onAccept(block)
	}
}

func (h *Handler) handleMined(block core.Block) {
	if err := h.ledger.Append(block); err != nil {
		// The chain may have moved on while the nonce search ran.
		h.log.Warn("rejected mined block", "err", err)
		return
	}
	h.log.Info("mined block", "id", block.ID, "hash", block.Hash, "nonce", block.Nonce)

	data, err := json.Marshal(block)
	if err != nil {
		h.log.Error("encoding block announcement", "err", err)
	} else {
		h.send(Envelope{Topic: BlockTopic, Data: data})
	}
	if h.onAccept != nil {
		h.onAccept(block)
	}
}

func (h *Handler) handleSync() {
	target, ok := h.members.Latest()
	if !ok {
		h.log.Debug("no peers to request a chain from")
		return
	}
	data, err := json.Marshal(ChainRequest{FromPeerID: target.String()})
	if err != nil {
		h.log.Error("encoding chain request", "err", err)
		return
	}
	h.log.Info("requesting chain", "peer", target)
	h.send(Envelope{Topic: ChainTopic, Data: data})
}

func (h *Handler) send(env Envelope) {
	select {
	case h.outbound <- env:
	default:
		// Gossip is fire-and-forget; a full queue drops the send.
		h.log.Warn("outbound queue full, dropping message", "topic", env.Topic)
	}
}
