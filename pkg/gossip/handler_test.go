package gossip

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/cinderchain/cinder/pkg/core"
	"github.com/cinderchain/cinder/pkg/db"
)

const selfID = "12D3KooWSelf"

func mineOn(t *testing.T, prev core.Block, data string) core.Block {
	t.Helper()

	id := prev.ID + 1
	timestamp := prev.Timestamp + 1
	for nonce := uint64(0); ; nonce++ {
		digest := core.CalculateHash(id, timestamp, prev.Hash, data, nonce)
		if core.MeetsDifficulty(digest) {
			return core.Block{
				ID:           id,
				Hash:         hex.EncodeToString(digest),
				PreviousHash: prev.Hash,
				Timestamp:    timestamp,
				Data:         data,
				Nonce:        nonce,
			}
		}
	}
}

func newTestHandler(t *testing.T) (*Handler, *core.Ledger) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := core.NewLedger(db.NewMemory(), core.GenesisBlock(), logger)
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}
	return NewHandler(selfID, ledger, NewMembership(), nil, logger), ledger
}

// takeEnvelope returns the queued outbound payload, or fails if none is ready.
func takeEnvelope(t *testing.T, h *Handler) Envelope {
	t.Helper()
	select {
	case env := <-h.Outbound():
		return env
	default:
		t.Fatal("no outbound message queued")
		return Envelope{}
	}
}

func assertNoEnvelope(t *testing.T, h *Handler) {
	t.Helper()
	select {
	case env := <-h.Outbound():
		t.Fatalf("unexpected outbound message on %s", env.Topic)
	default:
	}
}

func TestHandlerBlockAnnounce(t *testing.T) {
	h, ledger := newTestHandler(t)
	from := peer.ID("announcer")

	b1 := mineOn(t, ledger.Last(), "announced")
	var accepted []core.Block
	h.OnBlockAccepted(func(b core.Block) { accepted = append(accepted, b) })

	payload, _ := json.Marshal(b1)
	h.handle(InboundMessage{From: from, Data: payload})

	if got := ledger.Height(); got != 2 {
		t.Fatalf("Height() = %d, want 2", got)
	}
	if len(accepted) != 1 || accepted[0].Hash != b1.Hash {
		t.Error("accepted callback not invoked for the announced block")
	}
	// Received announcements are not re-broadcast.
	assertNoEnvelope(t, h)

	t.Run("broken link is rejected silently", func(t *testing.T) {
		bad := mineOn(t, ledger.Last(), "orphan")
		bad.PreviousHash = core.GenesisBlock().Hash

		payload, _ := json.Marshal(bad)
		h.handle(InboundMessage{From: from, Data: payload})

		if got := ledger.Height(); got != 2 {
			t.Errorf("Height() = %d after rejection, want 2", got)
		}
		assertNoEnvelope(t, h)
	})
}

func TestHandlerChainRequest(t *testing.T) {
	h, ledger := newTestHandler(t)
	requester := peer.ID("requester")

	if err := ledger.Append(mineOn(t, ledger.Last(), "payload")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	t.Run("addressed to this node", func(t *testing.T) {
		payload, _ := json.Marshal(ChainRequest{FromPeerID: selfID})
		h.handle(InboundMessage{From: requester, Data: payload})

		env := takeEnvelope(t, h)
		if env.Topic != ChainTopic {
			t.Fatalf("Topic = %s, want %s", env.Topic, ChainTopic)
		}
		resp, ok := Decode(env.Data).(ChainResponse)
		if !ok {
			t.Fatalf("outbound payload decoded as %T", Decode(env.Data))
		}
		if resp.Receiver != requester.String() {
			t.Errorf("Receiver = %q, want %q", resp.Receiver, requester)
		}
		if len(resp.Blocks) != 2 {
			t.Errorf("response carries %d blocks, want 2", len(resp.Blocks))
		}
	})

	t.Run("addressed elsewhere", func(t *testing.T) {
		payload, _ := json.Marshal(ChainRequest{FromPeerID: "12D3KooWSomeoneElse"})
		h.handle(InboundMessage{From: requester, Data: payload})
		assertNoEnvelope(t, h)
	})
}

func TestHandlerChainResponse(t *testing.T) {
	from := peer.ID("responder")

	remote := []core.Block{core.GenesisBlock()}
	for i := 0; i < 3; i++ {
		remote = append(remote, mineOn(t, remote[len(remote)-1], "remote"))
	}

	t.Run("longer valid chain is adopted", func(t *testing.T) {
		h, ledger := newTestHandler(t)
		if err := ledger.Append(mineOn(t, ledger.Last(), "local")); err != nil {
			t.Fatalf("Append() error: %v", err)
		}

		var replaced [][]core.Block
		h.OnChainReplaced(func(c []core.Block) { replaced = append(replaced, c) })

		payload, _ := json.Marshal(ChainResponse{Receiver: selfID, Blocks: remote})
		h.handle(InboundMessage{From: from, Data: payload})

		if got := ledger.Height(); got != 4 {
			t.Fatalf("Height() = %d, want 4", got)
		}
		if ledger.Last().Hash != remote[3].Hash {
			t.Error("ledger head does not match the adopted chain")
		}
		if len(replaced) != 1 {
			t.Error("replaced callback not invoked")
		}
	})

	t.Run("shorter valid chain is ignored", func(t *testing.T) {
		h, ledger := newTestHandler(t)
		local := ledger.Last()
		for i := 0; i < 4; i++ {
			local = mineOn(t, local, "local")
			if err := ledger.Append(local); err != nil {
				t.Fatalf("Append() error: %v", err)
			}
		}

		payload, _ := json.Marshal(ChainResponse{Receiver: selfID, Blocks: remote})
		h.handle(InboundMessage{From: from, Data: payload})

		if got := ledger.Height(); got != 5 {
			t.Errorf("Height() = %d, want 5", got)
		}
	})

	t.Run("invalid remote chain keeps local state", func(t *testing.T) {
		h, ledger := newTestHandler(t)

		tampered := append([]core.Block(nil), remote...)
		tampered[2].Data = "forged"

		payload, _ := json.Marshal(ChainResponse{Receiver: selfID, Blocks: tampered})
		h.handle(InboundMessage{From: from, Data: payload})

		if got := ledger.Height(); got != 1 {
			t.Errorf("Height() = %d, want 1", got)
		}
	})

	t.Run("addressed elsewhere is ignored", func(t *testing.T) {
		h, ledger := newTestHandler(t)

		payload, _ := json.Marshal(ChainResponse{Receiver: "12D3KooWSomeoneElse", Blocks: remote})
		h.handle(InboundMessage{From: from, Data: payload})

		if got := ledger.Height(); got != 1 {
			t.Errorf("Height() = %d, want 1", got)
		}
	})
}

func TestHandlerMinedBlock(t *testing.T) {
	h, ledger := newTestHandler(t)

	var accepted []core.Block
	h.OnBlockAccepted(func(b core.Block) { accepted = append(accepted, b) })

	mined := mineOn(t, ledger.Last(), "local work")
	h.handle(MinedBlock{Block: mined})

	if got := ledger.Height(); got != 2 {
		t.Fatalf("Height() = %d, want 2", got)
	}
	env := takeEnvelope(t, h)
	if env.Topic != BlockTopic {
		t.Fatalf("Topic = %s, want %s", env.Topic, BlockTopic)
	}
	announce, ok := Decode(env.Data).(BlockAnnounce)
	if !ok || announce.Block.Hash != mined.Hash {
		t.Error("broadcast payload does not carry the mined block")
	}
	if len(accepted) != 1 {
		t.Error("accepted callback not invoked for the mined block")
	}

	t.Run("stale mined block is dropped", func(t *testing.T) {
		// The same height was already taken above.
		h.handle(MinedBlock{Block: mined})

		if got := ledger.Height(); got != 2 {
			t.Errorf("Height() = %d, want 2", got)
		}
		assertNoEnvelope(t, h)
	})
}

func TestHandlerSyncRequest(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("no peers", func(t *testing.T) {
		h.handle(SyncRequest{})
		assertNoEnvelope(t, h)
	})

	t.Run("targets the most recent peer", func(t *testing.T) {
		h.handle(PeerJoined{Peer: peer.ID("elder"), Source: SourceConn})
		h.handle(PeerJoined{Peer: peer.ID("newcomer"), Source: SourceMDNS})
		h.handle(SyncRequest{})

		env := takeEnvelope(t, h)
		if env.Topic != ChainTopic {
			t.Fatalf("Topic = %s, want %s", env.Topic, ChainTopic)
		}
		req, ok := Decode(env.Data).(ChainRequest)
		if !ok {
			t.Fatalf("outbound payload decoded as %T", Decode(env.Data))
		}
		if req.FromPeerID != peer.ID("newcomer").String() {
			t.Errorf("FromPeerID = %q, want the latest peer", req.FromPeerID)
		}
	})
}

func TestHandlerPeerEvents(t *testing.T) {
	h, _ := newTestHandler(t)

	h.handle(PeerJoined{Peer: peerA, Source: SourceConn})
	if !h.members.Contains(peerA) {
		t.Fatal("joined peer not tracked")
	}
	h.handle(PeerLeft{Peer: peerA, Source: SourceConn})
	if h.members.Contains(peerA) {
		t.Fatal("left peer still tracked")
	}
}

func TestHandlerRun(t *testing.T) {
	h, ledger := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	payload, _ := json.Marshal(mineOn(t, ledger.Last(), "through the loop"))
	h.Events() <- InboundMessage{From: peer.ID("announcer"), Data: payload}

	deadline := time.After(2 * time.Second)
	for ledger.Height() != 2 {
		select {
		case <-deadline:
			t.Fatal("event loop did not process the announcement")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
