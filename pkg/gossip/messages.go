package gossip

import (
	"encoding/json"

	"github.com/cinderchain/cinder/pkg/core"
)

// Topic names one of the two logical gossip channels. Chain-level messages
// (requests and responses) travel on ChainTopic, single-block announcements
// on BlockTopic. A conforming peer subscribes to both.
type Topic string

const (
	// ChainTopic carries ChainRequest and ChainResponse payloads.
	ChainTopic Topic = "/cinder/chain/1.0.0"

	// BlockTopic carries single-block announcements.
	BlockTopic Topic = "/cinder/block/1.0.0"
)

// ChainResponse carries the sender's full ledger to one intended recipient.
// It exists only for the duration of a single gossip exchange.
type ChainResponse struct {
	Receiver string       `json:"receiver"`
	Blocks   []core.Block `json:"blocks"`
}

// ChainRequest asks the peer named by FromPeerID to publish its ledger.
type ChainRequest struct {
	FromPeerID string `json:"from_peer_id"`
}

// Message is one decoded inbound payload: a ChainResponse, a ChainRequest,
// a BlockAnnounce, or Unrecognized.
type Message interface {
	message()
}

// BlockAnnounce wraps a single mined block received from a peer.
type BlockAnnounce struct {
	Block core.Block
}

// Unrecognized marks a payload that matched none of the wire shapes.
type Unrecognized struct{}

func (ChainResponse) message() {}
func (ChainRequest) message()  {}
func (BlockAnnounce) message() {}
func (Unrecognized) message()  {}

// Decode interprets an opaque payload. The three message kinds carry no
// explicit tag and are mutually exclusive by their required field sets, so
// the payload is tried against each shape in turn and the first shape whose
// required fields are all present wins. Extra fields are tolerated for
// forward compatibility.
func Decode(data []byte) Message {
	var resp struct {
		Receiver *string       `json:"receiver"`
		Blocks   *[]core.Block `json:"blocks"`
	}
	if err := json.Unmarshal(data, &resp); err == nil && resp.Receiver != nil && resp.Blocks != nil {
		return ChainResponse{Receiver: *resp.Receiver, Blocks: *resp.Blocks}
	}

	var req struct {
		FromPeerID *string `json:"from_peer_id"`
	}
	if err := json.Unmarshal(data, &req); err == nil && req.FromPeerID != nil {
		return ChainRequest{FromPeerID: *req.FromPeerID}
	}

	var blk struct {
		ID           *uint64 `json:"id"`
		Hash         *string `json:"hash"`
		PreviousHash *string `json:"previous_hash"`
		Timestamp    *int64  `json:"timestamp"`
		Data         *string `json:"data"`
		Nonce        *uint64 `json:"nonce"`
	}
	if err := json.Unmarshal(data, &blk); err == nil &&
		blk.ID != nil && blk.Hash != nil && blk.PreviousHash != nil &&
		blk.Timestamp != nil && blk.Data != nil && blk.Nonce != nil {
		return BlockAnnounce{Block: core.Block{
			ID:           *blk.ID,
			Hash:         *blk.Hash,
			PreviousHash: *blk.PreviousHash,
			Timestamp:    *blk.Timestamp,
			Data:         *blk.Data,
			Nonce:        *blk.Nonce,
		}}
	}

	return Unrecognized{}
}
