package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cinderchain/cinder/pkg/db"
)

var heightKey = []byte("h")

func blockKey(id uint64) []byte {
	key := make([]byte, 2+8)
	copy(key, "b/")
	binary.BigEndian.PutUint64(key[2:], id)
	return key
}

// Ledger owns this node's authoritative ordered sequence of accepted blocks.
// Index 0 is always the genesis block. All mutations flow through the gossip
// handler's single message-processing path; the lock exists because the RPC
// surface reads the sequence concurrently with that path.
type Ledger struct {
	mu     sync.RWMutex
	blocks []Block
	store  db.Store
	log    *slog.Logger
}

// NewLedger opens the ledger on top of the given store. A previously persisted
// sequence is reloaded and chain-validated; otherwise the ledger is seeded
// with the genesis block.
func NewLedger(store db.Store, genesis Block, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{store: store, log: logger}

	blocks, err := l.load()
	if err != nil {
		return nil, fmt.Errorf("loading persisted chain: %w", err)
	}
	if len(blocks) == 0 {
		if err := l.persistAppend(genesis); err != nil {
			return nil, fmt.Errorf("seeding genesis: %w", err)
		}
		l.blocks = []Block{genesis}
		return l, nil
	}

	if err := ValidateChain(blocks); err != nil {
		return nil, fmt.Errorf("persisted chain is corrupt: %w", err)
	}
	l.blocks = blocks
	l.log.Info("restored chain from disk", "height", len(blocks))
	return l, nil
}

func (l *Ledger) load() ([]Block, error) {
	raw, err := l.store.Get(heightKey)
	if err == db.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	height := binary.BigEndian.Uint64(raw)

	blocks := make([]Block, 0, height)
	iter, err := l.store.NewIterator([]byte("b/"), []byte("b0"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.Next() {
		var b Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decoding block %x: %w", iter.Key(), err)
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if uint64(len(blocks)) != height {
		return nil, fmt.Errorf("expected %d persisted blocks, found %d", height, len(blocks))
	}
	return blocks, nil
}

func (l *Ledger) persistAppend(b Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	batch := l.store.NewBatch()
	if err := batch.Put(blockKey(b.ID), data); err != nil {
		return err
	}
	if err := batch.Put(heightKey, encodeHeight(uint64(len(l.blocks))+1)); err != nil {
		return err
	}
	return batch.Write()
}

func encodeHeight(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// Append validates the candidate against the current last block and appends
// it. A rejected candidate leaves the ledger unchanged and the failure reason
// is returned so callers can observe it.
func (l *Ledger) Append(candidate Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.blocks[len(l.blocks)-1]
	if err := ValidateBlock(candidate, last); err != nil {
		return err
	}
	if err := l.persistAppend(candidate); err != nil {
		return fmt.Errorf("persisting block %d: %w", candidate.ID, err)
	}
	l.blocks = append(l.blocks, candidate)
	return nil
}

// Replace overwrites the local sequence wholesale. Callers are responsible
// for having validated and fork-selected the new sequence; no validation
// happens here.
func (l *Ledger) Replace(blocks []Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.store.NewBatch()
	for _, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if err := batch.Put(blockKey(b.ID), data); err != nil {
			return err
		}
	}
	// Clear any old tail beyond the new height.
	for i := len(blocks); i < len(l.blocks); i++ {
		if err := batch.Delete(blockKey(l.blocks[i].ID)); err != nil {
			return err
		}
	}
	if err := batch.Put(heightKey, encodeHeight(uint64(len(blocks)))); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("persisting replacement chain: %w", err)
	}

	l.blocks = append([]Block(nil), blocks...)
	return nil
}

// Last returns the current last block.
func (l *Ledger) Last() Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// Height returns the number of blocks, genesis included.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks))
}

// Blocks returns a snapshot copy of the full sequence.
func (l *Ledger) Blocks() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Block(nil), l.blocks...)
}

// Block returns the block with the given id, if present.
func (l *Ledger) Block(id uint64) (Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id >= uint64(len(l.blocks)) {
		return Block{}, false
	}
	return l.blocks[id], true
}
