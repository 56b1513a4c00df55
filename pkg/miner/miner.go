// Package miner runs the proof-of-work search. It is a collaborator of the
// gossip handler: each completed block is handed back over the event channel
// as if it were an inbound block announcement, never appended directly.
package miner

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cinderchain/cinder/pkg/core"
	"github.com/cinderchain/cinder/pkg/gossip"
)

// ErrQueueFull is returned by Enqueue when too many payloads are waiting.
var ErrQueueFull = errors.New("mining queue full")

// progressInterval is how many nonces are tried between progress log lines.
const progressInterval = 1_000_000

// Miner consumes queued payloads and mines one block per payload on top of
// the current ledger head.
type Miner struct {
	ledger *core.Ledger
	events chan<- gossip.Event

	jobs     chan string
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log *slog.Logger
}

// New creates a miner that reads the chain head from ledger and delivers
// completed blocks onto events.
func New(ledger *core.Ledger, events chan<- gossip.Event, logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{
		ledger:   ledger,
		events:   events,
		jobs:     make(chan string, 16),
		stopChan: make(chan struct{}),
		log:      logger,
	}
}

// Start launches the mining loop.
func (m *Miner) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop terminates the mining loop and waits for it to finish. An in-progress
// nonce search is abandoned.
func (m *Miner) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

// Enqueue schedules a payload to be mined into a block.
func (m *Miner) Enqueue(data string) error {
	select {
	case m.jobs <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Miner) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopChan:
			return
		case data := <-m.jobs:
			block, ok := m.mine(data)
			if !ok {
				return
			}
			select {
			case m.events <- gossip.MinedBlock{Block: block}:
			case <-m.stopChan:
				return
			}
		}
	}
}

// mine searches nonces from zero until the digest satisfies the difficulty
// predicate. Returns false only when the miner is stopped mid-search.
func (m *Miner) mine(data string) (core.Block, bool) {
	prev := m.ledger.Last()
	id := prev.ID + 1
	timestamp := time.Now().Unix()

	m.log.Info("mining block", "id", id, "data", data)
	for nonce := uint64(0); ; nonce++ {
		if nonce%progressInterval == 0 && nonce > 0 {
			select {
			case <-m.stopChan:
				return core.Block{}, false
			default:
			}
			m.log.Debug("still mining", "id", id, "tried", nonce)
		}

		digest := core.CalculateHash(id, timestamp, prev.Hash, data, nonce)
		if core.MeetsDifficulty(digest) {
			return core.Block{
				ID:           id,
				Hash:         hex.EncodeToString(digest),
				PreviousHash: prev.Hash,
				Timestamp:    timestamp,
				Data:         data,
				Nonce:        nonce,
			}, true
		}
	}
}
