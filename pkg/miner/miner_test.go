package miner

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cinderchain/cinder/pkg/core"
	"github.com/cinderchain/cinder/pkg/db"
	"github.com/cinderchain/cinder/pkg/gossip"
)

func TestMinerProducesAppendableBlock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := core.NewLedger(db.NewMemory(), core.GenesisBlock(), logger)
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}

	events := make(chan gossip.Event, 1)
	m := New(ledger, events, logger)
	m.Start()
	defer m.Stop()

	if err := m.Enqueue("mined in a test"); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	select {
	case ev := <-events:
		mined, ok := ev.(gossip.MinedBlock)
		if !ok {
			t.Fatalf("event = %T, want gossip.MinedBlock", ev)
		}
		if mined.Block.Data != "mined in a test" {
			t.Errorf("Data = %q", mined.Block.Data)
		}
		if err := ledger.Append(mined.Block); err != nil {
			t.Errorf("mined block failed validation: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("miner did not deliver a block")
	}
}

func TestMinerQueueFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := core.NewLedger(db.NewMemory(), core.GenesisBlock(), logger)
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}

	// Never started, so jobs pile up untouched.
	m := New(ledger, make(chan gossip.Event), logger)
	for i := 0; i < cap(m.jobs); i++ {
		if err := m.Enqueue("fill"); err != nil {
			t.Fatalf("Enqueue() error on job %d: %v", i, err)
		}
	}
	if err := m.Enqueue("overflow"); err != ErrQueueFull {
		t.Errorf("Enqueue() = %v, want %v", err, ErrQueueFull)
	}
}

func TestMinerStopIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := core.NewLedger(db.NewMemory(), core.GenesisBlock(), logger)
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}

	m := New(ledger, make(chan gossip.Event), logger)
	m.Start()
	m.Stop()
	m.Stop()
}
