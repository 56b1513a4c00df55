package node

import (
	"io"
	"log/slog"
	"testing"
)

func TestNewRefusesUnknownBackend(t *testing.T) {
	_, err := New(Config{
		DataDir:   t.TempDir(),
		DBBackend: "floppy",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err == nil {
		t.Fatal("New() accepted an unknown database backend")
	}
}

func TestNewSeedsGenesis(t *testing.T) {
	n, err := New(Config{
		DataDir:   t.TempDir(),
		DBBackend: "memory",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer n.store.Close()

	if got := n.Ledger().Height(); got != 1 {
		t.Errorf("Height() = %d, want 1", got)
	}
}
