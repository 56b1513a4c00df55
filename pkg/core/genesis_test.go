package core

import (
	"encoding/hex"
	"path/filepath"
	"testing"
)

func TestGenesisBlock(t *testing.T) {
	g := GenesisBlock()

	if g.ID != 0 {
		t.Errorf("genesis ID = %d, want 0", g.ID)
	}
	if g.PreviousHash != GenesisPreviousHash {
		t.Errorf("genesis PreviousHash = %q", g.PreviousHash)
	}

	// The pinned hash really is the hash of the genesis fields and carries
	// enough work itself.
	digest := CalculateHash(g.ID, g.Timestamp, g.PreviousHash, g.Data, g.Nonce)
	if hex.EncodeToString(digest) != g.Hash {
		t.Error("pinned genesis hash does not match its fields")
	}
	if !MeetsDifficulty(digest) {
		t.Error("genesis hash does not meet the difficulty target")
	}
	if got := leadingZeroBits(digest); got != DifficultyBits {
		t.Errorf("genesis hash carries %d leading zero bits, want exactly %d", got, DifficultyBits)
	}
}

func TestGenesisFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")

	g := DefaultGenesis()
	g.ChainID = "cinder-test"
	g.Bootnodes = []string{"/ip4/10.0.0.1/udp/26656/quic-v1/p2p/12D3KooWExample"}
	if err := g.ToJSON(path); err != nil {
		t.Fatalf("ToJSON() error: %v", err)
	}

	loaded, err := GenesisFromJSON(path)
	if err != nil {
		t.Fatalf("GenesisFromJSON() error: %v", err)
	}
	if loaded.ChainID != g.ChainID {
		t.Errorf("ChainID = %q, want %q", loaded.ChainID, g.ChainID)
	}
	if len(loaded.Bootnodes) != 1 || loaded.Bootnodes[0] != g.Bootnodes[0] {
		t.Errorf("Bootnodes = %v", loaded.Bootnodes)
	}
	if loaded.Block() != GenesisBlock() {
		t.Error("loaded document does not materialize the default genesis block")
	}
}

func TestGenesisFromJSONMissingFile(t *testing.T) {
	if _, err := GenesisFromJSON(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
