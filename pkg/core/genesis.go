package core

import (
	"encoding/json"
	"fmt"
	"os"
)

// GenesisPreviousHash is the sentinel previous_hash of the first block.
const GenesisPreviousHash = "genesis"

// Fixed genesis constants. The genesis block is the trust anchor of the
// ledger: its hash is pinned rather than recomputed and it is exempt from
// validation, so every field here is part of the network agreement.
const (
	genesisHash      = "0000c7987775c9f7832f7800d7a5df8e0ca6d900ed67adfaa78755b710508131"
	genesisData      = "genesis!"
	genesisNonce     = 161051
	genesisTimestamp = 1648994652
)

// GenesisBlock returns the hardcoded first ledger entry seeded into every
// node at startup.
func GenesisBlock() Block {
	return Block{
		ID:           0,
		Hash:         genesisHash,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    genesisTimestamp,
		Data:         genesisData,
		Nonce:        genesisNonce,
	}
}

// Genesis is the chain bootstrap document written by `cinder init` and read
// back at startup. The block fields default to the hardcoded genesis constants
// and exist in the document so private networks can pin their own anchor.
type Genesis struct {
	ChainID   string   `json:"chainId"`
	Bootnodes []string `json:"bootnodes"`

	Timestamp    int64  `json:"timestamp"`
	Data         string `json:"data"`
	Nonce        uint64 `json:"nonce"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
}

// DefaultGenesis returns the genesis document for the public network.
func DefaultGenesis() *Genesis {
	return &Genesis{
		ChainID:      "cinder-1",
		Bootnodes:    []string{},
		Timestamp:    genesisTimestamp,
		Data:         genesisData,
		Nonce:        genesisNonce,
		Hash:         genesisHash,
		PreviousHash: GenesisPreviousHash,
	}
}

// Block materializes the genesis block described by the document.
func (g *Genesis) Block() Block {
	return Block{
		ID:           0,
		Hash:         g.Hash,
		PreviousHash: g.PreviousHash,
		Timestamp:    g.Timestamp,
		Data:         g.Data,
		Nonce:        g.Nonce,
	}
}

// ToJSON writes the genesis document to the given path.
func (g *Genesis) ToJSON(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GenesisFromJSON loads a genesis document from the given path.
func GenesisFromJSON(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g := new(Genesis)
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	return g, nil
}
