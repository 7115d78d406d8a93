package merkle

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// Tree is a binary merkle tree committing to a fixed entitlement set.
// The tree uses keccak256 with sorted-pair hashing, so proofs carry no
// left/right position information.
type Tree struct {
	// Entitlements are the committed entries, sorted by recipient address.
	Entitlements []*types.Entitlement

	// Leaves contains the leaf hashes, in the same order as Entitlements.
	Leaves [][32]byte

	// Root is the merkle root committing to the full set.
	Root [32]byte

	// levels stores all tree levels for proof generation.
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte

	// index maps recipient address to leaf position.
	index map[common.Address]int
}
