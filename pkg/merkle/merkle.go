package merkle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// BuildTree creates a binary merkle tree from an entitlement set.
// Entitlements are sorted by recipient address before building so the same
// set always produces the same root, regardless of input order.
//
// Pairs are hashed in sorted order (smaller digest first) and a lone node at
// the end of an odd-sized level promotes unchanged to the next level. Both
// rules must match the verifier's fold exactly.
func BuildTree(entitlements []*types.Entitlement) (*Tree, error) {
	if len(entitlements) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty entitlement list")
	}

	sorted := sortEntitlements(entitlements)

	// Duplicate recipients make an entitlement ambiguous; reject at setup.
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Recipient == sorted[i-1].Recipient {
			return nil, fmt.Errorf("duplicate recipient %s in entitlement list", sorted[i].Recipient.Hex())
		}
	}

	// Hash all leaves
	leaves := make([][32]byte, len(sorted))
	index := make(map[common.Address]int, len(sorted))
	for i, ent := range sorted {
		leaves[i] = HashEntitlement(ent.Recipient, ent.Amount)
		index[ent.Recipient] = i
	}

	// Build tree levels bottom-up
	levels := make([][][32]byte, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 < len(currentLevel) {
				nextLevel = append(nextLevel, hashPair(currentLevel[i], currentLevel[i+1]))
			} else {
				// Lone node promotes unchanged.
				nextLevel = append(nextLevel, currentLevel[i])
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	if len(currentLevel) != 1 {
		return nil, fmt.Errorf("merkle tree construction failed: final level has %d nodes instead of 1", len(currentLevel))
	}

	return &Tree{
		Entitlements: sorted,
		Leaves:       leaves,
		Root:         currentLevel[0],
		levels:       levels,
		index:        index,
	}, nil
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof is the sequence of sibling digests from leaf to root. Levels
// where the node promoted alone contribute no proof element.
func (t *Tree) GenerateProof(leafIndex int) (types.Proof, error) {
	if leafIndex < 0 || leafIndex >= len(t.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(t.Leaves))
	}

	proof := make(types.Proof, 0)
	index := leafIndex

	for level := 0; level < len(t.levels)-1; level++ {
		currentLevel := t.levels[level]

		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
		} else {
			siblingIndex = index - 1
		}

		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}
		// A lone node has no sibling at this level; it moved up unchanged.

		index = index / 2
	}

	return proof, nil
}

// ProofFor returns the proof for the given recipient's leaf.
func (t *Tree) ProofFor(recipient common.Address) (types.Proof, error) {
	i, ok := t.index[recipient]
	if !ok {
		return nil, fmt.Errorf("recipient %s not in entitlement set", recipient.Hex())
	}
	return t.GenerateProof(i)
}

// Proofs returns the proof for every recipient in the set.
func (t *Tree) Proofs() (map[common.Address]types.Proof, error) {
	proofs := make(map[common.Address]types.Proof, len(t.Entitlements))
	for i, ent := range t.Entitlements {
		proof, err := t.GenerateProof(i)
		if err != nil {
			return nil, err
		}
		proofs[ent.Recipient] = proof
	}
	return proofs, nil
}

// VerifyProof checks that (recipient, amount) is committed to by root.
// It recomputes the leaf and folds the proof left to right with the same
// sorted-pair rule the builder uses. An empty proof is valid exactly when
// the leaf itself equals the root (single-entry campaign).
func VerifyProof(recipient common.Address, amount uint64, proof types.Proof, root [32]byte) bool {
	computed := HashEntitlement(recipient, amount)

	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}

	return computed == root
}

// HashEntitlement computes the leaf digest for one entitlement:
// keccak256(recipient[20] || amount_le[8]). Fixed-width fields keep the
// encoding unambiguous without delimiters.
func HashEntitlement(recipient common.Address, amount uint64) [32]byte {
	data := make([]byte, 0, common.AddressLength+8)
	data = append(data, recipient.Bytes()...)

	var amountLE [8]byte
	binary.LittleEndian.PutUint64(amountLE[:], amount)
	data = append(data, amountLE[:]...)

	return [32]byte(crypto.Keccak256Hash(data))
}

// sortEntitlements returns a copy sorted by recipient address ascending.
func sortEntitlements(entitlements []*types.Entitlement) []*types.Entitlement {
	sorted := make([]*types.Entitlement, len(entitlements))
	copy(sorted, entitlements)

	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Recipient.Bytes(), sorted[j].Recipient.Bytes()) < 0
	})

	return sorted
}

// hashPair computes keccak256 of the two digests concatenated in sorted
// order, so the verifier never needs to know which side a sibling was on.
func hashPair(a, b [32]byte) [32]byte {
	data := make([]byte, 64)
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(data[0:32], a[:])
		copy(data[32:64], b[:])
	} else {
		copy(data[0:32], b[:])
		copy(data[32:64], a[:])
	}

	return [32]byte(crypto.Keccak256Hash(data))
}
