package merkle

import (
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// createTestEntitlements creates n entitlements with distinct recipients.
func createTestEntitlements(n int) []*types.Entitlement {
	ents := make([]*types.Entitlement, n)
	for i := 0; i < n; i++ {
		ents[i] = &types.Entitlement{
			Recipient: randomAddress(),
			Amount:    uint64(i+1) * 100,
		}
	}
	return ents
}

// randomAddress generates a random 20-byte address for testing
func randomAddress() common.Address {
	var addr common.Address
	_, _ = rand.Read(addr[:]) // Ignore error in test helper
	return addr
}

// TestBuildTreeRoundTrip builds trees of various sizes and verifies every
// entry's proof against the root.
func TestBuildTreeRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		numEnts int
	}{
		{"Single entry", 1},
		{"Two entries", 2},
		{"Three entries", 3},
		{"Four entries (power of 2)", 4},
		{"Seven entries", 7},
		{"Eight entries (power of 2)", 8},
		{"Fifteen entries", 15},
		{"One thousand entries", 1000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ents := createTestEntitlements(tc.numEnts)
			tree, err := BuildTree(ents)
			require.NoError(t, err)
			require.NotNil(t, tree)

			require.Equal(t, tc.numEnts, len(tree.Leaves))
			require.NotEqual(t, [32]byte{}, tree.Root)

			for _, ent := range tree.Entitlements {
				proof, err := tree.ProofFor(ent.Recipient)
				require.NoError(t, err)

				valid := VerifyProof(ent.Recipient, ent.Amount, proof, tree.Root)
				require.True(t, valid, "Proof for recipient %s should be valid", ent.Recipient.Hex())
			}
		})
	}
}

// TestBuildTreeEmpty tests that building a tree from no entitlements fails
func TestBuildTreeEmpty(t *testing.T) {
	tree, err := BuildTree([]*types.Entitlement{})
	require.Error(t, err)
	require.Nil(t, tree)
	require.Contains(t, err.Error(), "empty")
}

// TestBuildTreeDuplicateRecipient tests that duplicate recipients are rejected
func TestBuildTreeDuplicateRecipient(t *testing.T) {
	addr := randomAddress()
	ents := []*types.Entitlement{
		{Recipient: addr, Amount: 100},
		{Recipient: randomAddress(), Amount: 200},
		{Recipient: addr, Amount: 300},
	}

	tree, err := BuildTree(ents)
	require.Error(t, err)
	require.Nil(t, tree)
	require.Contains(t, err.Error(), "duplicate recipient")
}

// TestSingleEntryTree tests the depth-0 edge case: the root equals the sole
// leaf digest and the proof is empty.
func TestSingleEntryTree(t *testing.T) {
	ent := &types.Entitlement{Recipient: randomAddress(), Amount: 42}
	tree, err := BuildTree([]*types.Entitlement{ent})
	require.NoError(t, err)

	require.Equal(t, HashEntitlement(ent.Recipient, ent.Amount), tree.Root)

	proof, err := tree.ProofFor(ent.Recipient)
	require.NoError(t, err)
	require.Empty(t, proof)

	require.True(t, VerifyProof(ent.Recipient, ent.Amount, proof, tree.Root))
}

// TestDeterministicRoot tests that input order does not affect the root
func TestDeterministicRoot(t *testing.T) {
	ents := createTestEntitlements(7)

	tree1, err := BuildTree(ents)
	require.NoError(t, err)

	// Reverse the input order
	reversed := make([]*types.Entitlement, len(ents))
	for i, ent := range ents {
		reversed[len(ents)-1-i] = ent
	}

	tree2, err := BuildTree(reversed)
	require.NoError(t, err)

	require.Equal(t, tree1.Root, tree2.Root)
}

// TestVerifyProofRejections tests invalid claims against a real tree
func TestVerifyProofRejections(t *testing.T) {
	ents := createTestEntitlements(4)
	tree, err := BuildTree(ents)
	require.NoError(t, err)

	target := tree.Entitlements[0]
	proof, err := tree.ProofFor(target.Recipient)
	require.NoError(t, err)

	t.Run("Wrong amount", func(t *testing.T) {
		require.False(t, VerifyProof(target.Recipient, target.Amount+1, proof, tree.Root))
	})

	t.Run("Wrong recipient", func(t *testing.T) {
		require.False(t, VerifyProof(randomAddress(), target.Amount, proof, tree.Root))
	})

	t.Run("Mismatched proof", func(t *testing.T) {
		other := tree.Entitlements[2]
		require.False(t, VerifyProof(other.Recipient, other.Amount, proof, tree.Root))
	})

	t.Run("Wrong root", func(t *testing.T) {
		invalidRoot := [32]byte{1, 2, 3, 4, 5}
		require.False(t, VerifyProof(target.Recipient, target.Amount, proof, invalidRoot))
	})

	t.Run("Tampered sibling", func(t *testing.T) {
		tampered := make(types.Proof, len(proof))
		copy(tampered, proof)
		tampered[0][0] ^= 0xFF
		require.False(t, VerifyProof(target.Recipient, target.Amount, tampered, tree.Root))
	})

	t.Run("Truncated proof", func(t *testing.T) {
		require.False(t, VerifyProof(target.Recipient, target.Amount, proof[:len(proof)-1], tree.Root))
	})
}

// TestProofUnforgeability probes that pairs outside the set never verify
// against the root, even with sibling sequences drawn from the tree.
func TestProofUnforgeability(t *testing.T) {
	ents := createTestEntitlements(8)
	tree, err := BuildTree(ents)
	require.NoError(t, err)

	proofs, err := tree.Proofs()
	require.NoError(t, err)

	for _, ent := range tree.Entitlements {
		for _, proof := range proofs {
			// Foreign (address, amount) pairs must not verify under any
			// proof from this tree.
			require.False(t, VerifyProof(randomAddress(), ent.Amount, proof, tree.Root))
			require.False(t, VerifyProof(ent.Recipient, ent.Amount+999, proof, tree.Root))
		}
	}
}

// TestProofForUnknownRecipient tests proof lookup for an address outside the set
func TestProofForUnknownRecipient(t *testing.T) {
	tree, err := BuildTree(createTestEntitlements(3))
	require.NoError(t, err)

	proof, err := tree.ProofFor(randomAddress())
	require.Error(t, err)
	require.Nil(t, proof)
	require.Contains(t, err.Error(), "not in entitlement set")
}

// TestGenerateProofOutOfBounds tests index bounds checking
func TestGenerateProofOutOfBounds(t *testing.T) {
	tree, err := BuildTree(createTestEntitlements(3))
	require.NoError(t, err)

	_, err = tree.GenerateProof(-1)
	require.Error(t, err)

	_, err = tree.GenerateProof(3)
	require.Error(t, err)
}

// TestHashEntitlementEncoding pins the leaf encoding: address bytes followed
// by the amount as fixed-width little-endian.
func TestHashEntitlementEncoding(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	h1 := HashEntitlement(addr, 1)
	h2 := HashEntitlement(addr, 256)
	require.NotEqual(t, h1, h2)

	// Same inputs always hash the same
	require.Equal(t, h1, HashEntitlement(addr, 1))
}
