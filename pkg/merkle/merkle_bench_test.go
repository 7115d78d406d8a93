package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkBuildTree1000(b *testing.B) {
	ents := createTestEntitlements(1000)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := BuildTree(ents)
		require.NoError(b, err)
	}
}

func BenchmarkVerifyProof1000(b *testing.B) {
	ents := createTestEntitlements(1000)
	tree, err := BuildTree(ents)
	require.NoError(b, err)

	target := tree.Entitlements[500]
	proof, err := tree.ProofFor(target.Recipient)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !VerifyProof(target.Recipient, target.Amount, proof, tree.Root) {
			b.Fatal("proof should verify")
		}
	}
}
