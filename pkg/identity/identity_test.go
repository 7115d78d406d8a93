package identity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

var testCampaign = types.CampaignID{1, 2, 3, 4, 5, 6, 7, 8}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	digest := ClaimDigest(testCampaign, addr, 100)

	sig, err := Sign(digest, key)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)

	recovered, err := Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestRecover_WrongDigest(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := Sign(ClaimDigest(testCampaign, addr, 100), key)
	require.NoError(t, err)

	// Recovering against a different digest yields a different address
	recovered, err := Recover(ClaimDigest(testCampaign, addr, 999), sig)
	require.NoError(t, err)
	assert.NotEqual(t, addr, recovered)
}

func TestRecover_BadSignatureLength(t *testing.T) {
	_, err := Recover(ClaimDigest(testCampaign, common.Address{}, 1), []byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature must be")
}

func TestDigestsAreDomainSeparated(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	// Claim and fund digests over overlapping fields must differ
	assert.NotEqual(t, ClaimDigest(testCampaign, addr, 100), FundDigest(testCampaign, 100))

	// Different campaigns produce different digests
	other := types.CampaignID{9, 9, 9, 9, 9, 9, 9, 9}
	assert.NotEqual(t, ClaimDigest(testCampaign, addr, 100), ClaimDigest(other, addr, 100))
}
