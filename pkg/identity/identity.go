package identity

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// The distributor core never authenticates callers; it only compares
// addresses. This package is the boundary that turns a request signature
// into an address: clients sign the canonical digest of their operation and
// the server recovers the signer. Forging a caller address therefore
// requires the corresponding secp256k1 key.

// ClaimDigest is the canonical message a recipient signs to claim:
// keccak256("merkledrop/claim" || campaignID || recipient || amount_le).
func ClaimDigest(campaignID types.CampaignID, recipient common.Address, amount uint64) [32]byte {
	data := make([]byte, 0, 16+8+common.AddressLength+8)
	data = append(data, []byte("merkledrop/claim")...)
	data = append(data, campaignID[:]...)
	data = append(data, recipient.Bytes()...)

	var amountLE [8]byte
	binary.LittleEndian.PutUint64(amountLE[:], amount)
	data = append(data, amountLE[:]...)

	return [32]byte(crypto.Keccak256Hash(data))
}

// FundDigest is the canonical message the authority signs to fund:
// keccak256("merkledrop/fund" || campaignID || amount_le).
func FundDigest(campaignID types.CampaignID, amount uint64) [32]byte {
	data := make([]byte, 0, 15+8+8)
	data = append(data, []byte("merkledrop/fund")...)
	data = append(data, campaignID[:]...)

	var amountLE [8]byte
	binary.LittleEndian.PutUint64(amountLE[:], amount)
	data = append(data, amountLE[:]...)

	return [32]byte(crypto.Keccak256Hash(data))
}

// Sign produces a 65-byte [R || S || V] signature over the digest.
func Sign(digest [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

// Recover returns the address that signed the digest.
func Recover(digest [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}
