package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CampaignID is the 8-byte seed that namespaces a distribution campaign.
// All persisted state for a campaign is keyed under this seed.
type CampaignID [8]byte

// Hex returns the 0x-prefixed hex encoding of the campaign ID.
func (c CampaignID) Hex() string {
	return hexutil.Encode(c[:])
}

// MarshalText encodes the campaign ID as 0x-prefixed hex for JSON.
func (c CampaignID) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText decodes a 0x-prefixed hex campaign ID.
func (c *CampaignID) UnmarshalText(text []byte) error {
	id, err := HexToCampaignID(string(text))
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// HexToCampaignID parses a 0x-prefixed hex string into a CampaignID.
func HexToCampaignID(s string) (CampaignID, error) {
	var id CampaignID
	b, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid campaign id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("campaign id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Entitlement is one recipient's fixed right to claim. The full entitlement
// set is defined once at campaign setup and never mutated.
type Entitlement struct {
	Recipient common.Address `json:"recipient"`
	Amount    uint64         `json:"amount"`
}

// Proof is an authentication path: the ordered sibling digests needed to
// recompute the merkle root from one leaf. A proof is valid for exactly the
// root it was built against.
type Proof [][32]byte

// Hex returns the proof as 0x-prefixed hex strings for wire encoding.
func (p Proof) Hex() []string {
	out := make([]string, len(p))
	for i, h := range p {
		out[i] = hexutil.Encode(h[:])
	}
	return out
}

// HexToProof parses a slice of 0x-prefixed 32-byte hex strings into a Proof.
func HexToProof(elems []string) (Proof, error) {
	proof := make(Proof, len(elems))
	for i, s := range elems {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid proof element %d: %w", i, err)
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("proof element %d must be 32 bytes, got %d", i, len(b))
		}
		copy(proof[i][:], b)
	}
	return proof, nil
}

// ClaimedEvent is emitted when a claim pays out.
type ClaimedEvent struct {
	CampaignID CampaignID     `json:"campaignId"`
	Claimer    common.Address `json:"claimer"`
	Amount     uint64         `json:"amount"`
	ClaimedAt  int64          `json:"claimedAt"`
}

// FundedEvent is emitted when the custody balance is topped up.
type FundedEvent struct {
	CampaignID CampaignID     `json:"campaignId"`
	Funder     common.Address `json:"funder"`
	Amount     uint64         `json:"amount"`
}
