package persistence

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// DistributorState is the durable aggregate state of one campaign.
// MerkleRoot and Authority are written once at initialization and never
// change afterward; the balance fields move with fund/claim operations.
type DistributorState struct {
	// CampaignID is the 8-byte seed namespacing this campaign's records.
	CampaignID types.CampaignID `json:"campaignId"`

	// MerkleRoot is the 32-byte commitment to the entitlement set.
	MerkleRoot common.Hash `json:"merkleRoot"`

	// Authority is the only identity allowed to fund the campaign.
	Authority common.Address `json:"authority"`

	// CustodyBalance is the pooled balance available to pay claims.
	// Invariant: CustodyBalance == TotalFunded - TotalClaimed, never negative.
	CustodyBalance uint64 `json:"custodyBalance"`

	// TotalFunded is the cumulative amount ever funded.
	TotalFunded uint64 `json:"totalFunded"`

	// TotalClaimed is the cumulative amount ever paid out.
	TotalClaimed uint64 `json:"totalClaimed"`

	// Initialized marks that initialize has completed for this campaign.
	Initialized bool `json:"initialized"`

	// InitializedAt is the Unix timestamp of initialization.
	InitializedAt int64 `json:"initializedAt"`
}

// Clone returns a deep copy of the state.
func (s *DistributorState) Clone() *DistributorState {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// ClaimRecord marks one recipient as paid. Existence of a record means the
// entitlement has been claimed; records are write-once and never mutated.
type ClaimRecord struct {
	// CampaignID the claim belongs to.
	CampaignID types.CampaignID `json:"campaignId"`

	// Recipient that was paid.
	Recipient common.Address `json:"recipient"`

	// Amount actually paid, exactly the amount bound in the merkle leaf.
	Amount uint64 `json:"amount"`

	// ClaimedAt is the Unix timestamp of the payout.
	ClaimedAt int64 `json:"claimedAt"`
}

// Clone returns a deep copy of the record.
func (r *ClaimRecord) Clone() *ClaimRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
