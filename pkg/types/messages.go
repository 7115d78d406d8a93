package types

// ClaimRequestV1 is the wire format for a claim submission. The proof and
// amount come from the recipient's out-of-band campaign manifest entry; the
// signature covers the canonical claim digest and identifies the caller.
type ClaimRequestV1 struct {
	Recipient string   `json:"recipient"`
	Amount    uint64   `json:"amount"`
	Proof     []string `json:"proof"`
	Signature string   `json:"signature"`
}

// ClaimResponseV1 is returned on a successful claim.
type ClaimResponseV1 struct {
	Claimer   string `json:"claimer"`
	Amount    uint64 `json:"amount"`
	ClaimedAt int64  `json:"claimedAt"`
}

// FundRequestV1 tops up the custody balance. Only the campaign authority's
// signature is accepted.
type FundRequestV1 struct {
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
}

// FundResponseV1 is returned on a successful fund operation.
type FundResponseV1 struct {
	Amount         uint64 `json:"amount"`
	CustodyBalance uint64 `json:"custodyBalance"`
}

// StatusResponseV1 is a read-only snapshot of the distributor.
type StatusResponseV1 struct {
	CampaignID     string `json:"campaignId"`
	MerkleRoot     string `json:"merkleRoot"`
	Authority      string `json:"authority"`
	CustodyBalance uint64 `json:"custodyBalance"`
	TotalFunded    uint64 `json:"totalFunded"`
	TotalClaimed   uint64 `json:"totalClaimed"`
	ClaimCount     int    `json:"claimCount"`
}

// ClaimStatusResponseV1 reports whether a recipient has already been paid.
type ClaimStatusResponseV1 struct {
	Recipient string `json:"recipient"`
	Claimed   bool   `json:"claimed"`
	Amount    uint64 `json:"amount,omitempty"`
	ClaimedAt int64  `json:"claimedAt,omitempty"`
}
