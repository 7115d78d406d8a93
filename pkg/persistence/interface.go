package persistence

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// ErrClaimExists is returned by CommitClaim when a claim record already
// exists for the recipient. The distributor maps this to AlreadyClaimed.
// Implementations must detect this inside the same transaction that writes
// the record, never as a separate read.
var ErrClaimExists = errors.New("claim record already exists")

// IDistributorPersistence defines the interface for durably storing a
// distribution campaign's state and its claim ledger.
// All implementations must be thread-safe as Distributor operations are
// concurrent.
//
// Storage layout per campaign:
// - one DistributorState record (root, authority, balances)
// - one ClaimRecord per *claimed* recipient, keyed by (campaignID, recipient).
//   Unclaimed recipients have no record; ledger storage grows with claims,
//   not with entitlement-list size.
type IDistributorPersistence interface {
	// Distributor State

	// SaveDistributorState persists the campaign's aggregate state.
	// Overwrites any existing state for the same campaign ID.
	SaveDistributorState(state *DistributorState) error

	// LoadDistributorState retrieves the campaign's aggregate state.
	// Returns nil if no state exists (fresh campaign), error only on
	// storage failure.
	LoadDistributorState(campaignID types.CampaignID) (*DistributorState, error)

	// Claim Ledger

	// LoadClaimRecord retrieves the claim record for a recipient.
	// Returns nil if the recipient has not claimed, error only on storage
	// failure.
	LoadClaimRecord(campaignID types.CampaignID, recipient common.Address) (*ClaimRecord, error)

	// CommitClaim atomically writes a claim record and the updated
	// distributor state as a single transaction. Returns ErrClaimExists
	// (without writing anything) if a record for the recipient already
	// exists. This is the durable check-and-set that closes the
	// concurrent double-claim race.
	CommitClaim(state *DistributorState, record *ClaimRecord) error

	// RevertClaim removes a claim record and writes the given distributor
	// state as a single transaction. Compensates a committed claim whose
	// payout could not be completed, reopening the recipient's
	// entitlement. A missing record is not an error.
	RevertClaim(state *DistributorState, record *ClaimRecord) error

	// ListClaimRecords returns all claim records for a campaign.
	// Returns empty slice if none exist, error only on storage failure.
	ListClaimRecords(campaignID types.CampaignID) ([]*ClaimRecord, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	// Should be called during server startup to fail fast.
	HealthCheck() error
}
