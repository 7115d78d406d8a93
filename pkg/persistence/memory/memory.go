package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dropforge/merkledrop-go/pkg/persistence"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IDistributorPersistence.
// This implementation is intended for TESTING and development use.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.Mutex; CommitClaim's existence check and writes
// happen under the same lock acquisition, so the check-and-set is atomic.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.Mutex

	// Distributor state: campaignID -> DistributorState
	states map[types.CampaignID]*persistence.DistributorState

	// Claim ledger: campaignID -> recipient -> ClaimRecord
	claims map[types.CampaignID]map[common.Address]*persistence.ClaimRecord

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since durable backends should be used in production.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Use the badger or redis backend for production")

	return &MemoryPersistence{
		states: make(map[types.CampaignID]*persistence.DistributorState),
		claims: make(map[types.CampaignID]map[common.Address]*persistence.ClaimRecord),
	}
}

// SaveDistributorState persists the campaign's aggregate state.
func (m *MemoryPersistence) SaveDistributorState(state *persistence.DistributorState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil DistributorState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.states[state.CampaignID] = state.Clone()
	return nil
}

// LoadDistributorState retrieves the campaign's aggregate state.
func (m *MemoryPersistence) LoadDistributorState(campaignID types.CampaignID) (*persistence.DistributorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	state, exists := m.states[campaignID]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return state.Clone(), nil
}

// LoadClaimRecord retrieves a recipient's claim record.
func (m *MemoryPersistence) LoadClaimRecord(campaignID types.CampaignID, recipient common.Address) (*persistence.ClaimRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, exists := m.claims[campaignID][recipient]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return record.Clone(), nil
}

// CommitClaim atomically writes a claim record and the updated state.
func (m *MemoryPersistence) CommitClaim(state *persistence.DistributorState, record *persistence.ClaimRecord) error {
	if state == nil || record == nil {
		return fmt.Errorf("cannot commit nil state or claim record")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ledger, exists := m.claims[record.CampaignID]
	if !exists {
		ledger = make(map[common.Address]*persistence.ClaimRecord)
		m.claims[record.CampaignID] = ledger
	}

	if _, claimed := ledger[record.Recipient]; claimed {
		return persistence.ErrClaimExists
	}

	ledger[record.Recipient] = record.Clone()
	m.states[state.CampaignID] = state.Clone()
	return nil
}

// RevertClaim removes a claim record and writes the given state.
func (m *MemoryPersistence) RevertClaim(state *persistence.DistributorState, record *persistence.ClaimRecord) error {
	if state == nil || record == nil {
		return fmt.Errorf("cannot revert nil state or claim record")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	if ledger, exists := m.claims[record.CampaignID]; exists {
		delete(ledger, record.Recipient)
	}
	m.states[state.CampaignID] = state.Clone()
	return nil
}

// ListClaimRecords returns all claim records for a campaign, sorted by
// recipient address for deterministic output.
func (m *MemoryPersistence) ListClaimRecords(campaignID types.CampaignID) ([]*persistence.ClaimRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ledger := m.claims[campaignID]

	result := make([]*persistence.ClaimRecord, 0, len(ledger))
	for _, record := range ledger {
		result = append(result, record.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Recipient.Hex() < result[j].Recipient.Hex()
	})

	return result, nil
}

// Close shuts down the persistence layer.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}
