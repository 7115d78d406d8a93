package distributor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dropforge/merkledrop-go/pkg/logger"
	"github.com/dropforge/merkledrop-go/pkg/merkle"
	"github.com/dropforge/merkledrop-go/pkg/persistence"
	"github.com/dropforge/merkledrop-go/pkg/transfer"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// Distributor is the mutable aggregate of one distribution campaign: the
// committed merkle root, the custody balance accounting, and the claim
// ledger. It pays each committed entitlement exactly once.
//
// Concurrency model: the aggregate state is guarded by a RWMutex; each
// recipient additionally has their own claim lock, so claims for different
// recipients only meet at the balance mutation itself. The durable ledger
// write is a conditional put (persistence.ErrClaimExists), which closes the
// double-claim race even when several distributor replicas share a backend.
type Distributor struct {
	store  persistence.IDistributorPersistence
	engine transfer.Engine
	events EventSink
	logger *zap.Logger

	mu    sync.RWMutex
	state *persistence.DistributorState

	claimLocks [claimLockStripes]sync.Mutex
}

// claimLockStripes bounds the claim lock set regardless of how many
// distinct addresses ever attempt a claim. Recipients landing on the same
// stripe merely serialize against each other.
const claimLockStripes = 256

// Config holds distributor construction options.
type Config struct {
	Logger *zap.Logger // Optional logger, will create default if nil
	Events EventSink   // Optional event sink, defaults to NoopSink
}

// NewDistributor creates a distributor over the given ledger store and
// transfer engine. The distributor starts Uninitialized; call Initialize for
// a fresh campaign or Resume to pick up a persisted one.
func NewDistributor(cfg Config, store persistence.IDistributorPersistence, engine transfer.Engine) *Distributor {
	log := cfg.Logger
	if log == nil {
		log, _ = logger.NewLogger(&logger.LoggerConfig{Debug: false})
	}

	events := cfg.Events
	if events == nil {
		events = NoopSink{}
	}

	return &Distributor{
		store:  store,
		engine: engine,
		events: events,
		logger: log,
	}
}

// Initialize transitions Uninitialized -> Active. It commits the merkle
// root, the campaign seed and the authority, and starts the custody balance
// at zero. The root can never be changed afterward; this is the only
// operation allowed to set it.
func (d *Distributor) Initialize(root common.Hash, campaignID types.CampaignID, authority common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != nil && d.state.Initialized {
		return ErrAlreadyInitialized
	}

	// The same campaign identity must not be re-initialized from another
	// process either.
	existing, err := d.store.LoadDistributorState(campaignID)
	if err != nil {
		return fmt.Errorf("failed to check existing campaign state: %w", err)
	}
	if existing != nil && existing.Initialized {
		return ErrAlreadyInitialized
	}

	state := &persistence.DistributorState{
		CampaignID:    campaignID,
		MerkleRoot:    root,
		Authority:     authority,
		Initialized:   true,
		InitializedAt: time.Now().Unix(),
	}

	if err := d.store.SaveDistributorState(state); err != nil {
		return fmt.Errorf("failed to persist distributor state: %w", err)
	}

	d.state = state
	d.logger.Sugar().Infow("Distributor initialized",
		"campaign_id", campaignID.Hex(),
		"merkle_root", root.Hex(),
		"authority", authority.Hex())

	return nil
}

// Resume loads a previously initialized campaign from the store, e.g. after
// a process restart. Fails with ErrUninitialized if the campaign was never
// initialized.
func (d *Distributor) Resume(campaignID types.CampaignID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != nil && d.state.Initialized {
		return ErrAlreadyInitialized
	}

	state, err := d.store.LoadDistributorState(campaignID)
	if err != nil {
		return fmt.Errorf("failed to load distributor state: %w", err)
	}
	if state == nil || !state.Initialized {
		return ErrUninitialized
	}

	d.state = state
	d.logger.Sugar().Infow("Distributor resumed",
		"campaign_id", campaignID.Hex(),
		"custody_balance", state.CustodyBalance,
		"total_claimed", state.TotalClaimed)

	return nil
}

// Fund increases the custody balance. Authority only; the external
// transfer-in and the accounting update apply together or not at all.
func (d *Distributor) Fund(ctx context.Context, amount uint64, caller common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Active check comes first: an uninitialized distributor reports
	// Uninitialized no matter how malformed the request is.
	if d.state == nil || !d.state.Initialized {
		return ErrUninitialized
	}
	if caller != d.state.Authority {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	if err := d.engine.In(ctx, caller, amount); err != nil {
		return fmt.Errorf("funding transfer failed: %w", err)
	}

	d.state.CustodyBalance += amount
	d.state.TotalFunded += amount

	if err := d.store.SaveDistributorState(d.state.Clone()); err != nil {
		// Undo the accounting and send the funds back so neither applies.
		d.state.CustodyBalance -= amount
		d.state.TotalFunded -= amount
		if revErr := d.engine.Out(ctx, caller, amount); revErr != nil {
			d.logger.Sugar().Errorw("Failed to reverse funding transfer after persist failure",
				"caller", caller.Hex(), "amount", amount, "error", revErr)
		}
		return fmt.Errorf("failed to persist funded state: %w", err)
	}

	d.events.TokensFunded(types.FundedEvent{
		CampaignID: d.state.CampaignID,
		Funder:     caller,
		Amount:     amount,
	})

	return nil
}

// Claim pays out one entitlement. The amount is authorized solely by the
// merkle proof against the committed root, never by the caller. On success
// the ledger record, the balance decrement and the external payout have all
// been applied; on any error none of them have.
func (d *Distributor) Claim(ctx context.Context, recipient common.Address, amount uint64, proof types.Proof, caller common.Address) (*persistence.ClaimRecord, error) {
	d.mu.RLock()
	if d.state == nil || !d.state.Initialized {
		d.mu.RUnlock()
		return nil, ErrUninitialized
	}
	campaignID := d.state.CampaignID
	root := d.state.MerkleRoot
	d.mu.RUnlock()

	// Self-claim only; delegated claims are not supported.
	if caller != recipient {
		return nil, ErrUnauthorized
	}

	// Serialize attempts for this recipient. Claims for other recipients
	// proceed in parallel up to the balance mutation.
	lock := d.lockFor(recipient)
	lock.Lock()
	defer lock.Unlock()

	existing, err := d.store.LoadClaimRecord(campaignID, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to read claim ledger: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyClaimed
	}

	// Sole gate authorizing the amount.
	if !merkle.VerifyProof(recipient, amount, proof, [32]byte(root)) {
		return nil, ErrInvalidProof
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.CustodyBalance < amount {
		return nil, ErrInsufficientFunds
	}

	d.state.CustodyBalance -= amount
	d.state.TotalClaimed += amount

	record := &persistence.ClaimRecord{
		CampaignID: campaignID,
		Recipient:  recipient,
		Amount:     amount,
		ClaimedAt:  time.Now().Unix(),
	}

	// Ledger first, payout second. A crash between the two strands the
	// amount in custody behind a claim record, which is recoverable by
	// reconciliation; paying out before the record is durable could pay
	// the same recipient twice after a restart.
	if err := d.store.CommitClaim(d.state.Clone(), record); err != nil {
		d.state.CustodyBalance += amount
		d.state.TotalClaimed -= amount

		if err == persistence.ErrClaimExists {
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	if err := d.engine.Out(ctx, recipient, amount); err != nil {
		// Compensate: remove the ledger record and restore the accounting
		// so the recipient can retry once the payout path recovers.
		d.state.CustodyBalance += amount
		d.state.TotalClaimed -= amount
		if revErr := d.store.RevertClaim(d.state.Clone(), record); revErr != nil {
			d.logger.Sugar().Errorw("Failed to revert claim record after payout failure",
				"recipient", recipient.Hex(), "amount", amount, "error", revErr)
		}
		return nil, fmt.Errorf("payout transfer failed: %w", err)
	}

	d.events.TokensClaimed(types.ClaimedEvent{
		CampaignID: campaignID,
		Claimer:    recipient,
		Amount:     amount,
		ClaimedAt:  record.ClaimedAt,
	})

	return record.Clone(), nil
}

// Status returns a snapshot of the distributor's aggregate state.
func (d *Distributor) Status() (*persistence.DistributorState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state == nil || !d.state.Initialized {
		return nil, ErrUninitialized
	}

	return d.state.Clone(), nil
}

// ClaimStatus reports whether a recipient has been paid. Returns nil when
// the recipient has not claimed.
func (d *Distributor) ClaimStatus(recipient common.Address) (*persistence.ClaimRecord, error) {
	d.mu.RLock()
	if d.state == nil || !d.state.Initialized {
		d.mu.RUnlock()
		return nil, ErrUninitialized
	}
	campaignID := d.state.CampaignID
	d.mu.RUnlock()

	return d.store.LoadClaimRecord(campaignID, recipient)
}

// Claims returns all claim records for the campaign.
func (d *Distributor) Claims() ([]*persistence.ClaimRecord, error) {
	d.mu.RLock()
	if d.state == nil || !d.state.Initialized {
		d.mu.RUnlock()
		return nil, ErrUninitialized
	}
	campaignID := d.state.CampaignID
	d.mu.RUnlock()

	return d.store.ListClaimRecords(campaignID)
}

// lockFor returns the claim lock stripe for a recipient. Ethereum
// addresses are uniformly distributed, so the last byte spreads claimers
// evenly over the stripes.
func (d *Distributor) lockFor(recipient common.Address) *sync.Mutex {
	return &d.claimLocks[int(recipient[common.AddressLength-1])]
}
