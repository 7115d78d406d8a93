package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dropforge/merkledrop-go/pkg/persistence"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixState       = "state:"
	keyPrefixClaim       = "claim:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a production-ready persistence implementation using
// Badger. Provides durable, disk-based storage with ACID guarantees; a claim
// commit is a single serializable transaction covering the existence check,
// the claim record write and the state write.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for
// durability. A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true // fsync on every write; claims must survive a crash
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// stateKey builds the storage key for a campaign's distributor state.
func stateKey(campaignID types.CampaignID) []byte {
	return []byte(fmt.Sprintf("%s%s", keyPrefixState, campaignID.Hex()))
}

// claimKey builds the storage key for one recipient's claim record,
// derived from (campaignID, recipient) so ledger entries are unique per pair.
func claimKey(campaignID types.CampaignID, recipient common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", keyPrefixClaim, campaignID.Hex(), recipient.Hex()))
}

// claimPrefix is the key prefix covering all claim records of a campaign.
func claimPrefix(campaignID types.CampaignID) []byte {
	return []byte(fmt.Sprintf("%s%s:", keyPrefixClaim, campaignID.Hex()))
}

// SaveDistributorState persists the campaign's aggregate state
func (b *BadgerPersistence) SaveDistributorState(state *persistence.DistributorState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil DistributorState")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributorState: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(stateKey(state.CampaignID), data)
	})
}

// LoadDistributorState retrieves the campaign's aggregate state
func (b *BadgerPersistence) LoadDistributorState(campaignID types.CampaignID) (*persistence.DistributorState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(stateKey(campaignID))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load DistributorState: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	state, err := persistence.UnmarshalDistributorState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DistributorState: %w", err)
	}

	return state, nil
}

// LoadClaimRecord retrieves a recipient's claim record
func (b *BadgerPersistence) LoadClaimRecord(campaignID types.CampaignID, recipient common.Address) (*persistence.ClaimRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(claimKey(campaignID, recipient))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load ClaimRecord: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	record, err := persistence.UnmarshalClaimRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ClaimRecord: %w", err)
	}

	return record, nil
}

// CommitClaim writes the claim record and the updated distributor state in
// one transaction. The existence check runs inside the same transaction, so
// two racing commits for the same recipient cannot both succeed.
func (b *BadgerPersistence) CommitClaim(state *persistence.DistributorState, record *persistence.ClaimRecord) error {
	if state == nil || record == nil {
		return fmt.Errorf("cannot commit nil state or claim record")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	stateData, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributorState: %w", err)
	}
	recordData, err := persistence.MarshalClaimRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ClaimRecord: %w", err)
	}

	key := claimKey(record.CampaignID, record.Recipient)

	return b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return persistence.ErrClaimExists
		}
		if err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to check existing claim: %w", err)
		}

		if err := txn.Set(key, recordData); err != nil {
			return err
		}
		return txn.Set(stateKey(state.CampaignID), stateData)
	})
}

// RevertClaim deletes a claim record and writes the given state in one
// transaction, undoing a commit whose payout failed.
func (b *BadgerPersistence) RevertClaim(state *persistence.DistributorState, record *persistence.ClaimRecord) error {
	if state == nil || record == nil {
		return fmt.Errorf("cannot revert nil state or claim record")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	stateData, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributorState: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(claimKey(record.CampaignID, record.Recipient)); err != nil {
			return fmt.Errorf("failed to delete claim record: %w", err)
		}
		return txn.Set(stateKey(state.CampaignID), stateData)
	})
}

// ListClaimRecords returns all claim records for a campaign
func (b *BadgerPersistence) ListClaimRecords(campaignID types.CampaignID) ([]*persistence.ClaimRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := make([]*persistence.ClaimRecord, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = claimPrefix(campaignID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...) // Copy value
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalClaimRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal ClaimRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			records = append(records, record)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list ClaimRecords: %w", err)
	}

	return records, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
