package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropforge/merkledrop-go/pkg/persistence"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixState       = "drop:state:"
	keyPrefixClaim       = "drop:claim:"
	keySchemaVersion     = "drop:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetClaims = "drop:claims:index:"
)

// maxCommitRetries bounds optimistic retries when a watched claim key is
// touched by another writer between WATCH and EXEC.
const maxCommitRetries = 5

// RedisPersistence is a production-ready persistence implementation using
// Redis. Suitable for deployments where several distributor replicas share
// one claim ledger; the claim commit uses WATCH/MULTI so only one replica
// can ever write a given recipient's record.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant
	// setups). If set, it is prepended to all keys, e.g. "myapp:" results in
	// keys like "myapp:drop:state:0x...". If empty, keys use the default
	// "drop:" prefix.
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// stateKey builds the Redis key for a campaign's distributor state.
func (r *RedisPersistence) stateKey(campaignID types.CampaignID) string {
	return r.prefixKey(keyPrefixState + campaignID.Hex())
}

// claimKey builds the Redis key for one recipient's claim record.
func (r *RedisPersistence) claimKey(campaignID types.CampaignID, recipient common.Address) string {
	return r.prefixKey(fmt.Sprintf("%s%s:%s", keyPrefixClaim, campaignID.Hex(), recipient.Hex()))
}

// claimIndexKey is the set holding all claimed recipients of a campaign.
func (r *RedisPersistence) claimIndexKey(campaignID types.CampaignID) string {
	return r.prefixKey(keySetClaims + campaignID.Hex())
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveDistributorState persists the campaign's aggregate state
func (r *RedisPersistence) SaveDistributorState(state *persistence.DistributorState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil DistributorState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributorState: %w", err)
	}

	if err := r.client.Set(ctx, r.stateKey(state.CampaignID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save DistributorState: %w", err)
	}

	return nil
}

// LoadDistributorState retrieves the campaign's aggregate state
func (r *RedisPersistence) LoadDistributorState(campaignID types.CampaignID) (*persistence.DistributorState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := r.client.Get(ctx, r.stateKey(campaignID)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load DistributorState: %w", err)
	}

	state, err := persistence.UnmarshalDistributorState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DistributorState: %w", err)
	}

	return state, nil
}

// LoadClaimRecord retrieves a recipient's claim record
func (r *RedisPersistence) LoadClaimRecord(campaignID types.CampaignID, recipient common.Address) (*persistence.ClaimRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := r.client.Get(ctx, r.claimKey(campaignID, recipient)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ClaimRecord: %w", err)
	}

	record, err := persistence.UnmarshalClaimRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ClaimRecord: %w", err)
	}

	return record, nil
}

// CommitClaim atomically writes a claim record and the updated state.
// The claim key is watched; if it exists the commit fails with
// ErrClaimExists, and if another writer touches it between WATCH and EXEC
// the transaction aborts and is retried.
func (r *RedisPersistence) CommitClaim(state *persistence.DistributorState, record *persistence.ClaimRecord) error {
	if state == nil || record == nil {
		return fmt.Errorf("cannot commit nil state or claim record")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	stateData, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributorState: %w", err)
	}
	recordData, err := persistence.MarshalClaimRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ClaimRecord: %w", err)
	}

	key := r.claimKey(record.CampaignID, record.Recipient)
	indexKey := r.claimIndexKey(record.CampaignID)
	stateKey := r.stateKey(state.CampaignID)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return persistence.ErrClaimExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, recordData, 0)
			pipe.SAdd(ctx, indexKey, record.Recipient.Hex())
			pipe.Set(ctx, stateKey, stateData, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxCommitRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue // Watched key changed under us, retry
		}
		if err != nil {
			if err == persistence.ErrClaimExists {
				return persistence.ErrClaimExists
			}
			return fmt.Errorf("failed to commit claim: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to commit claim after %d retries", maxCommitRetries)
}

// RevertClaim deletes a claim record, drops it from the claim index and
// writes the given state, all in one MULTI/EXEC pipeline.
func (r *RedisPersistence) RevertClaim(state *persistence.DistributorState, record *persistence.ClaimRecord) error {
	if state == nil || record == nil {
		return fmt.Errorf("cannot revert nil state or claim record")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	stateData, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributorState: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.claimKey(record.CampaignID, record.Recipient))
		pipe.SRem(ctx, r.claimIndexKey(record.CampaignID), record.Recipient.Hex())
		pipe.Set(ctx, r.stateKey(state.CampaignID), stateData, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revert claim: %w", err)
	}

	return nil
}

// ListClaimRecords returns all claim records for a campaign
func (r *RedisPersistence) ListClaimRecords(campaignID types.CampaignID) ([]*persistence.ClaimRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	recipients, err := r.client.SMembers(ctx, r.claimIndexKey(campaignID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list claim index: %w", err)
	}

	records := make([]*persistence.ClaimRecord, 0, len(recipients))
	for _, hexAddr := range recipients {
		data, err := r.client.Get(ctx, r.claimKey(campaignID, common.HexToAddress(hexAddr))).Bytes()
		if err == redis.Nil {
			r.logger.Sugar().Warnw("Claim index entry without record, skipping",
				"campaign_id", campaignID.Hex(), "recipient", hexAddr)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load claim for %s: %w", hexAddr, err)
		}

		record, err := persistence.UnmarshalClaimRecord(data)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal ClaimRecord, skipping",
				"recipient", hexAddr, "error", err)
			continue
		}

		records = append(records, record)
	}

	return records, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	schemaKey := r.prefixKey(keySchemaVersion)
	_, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
