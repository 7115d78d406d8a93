package badger

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/merkledrop-go/pkg/logger"
	"github.com/dropforge/merkledrop-go/pkg/persistence"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

var testCampaign = types.CampaignID{0xBB, 1, 2, 3, 4, 5, 6, 7}

func newTestPersistence(t *testing.T) *BadgerPersistence {
	t.Helper()

	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bp.Close() })

	return bp
}

func testState(balance uint64) *persistence.DistributorState {
	return &persistence.DistributorState{
		CampaignID:     testCampaign,
		MerkleRoot:     common.HexToHash("0xabcdef"),
		Authority:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		CustodyBalance: balance,
		TotalFunded:    balance,
		Initialized:    true,
		InitializedAt:  1700000000,
	}
}

func testRecord(recipient common.Address, amount uint64) *persistence.ClaimRecord {
	return &persistence.ClaimRecord{
		CampaignID: testCampaign,
		Recipient:  recipient,
		Amount:     amount,
		ClaimedAt:  1700000100,
	}
}

func TestBadgerPersistence_SaveAndLoadState(t *testing.T) {
	bp := newTestPersistence(t)

	state := testState(500)
	require.NoError(t, bp.SaveDistributorState(state))

	loaded, err := bp.LoadDistributorState(testCampaign)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, state.CampaignID, loaded.CampaignID)
	assert.Equal(t, state.MerkleRoot, loaded.MerkleRoot)
	assert.Equal(t, state.Authority, loaded.Authority)
	assert.Equal(t, state.CustodyBalance, loaded.CustodyBalance)
}

func TestBadgerPersistence_LoadState_NotFound(t *testing.T) {
	bp := newTestPersistence(t)

	loaded, err := bp.LoadDistributorState(types.CampaignID{9, 9})
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_CommitClaim(t *testing.T) {
	bp := newTestPersistence(t)

	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	state := testState(500)
	state.CustodyBalance = 400
	state.TotalClaimed = 100

	require.NoError(t, bp.CommitClaim(state, testRecord(recipient, 100)))

	// Claim record and state land together
	record, err := bp.LoadClaimRecord(testCampaign, recipient)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, uint64(100), record.Amount)

	loaded, err := bp.LoadDistributorState(testCampaign)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), loaded.CustodyBalance)

	// Repeat commit is rejected without touching state
	err = bp.CommitClaim(state, testRecord(recipient, 100))
	require.ErrorIs(t, err, persistence.ErrClaimExists)
}

func TestBadgerPersistence_CommitClaim_Concurrent(t *testing.T) {
	bp := newTestPersistence(t)

	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	state := testState(500)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bp.CommitClaim(state, testRecord(recipient, 100)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one concurrent commit should win")
}

func TestBadgerPersistence_RevertClaim(t *testing.T) {
	bp := newTestPersistence(t)

	recipient := common.HexToAddress("0x8888888888888888888888888888888888888888")
	committed := testState(500)
	committed.CustodyBalance = 400
	committed.TotalClaimed = 100
	record := testRecord(recipient, 100)

	require.NoError(t, bp.CommitClaim(committed, record))
	require.NoError(t, bp.RevertClaim(testState(500), record))

	// Record deleted and state restored in one transaction
	loaded, err := bp.LoadClaimRecord(testCampaign, recipient)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	state, err := bp.LoadDistributorState(testCampaign)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), state.CustodyBalance)
	assert.Equal(t, uint64(0), state.TotalClaimed)

	// The entitlement is open again
	require.NoError(t, bp.CommitClaim(committed, record))
}

func TestBadgerPersistence_ListClaimRecords(t *testing.T) {
	bp := newTestPersistence(t)

	state := testState(1000)
	recipients := []common.Address{
		common.HexToAddress("0x4444444444444444444444444444444444444444"),
		common.HexToAddress("0x5555555555555555555555555555555555555555"),
	}
	for _, r := range recipients {
		require.NoError(t, bp.CommitClaim(state, testRecord(r, 100)))
	}

	records, err := bp.ListClaimRecords(testCampaign)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBadgerPersistence_ListClaimRecords_IsolatedByCampaign(t *testing.T) {
	bp := newTestPersistence(t)

	state := testState(1000)
	require.NoError(t, bp.CommitClaim(state, testRecord(common.HexToAddress("0x66"), 100)))

	other := types.CampaignID{0xCC, 0, 0, 0, 0, 0, 0, 1}
	records, err := bp.ListClaimRecords(other)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBadgerPersistence_PersistsAcrossReopen(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	recipient := common.HexToAddress("0x7777777777777777777777777777777777777777")
	require.NoError(t, bp.CommitClaim(testState(500), testRecord(recipient, 100)))
	require.NoError(t, bp.Close())

	// Reopen the same directory; the claim must survive
	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	record, err := bp2.LoadClaimRecord(testCampaign, recipient)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, uint64(100), record.Amount)
}

func TestBadgerPersistence_Closed(t *testing.T) {
	bp := newTestPersistence(t)
	require.NoError(t, bp.Close())

	// Idempotent
	require.NoError(t, bp.Close())

	err := bp.SaveDistributorState(testState(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	require.Error(t, bp.HealthCheck())
}

func TestBadgerPersistence_HealthCheck(t *testing.T) {
	bp := newTestPersistence(t)
	require.NoError(t, bp.HealthCheck())
}
