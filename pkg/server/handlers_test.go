package server

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/merkledrop-go/pkg/distributor"
	"github.com/dropforge/merkledrop-go/pkg/identity"
	"github.com/dropforge/merkledrop-go/pkg/merkle"
	"github.com/dropforge/merkledrop-go/pkg/persistence/memory"
	"github.com/dropforge/merkledrop-go/pkg/transfer"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

var serverTestCampaign = types.CampaignID{0xCA, 0xFE, 0, 0, 0, 0, 0, 1}

// serverFixture holds a wired server plus the keys needed to sign requests.
type serverFixture struct {
	server       *Server
	dist         *distributor.Distributor
	bank         *transfer.TokenBank
	proofs       map[common.Address]types.Proof
	authorityKey *ecdsa.PrivateKey
	authority    common.Address
	recipientKey *ecdsa.PrivateKey
	recipient    common.Address
	amount       uint64
}

func newServerFixture(t *testing.T, cfg Config) *serverFixture {
	t.Helper()

	authorityKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	authority := crypto.PubkeyToAddress(authorityKey.PublicKey)

	recipientKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	recipient := crypto.PubkeyToAddress(recipientKey.PublicKey)

	otherRecipient := common.HexToAddress("0x00000000000000000000000000000000000000B2")

	tree, err := merkle.BuildTree([]*types.Entitlement{
		{Recipient: recipient, Amount: 100},
		{Recipient: otherRecipient, Amount: 200},
	})
	require.NoError(t, err)
	proofs, err := tree.Proofs()
	require.NoError(t, err)

	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	bank := transfer.NewTokenBank()
	bank.Mint(authority, 10_000)

	dist := distributor.NewDistributor(distributor.Config{}, store, bank)
	require.NoError(t, dist.Initialize(common.Hash(tree.Root), serverTestCampaign, authority))

	return &serverFixture{
		server:       NewServer(cfg, dist),
		dist:         dist,
		bank:         bank,
		proofs:       proofs,
		authorityKey: authorityKey,
		authority:    authority,
		recipientKey: recipientKey,
		recipient:    recipient,
		amount:       100,
	}
}

func (f *serverFixture) signedFundRequest(t *testing.T, amount uint64) types.FundRequestV1 {
	t.Helper()
	sig, err := identity.Sign(identity.FundDigest(serverTestCampaign, amount), f.authorityKey)
	require.NoError(t, err)
	return types.FundRequestV1{Amount: amount, Signature: hexutil.Encode(sig)}
}

func (f *serverFixture) signedClaimRequest(t *testing.T, amount uint64) types.ClaimRequestV1 {
	t.Helper()
	sig, err := identity.Sign(identity.ClaimDigest(serverTestCampaign, f.recipient, amount), f.recipientKey)
	require.NoError(t, err)
	return types.ClaimRequestV1{
		Recipient: f.recipient.Hex(),
		Amount:    amount,
		Proof:     f.proofs[f.recipient].Hex(),
		Signature: hexutil.Encode(sig),
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleFund(t *testing.T) {
	f := newServerFixture(t, Config{Port: 0})
	handler := f.server.GetHandler()

	t.Run("Method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/fund", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/fund", bytes.NewReader([]byte("invalid json")))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Authority deposit succeeds", func(t *testing.T) {
		w := postJSON(t, handler, "/fund", f.signedFundRequest(t, 500))
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.FundResponseV1
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, uint64(500), resp.Amount)
		assert.Equal(t, uint64(500), resp.CustodyBalance)
	})

	t.Run("Non-authority signer is forbidden", func(t *testing.T) {
		strangerKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		sig, err := identity.Sign(identity.FundDigest(serverTestCampaign, 100), strangerKey)
		require.NoError(t, err)

		w := postJSON(t, handler, "/fund", types.FundRequestV1{Amount: 100, Signature: hexutil.Encode(sig)})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Zero amount is rejected", func(t *testing.T) {
		w := postJSON(t, handler, "/fund", f.signedFundRequest(t, 0))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Malformed signature is rejected", func(t *testing.T) {
		w := postJSON(t, handler, "/fund", types.FundRequestV1{Amount: 100, Signature: "0x1234"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleClaim(t *testing.T) {
	f := newServerFixture(t, Config{Port: 0})
	handler := f.server.GetHandler()

	w := postJSON(t, handler, "/fund", f.signedFundRequest(t, 500))
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("Valid claim succeeds", func(t *testing.T) {
		w := postJSON(t, handler, "/claim", f.signedClaimRequest(t, f.amount))
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.ClaimResponseV1
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, f.recipient.Hex(), resp.Claimer)
		assert.Equal(t, f.amount, resp.Amount)
		assert.Equal(t, f.amount, f.bank.BalanceOf(f.recipient))
	})

	t.Run("Repeat claim conflicts", func(t *testing.T) {
		w := postJSON(t, handler, "/claim", f.signedClaimRequest(t, f.amount))
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Wrong amount is unprocessable", func(t *testing.T) {
		f2 := newServerFixture(t, Config{Port: 0})
		h2 := f2.server.GetHandler()
		require.Equal(t, http.StatusOK, postJSON(t, h2, "/fund", f2.signedFundRequest(t, 500)).Code)

		w := postJSON(t, h2, "/claim", f2.signedClaimRequest(t, 999))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Signature from another key is forbidden", func(t *testing.T) {
		f2 := newServerFixture(t, Config{Port: 0})
		h2 := f2.server.GetHandler()
		require.Equal(t, http.StatusOK, postJSON(t, h2, "/fund", f2.signedFundRequest(t, 500)).Code)

		strangerKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		sig, err := identity.Sign(identity.ClaimDigest(serverTestCampaign, f2.recipient, f2.amount), strangerKey)
		require.NoError(t, err)

		req := types.ClaimRequestV1{
			Recipient: f2.recipient.Hex(),
			Amount:    f2.amount,
			Proof:     f2.proofs[f2.recipient].Hex(),
			Signature: hexutil.Encode(sig),
		}
		w := postJSON(t, h2, "/claim", req)
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Invalid recipient address", func(t *testing.T) {
		req := f.signedClaimRequest(t, f.amount)
		req.Recipient = "not-an-address"
		w := postJSON(t, handler, "/claim", req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Invalid proof encoding", func(t *testing.T) {
		req := f.signedClaimRequest(t, f.amount)
		req.Proof = []string{"0xzz"}
		w := postJSON(t, handler, "/claim", req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Underfunded claim conflicts", func(t *testing.T) {
		f2 := newServerFixture(t, Config{Port: 0})
		h2 := f2.server.GetHandler()
		require.Equal(t, http.StatusOK, postJSON(t, h2, "/fund", f2.signedFundRequest(t, 10)).Code)

		w := postJSON(t, h2, "/claim", f2.signedClaimRequest(t, f2.amount))
		require.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandleClaim_RateLimit(t *testing.T) {
	f := newServerFixture(t, Config{Port: 0, ClaimRateLimit: 1})
	handler := f.server.GetHandler()

	require.Equal(t, http.StatusOK, postJSON(t, handler, "/fund", f.signedFundRequest(t, 500)).Code)

	// The limiter allows a burst of one; the second immediate request is shed
	first := postJSON(t, handler, "/claim", f.signedClaimRequest(t, f.amount))
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, handler, "/claim", f.signedClaimRequest(t, f.amount))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestHandleStatus(t *testing.T) {
	f := newServerFixture(t, Config{Port: 0})
	handler := f.server.GetHandler()

	require.Equal(t, http.StatusOK, postJSON(t, handler, "/fund", f.signedFundRequest(t, 500)).Code)
	require.Equal(t, http.StatusOK, postJSON(t, handler, "/claim", f.signedClaimRequest(t, f.amount)).Code)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.StatusResponseV1
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, serverTestCampaign.Hex(), resp.CampaignID)
	assert.Equal(t, f.authority.Hex(), resp.Authority)
	assert.Equal(t, uint64(400), resp.CustodyBalance)
	assert.Equal(t, uint64(500), resp.TotalFunded)
	assert.Equal(t, uint64(100), resp.TotalClaimed)
	assert.Equal(t, 1, resp.ClaimCount)
}

func TestHandleClaimStatus(t *testing.T) {
	f := newServerFixture(t, Config{Port: 0})
	handler := f.server.GetHandler()

	require.Equal(t, http.StatusOK, postJSON(t, handler, "/fund", f.signedFundRequest(t, 500)).Code)

	get := func(recipient string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/claim/status?recipient="+recipient, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("Unclaimed recipient", func(t *testing.T) {
		w := get(f.recipient.Hex())
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.ClaimStatusResponseV1
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.False(t, resp.Claimed)
	})

	t.Run("Claimed recipient", func(t *testing.T) {
		require.Equal(t, http.StatusOK, postJSON(t, handler, "/claim", f.signedClaimRequest(t, f.amount)).Code)

		w := get(f.recipient.Hex())
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.ClaimStatusResponseV1
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Claimed)
		assert.Equal(t, f.amount, resp.Amount)
	})

	t.Run("Invalid recipient address", func(t *testing.T) {
		w := get("bogus")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleHealthz(t *testing.T) {
	f := newServerFixture(t, Config{Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUninitializedDistributorIsUnavailable(t *testing.T) {
	store := memory.NewMemoryPersistence()
	defer func() { _ = store.Close() }()

	dist := distributor.NewDistributor(distributor.Config{}, store, transfer.NewTokenBank())
	srv := NewServer(Config{Port: 0}, dist)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
