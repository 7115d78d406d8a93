package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/dropforge/merkledrop-go/pkg/distributor"
	"github.com/dropforge/merkledrop-go/pkg/identity"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// handleFund handles the /fund endpoint for authority deposits
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.FundRequestV1
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	status, err := s.dist.Status()
	if err != nil {
		writeDistributorError(w, err)
		return
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid signature encoding: %v", err), http.StatusBadRequest)
		return
	}

	caller, err := identity.Recover(identity.FundDigest(status.CampaignID, req.Amount), sig)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to recover signer: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.dist.Fund(r.Context(), req.Amount, caller); err != nil {
		s.logger.Sugar().Warnw("Fund rejected", "caller", caller.Hex(), "amount", req.Amount, "error", err)
		writeDistributorError(w, err)
		return
	}

	status, err = s.dist.Status()
	if err != nil {
		writeDistributorError(w, err)
		return
	}

	writeJSON(w, types.FundResponseV1{
		Amount:         req.Amount,
		CustodyBalance: status.CustodyBalance,
	})
}

// handleClaim handles the /claim endpoint for entitlement redemption
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		http.Error(w, "Too many claim requests", http.StatusTooManyRequests)
		return
	}

	var req types.ClaimRequestV1
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if !common.IsHexAddress(req.Recipient) {
		http.Error(w, fmt.Sprintf("Invalid recipient address: %s", req.Recipient), http.StatusBadRequest)
		return
	}
	recipient := common.HexToAddress(req.Recipient)

	proof, err := types.HexToProof(req.Proof)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid proof encoding: %v", err), http.StatusBadRequest)
		return
	}

	status, err := s.dist.Status()
	if err != nil {
		writeDistributorError(w, err)
		return
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid signature encoding: %v", err), http.StatusBadRequest)
		return
	}

	caller, err := identity.Recover(identity.ClaimDigest(status.CampaignID, recipient, req.Amount), sig)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to recover signer: %v", err), http.StatusBadRequest)
		return
	}

	record, err := s.dist.Claim(r.Context(), recipient, req.Amount, proof, caller)
	if err != nil {
		s.logger.Sugar().Warnw("Claim rejected", "recipient", recipient.Hex(), "amount", req.Amount, "error", err)
		writeDistributorError(w, err)
		return
	}

	writeJSON(w, types.ClaimResponseV1{
		Claimer:   record.Recipient.Hex(),
		Amount:    record.Amount,
		ClaimedAt: record.ClaimedAt,
	})
}

// handleStatus handles the /status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.dist.Status()
	if err != nil {
		writeDistributorError(w, err)
		return
	}

	claims, err := s.dist.Claims()
	if err != nil {
		writeDistributorError(w, err)
		return
	}

	writeJSON(w, types.StatusResponseV1{
		CampaignID:     status.CampaignID.Hex(),
		MerkleRoot:     status.MerkleRoot.Hex(),
		Authority:      status.Authority.Hex(),
		CustodyBalance: status.CustodyBalance,
		TotalFunded:    status.TotalFunded,
		TotalClaimed:   status.TotalClaimed,
		ClaimCount:     len(claims),
	})
}

// handleClaimStatus handles the /claim/status endpoint
func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recipientParam := r.URL.Query().Get("recipient")
	if !common.IsHexAddress(recipientParam) {
		http.Error(w, fmt.Sprintf("Invalid recipient address: %s", recipientParam), http.StatusBadRequest)
		return
	}
	recipient := common.HexToAddress(recipientParam)

	record, err := s.dist.ClaimStatus(recipient)
	if err != nil {
		writeDistributorError(w, err)
		return
	}

	resp := types.ClaimStatusResponseV1{
		Recipient: recipient.Hex(),
		Claimed:   record != nil,
	}
	if record != nil {
		resp.Amount = record.Amount
		resp.ClaimedAt = record.ClaimedAt
	}

	writeJSON(w, resp)
}

// handleHealthz handles the /healthz liveness endpoint
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeDistributorError maps distributor sentinel errors to HTTP statuses.
func writeDistributorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, distributor.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, distributor.ErrAlreadyClaimed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, distributor.ErrInvalidProof):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, distributor.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, distributor.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, distributor.ErrUninitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, distributor.ErrAlreadyInitialized):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
