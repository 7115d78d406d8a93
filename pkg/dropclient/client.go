package dropclient

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/dropforge/merkledrop-go/pkg/identity"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// ClientConfig holds the configuration for the drop client
type ClientConfig struct {
	// ServerURL is the drop server base URL, e.g. "http://localhost:8000"
	ServerURL string
	// CampaignID is the campaign the server is serving; claim and fund
	// signatures are bound to it.
	CampaignID types.CampaignID
	// Key signs claim/fund digests. Its address is the caller identity.
	Key    *ecdsa.PrivateKey
	Logger *zap.Logger

	// HTTPTimeout bounds each request. Defaults to 30s.
	HTTPTimeout time.Duration
}

// Client provides a reusable library interface for drop server operations
type Client struct {
	serverURL  string
	campaignID types.CampaignID
	key        *ecdsa.PrivateKey
	address    common.Address
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new drop client instance
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if config.Key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		serverURL:  config.ServerURL,
		campaignID: config.CampaignID,
		key:        config.Key,
		address:    crypto.PubkeyToAddress(config.Key.PublicKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     config.Logger,
	}, nil
}

// Address returns the caller identity derived from the signing key.
func (c *Client) Address() common.Address {
	return c.address
}

// Claim redeems the caller's entitlement using the proof from their campaign
// manifest entry.
func (c *Client) Claim(amount uint64, proof types.Proof) (*types.ClaimResponseV1, error) {
	sig, err := identity.Sign(identity.ClaimDigest(c.campaignID, c.address, amount), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}

	req := types.ClaimRequestV1{
		Recipient: c.address.Hex(),
		Amount:    amount,
		Proof:     proof.Hex(),
		Signature: hexutil.Encode(sig),
	}

	c.logger.Sugar().Infow("Submitting claim",
		"recipient", c.address.Hex(),
		"amount", amount,
	)

	var resp types.ClaimResponseV1
	if err := c.post("/claim", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClaimFromManifest looks up the caller's entry in the manifest and claims it.
func (c *Client) ClaimFromManifest(manifest *types.CampaignManifestV1) (*types.ClaimResponseV1, error) {
	for _, entry := range manifest.Entries {
		if common.HexToAddress(entry.Recipient) != c.address {
			continue
		}
		proof, err := types.HexToProof(entry.Proof)
		if err != nil {
			return nil, fmt.Errorf("invalid proof in manifest entry: %w", err)
		}
		return c.Claim(entry.Amount, proof)
	}
	return nil, fmt.Errorf("no manifest entry for %s", c.address.Hex())
}

// Fund deposits amount into campaign custody. The signing key must belong to
// the campaign authority.
func (c *Client) Fund(amount uint64) (*types.FundResponseV1, error) {
	sig, err := identity.Sign(identity.FundDigest(c.campaignID, amount), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign fund request: %w", err)
	}

	req := types.FundRequestV1{
		Amount:    amount,
		Signature: hexutil.Encode(sig),
	}

	c.logger.Sugar().Infow("Funding campaign", "amount", amount)

	var resp types.FundResponseV1
	if err := c.post("/fund", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the campaign snapshot.
func (c *Client) Status() (*types.StatusResponseV1, error) {
	var resp types.StatusResponseV1
	if err := c.get("/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClaimStatus reports whether a recipient has already been paid.
func (c *Client) ClaimStatus(recipient common.Address) (*types.ClaimStatusResponseV1, error) {
	var resp types.ClaimStatusResponseV1
	if err := c.get("/claim/status?recipient="+recipient.Hex(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(path string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.serverURL+path, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drop server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.serverURL + path)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drop server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
