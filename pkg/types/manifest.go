package types

import (
	"encoding/json"
	"fmt"
	"os"
)

// CampaignManifestV1 is the artifact the tree builder produces and the drop
// server consumes. It pins the campaign identity and merkle root, and carries
// every recipient's amount and proof so entries can be handed out-of-band to
// claimers.
type CampaignManifestV1 struct {
	GenerationID string `json:"generationId"` // unique per builder run
	GeneratedAt  int64  `json:"generatedAt"`  // unix seconds
	CampaignID   string `json:"campaignId"`
	MerkleRoot   string `json:"merkleRoot"`

	TotalAmount uint64            `json:"totalAmount"`
	Entries     []*ManifestEntry `json:"entries"`
}

// ManifestEntry is one recipient's claim material.
type ManifestEntry struct {
	Recipient string   `json:"recipient"`
	Amount    uint64   `json:"amount"`
	Proof     []string `json:"proof"`
}

// LoadCampaignManifest reads and parses a manifest file.
func LoadCampaignManifest(path string) (*CampaignManifestV1, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign manifest: %w", err)
	}

	var manifest CampaignManifestV1
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse campaign manifest: %w", err)
	}
	return &manifest, nil
}

// Write serializes the manifest to path with indentation for readability.
func (m *CampaignManifestV1) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize campaign manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write campaign manifest: %w", err)
	}
	return nil
}
