package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/dropforge/merkledrop-go/pkg/logger"
	"github.com/dropforge/merkledrop-go/pkg/merkle"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

// entitlementInput is the builder's input row format.
type entitlementInput struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

func main() {
	app := &cli.App{
		Name:  "tree-builder",
		Usage: "Builds a campaign manifest from an entitlement list",
		Description: `Reads a JSON entitlement list, builds the campaign merkle tree, and writes
a manifest containing the campaign identity, the merkle root, and every
recipient's amount and proof. Hand each recipient their manifest entry
out-of-band; initialize the drop server with the full manifest.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the entitlement list JSON ([{recipient, amount}, ...])",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path to write the campaign manifest to",
				Value:   "campaign.json",
			},
			&cli.StringFlag{
				Name:  "campaign-id",
				Usage: "8-byte campaign identity as hex; generated when omitted",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Action: runTreeBuilder,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runTreeBuilder(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	campaignID, err := resolveCampaignID(c.String("campaign-id"))
	if err != nil {
		return err
	}

	entitlements, err := loadEntitlements(c.String("input"))
	if err != nil {
		return err
	}

	l.Sugar().Infow("Building campaign tree",
		"campaign_id", campaignID.Hex(),
		"entitlements", len(entitlements))

	tree, err := merkle.BuildTree(entitlements)
	if err != nil {
		return fmt.Errorf("failed to build merkle tree: %w", err)
	}

	proofs, err := tree.Proofs()
	if err != nil {
		return fmt.Errorf("failed to generate proofs: %w", err)
	}

	var totalAmount uint64
	entries := make([]*types.ManifestEntry, 0, len(tree.Entitlements))
	for _, ent := range tree.Entitlements {
		totalAmount += ent.Amount
		entries = append(entries, &types.ManifestEntry{
			Recipient: ent.Recipient.Hex(),
			Amount:    ent.Amount,
			Proof:     proofs[ent.Recipient].Hex(),
		})
	}

	manifest := &types.CampaignManifestV1{
		GenerationID: uuid.New().String(),
		GeneratedAt:  time.Now().Unix(),
		CampaignID:   campaignID.Hex(),
		MerkleRoot:   hexutil.Encode(tree.Root[:]),
		TotalAmount:  totalAmount,
		Entries:      entries,
	}

	output := c.String("output")
	if err := manifest.Write(output); err != nil {
		return err
	}

	l.Sugar().Infow("Campaign manifest written",
		"path", output,
		"generation_id", manifest.GenerationID,
		"merkle_root", manifest.MerkleRoot,
		"total_amount", totalAmount)

	return nil
}

// resolveCampaignID parses the flag value, or derives a fresh random identity
// from a v4 UUID when none was given.
func resolveCampaignID(flagValue string) (types.CampaignID, error) {
	if flagValue != "" {
		id, err := types.HexToCampaignID(flagValue)
		if err != nil {
			return types.CampaignID{}, fmt.Errorf("invalid campaign-id: %w", err)
		}
		return id, nil
	}

	var id types.CampaignID
	u := uuid.New()
	copy(id[:], u[:8])
	return id, nil
}

func loadEntitlements(path string) ([]*types.Entitlement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entitlement list: %w", err)
	}

	var rows []entitlementInput
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse entitlement list: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("entitlement list is empty")
	}

	entitlements := make([]*types.Entitlement, 0, len(rows))
	for i, row := range rows {
		if !common.IsHexAddress(row.Recipient) {
			return nil, fmt.Errorf("row %d: invalid recipient address: %s", i, row.Recipient)
		}
		if row.Amount == 0 {
			return nil, fmt.Errorf("row %d: amount must be positive", i)
		}
		entitlements = append(entitlements, &types.Entitlement{
			Recipient: common.HexToAddress(row.Recipient),
			Amount:    row.Amount,
		})
	}
	return entitlements, nil
}
