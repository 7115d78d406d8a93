package distributor

import (
	"go.uber.org/zap"

	"github.com/dropforge/merkledrop-go/pkg/types"
)

// EventSink receives notifications after successful state transitions.
// Sinks are called synchronously after the operation has committed; they
// must not block for long and cannot fail the operation.
type EventSink interface {
	TokensClaimed(event types.ClaimedEvent)
	TokensFunded(event types.FundedEvent)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) TokensClaimed(types.ClaimedEvent) {}
func (NoopSink) TokensFunded(types.FundedEvent)   {}

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) TokensClaimed(event types.ClaimedEvent) {
	s.Logger.Sugar().Infow("Tokens claimed",
		"campaign_id", event.CampaignID.Hex(),
		"claimer", event.Claimer.Hex(),
		"amount", event.Amount,
		"claimed_at", event.ClaimedAt)
}

func (s LogSink) TokensFunded(event types.FundedEvent) {
	s.Logger.Sugar().Infow("Tokens funded",
		"campaign_id", event.CampaignID.Hex(),
		"funder", event.Funder.Hex(),
		"amount", event.Amount)
}
