package transfer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Engine moves value between external accounts and the campaign's pooled
// custody. The distributor only drives the accounting; actual token movement
// is this collaborator's job. Implementations must make each call
// all-or-nothing: on error, no value has moved.
type Engine interface {
	// In moves amount from the funder's account into custody.
	In(ctx context.Context, from common.Address, amount uint64) error

	// Out moves amount from custody to the recipient's account.
	Out(ctx context.Context, to common.Address, amount uint64) error
}
