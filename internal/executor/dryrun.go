package executor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/solana-sniper-bot/autotrader/internal/idhash"
	"github.com/solana-sniper-bot/autotrader/internal/models"
)

// DefaultDryRunPrice is the simulated price of any token in the reference asset.
const DefaultDryRunPrice = 0.000001

// DryRun fills every valid request at a simulated price without touching the chain.
type DryRun struct {
	reference string
	price     func(tokenID string) float64
	seq       atomic.Uint64
}

// NewDryRun creates a simulated executor. price may be nil.
func NewDryRun(referenceMint string, price func(tokenID string) float64) *DryRun {
	if price == nil {
		price = func(string) float64 { return DefaultDryRunPrice }
	}
	return &DryRun{reference: referenceMint, price: price}
}

func (d *DryRun) Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ActionResult{}, err
	}
	if err := ValidateRequest(req); err != nil {
		return models.ActionResult{}, err
	}

	seq := d.seq.Add(1)
	ref := "dryrun-" + idhash.Key(req.UserID, req.InputAsset, req.OutputAsset, fmt.Sprint(req.Amount), fmt.Sprint(seq))[:32]
	amount := decimal.NewFromFloat(req.Amount)

	if req.InputAsset == d.reference {
		p := decimal.NewFromFloat(d.price(req.OutputAsset))
		if !p.IsPositive() {
			return models.ActionResult{Success: false, Error: "no price for " + req.OutputAsset}, nil
		}
		return models.ActionResult{
			Success:      true,
			TxRef:        ref,
			Price:        p.InexactFloat64(),
			OutputAmount: amount.Div(p).InexactFloat64(),
		}, nil
	}

	p := decimal.NewFromFloat(d.price(req.InputAsset))
	if !p.IsPositive() {
		return models.ActionResult{Success: false, Error: "no price for " + req.InputAsset}, nil
	}
	return models.ActionResult{
		Success:      true,
		TxRef:        ref,
		Price:        decimal.NewFromInt(1).Div(p).InexactFloat64(),
		OutputAmount: amount.Mul(p).InexactFloat64(),
	}, nil
}
