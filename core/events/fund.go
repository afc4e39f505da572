package events

import (
	"math/big"
	"strconv"

	"fundpool/core/types"
	"fundpool/crypto"
)

const (
	TypeContributionRecorded = "fund.contribution.recorded"
	TypeFundWithdrawn        = "fund.withdrawn"
)

// ContributionRecorded is emitted after a contribution clears the minimum
// threshold and the contributor's balance has been credited.
type ContributionRecorded struct {
	Contributor    [20]byte
	Amount         *big.Int
	ReferenceValue *big.Int
}

func (ContributionRecorded) EventType() string { return TypeContributionRecorded }

func (e ContributionRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeContributionRecorded,
		Attributes: map[string]string{
			"contributor":    crypto.NewAddress(crypto.FundPrefix, e.Contributor[:]).String(),
			"amount":         formatAmount(e.Amount),
			"referenceValue": formatAmount(e.ReferenceValue),
		},
	}
}

// FundWithdrawn is emitted after the controller drains the pooled balance and
// all contributor records have been reset.
type FundWithdrawn struct {
	Controller   [20]byte
	Amount       *big.Int
	Contributors int
	ReceiptID    string
}

func (FundWithdrawn) EventType() string { return TypeFundWithdrawn }

func (e FundWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFundWithdrawn,
		Attributes: map[string]string{
			"controller":   crypto.NewAddress(crypto.FundPrefix, e.Controller[:]).String(),
			"amount":       formatAmount(e.Amount),
			"contributors": strconv.Itoa(e.Contributors),
			"receiptId":    e.ReceiptID,
		},
	}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
