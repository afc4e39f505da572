package fund

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"fundpool/core/events"
	"fundpool/crypto"
)

var (
	// ErrInsufficientContribution indicates the submitted amount converts to
	// less than the minimum threshold, or was not positive to begin with.
	ErrInsufficientContribution = errors.New("fund: contribution below minimum")
	// ErrUnauthorized indicates a non-controller attempted a withdrawal.
	ErrUnauthorized = errors.New("fund: caller is not the controller")
	// ErrTransferFailed indicates the settlement transfer during withdrawal was
	// rejected. The bookkeeping reset does not take effect when this occurs.
	ErrTransferFailed = errors.New("fund: withdrawal transfer rejected")
)

// minimumReference is the fixed contribution floor: 5.00 reference-currency
// units at ReferenceDecimals precision. Immutable for the ledger's lifetime.
var minimumReference = new(big.Int).Mul(big.NewInt(5), referenceScale)

// Settlement transfers the drained pool balance to the controller's account.
// Implementations may reject the payment, in which case the withdrawal rolls
// back in full.
type Settlement interface {
	Transfer(to crypto.Address, amount *big.Int) error
}

// MetricsRecorder receives operation outcomes for telemetry. Implementations
// must be safe to call with any outcome label.
type MetricsRecorder interface {
	RecordContribution(outcome string)
	RecordWithdrawal(outcome string)
}

// Outcome labels reported to the metrics recorder.
const (
	OutcomeAccepted     = "accepted"
	OutcomeBelowMinimum = "below_minimum"
	OutcomeOracleError  = "oracle_error"
	OutcomeSettled      = "settled"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRejected     = "rejected"
)

// WithdrawalReceipt summarises a successful withdrawal.
type WithdrawalReceipt struct {
	ID           string
	Controller   crypto.Address
	Amount       *big.Int
	Contributors int
	WithdrawnAt  int64
}

// Ledger owns the pooled contribution state: per-contributor balances, the
// ordered contributor list for the current cycle, and the tracked total. Every
// operation is a single atomic step; a failed operation leaves all state
// unchanged.
type Ledger struct {
	controller crypto.Address
	converter  *Converter
	settlement Settlement
	emitter    events.Emitter
	metrics    MetricsRecorder
	nowFn      func() int64

	balances map[[20]byte]*big.Int
	order    [][20]byte
	total    *big.Int
}

// NewLedger constructs a ledger with the controller and oracle converter fixed
// for its lifetime. Settlement, event emission and metrics are attached via
// setters.
func NewLedger(controller crypto.Address, converter *Converter) (*Ledger, error) {
	if len(controller.Bytes()) != 20 {
		return nil, fmt.Errorf("fund: controller address required")
	}
	if converter == nil {
		return nil, fmt.Errorf("fund: converter required")
	}
	return &Ledger{
		controller: controller,
		converter:  converter,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		balances:   make(map[[20]byte]*big.Int),
		total:      big.NewInt(0),
	}, nil
}

// SetSettlement configures the sink receiving withdrawn funds.
func (l *Ledger) SetSettlement(settlement Settlement) {
	if l == nil {
		return
	}
	l.settlement = settlement
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetMetrics configures the metrics recorder. Nil disables recording.
func (l *Ledger) SetMetrics(metrics MetricsRecorder) {
	if l == nil {
		return
	}
	l.metrics = metrics
}

// SetNowFunc overrides the ledger's time source. Primarily intended for tests
// to provide deterministic receipt timestamps.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// Controller returns the fixed controller identity.
func (l *Ledger) Controller() crypto.Address {
	return l.controller
}

// MinimumContribution returns the contribution floor in reference-currency
// units at ReferenceDecimals precision.
func (l *Ledger) MinimumContribution() *big.Int {
	return new(big.Int).Set(minimumReference)
}

// Contribute validates the attached amount against the oracle-priced minimum
// and credits the caller on success. The amount travels with the call as a
// single atomic argument; a failed validation leaves every record untouched.
func (l *Ledger) Contribute(caller crypto.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("fund: ledger not initialised")
	}
	// Non-positive values are rejected up front; the oracle is never queried
	// for clearly-invalid input.
	if amount == nil || amount.Sign() <= 0 {
		l.recordContribution(OutcomeRejected)
		return fmt.Errorf("%w: amount must be positive", ErrInsufficientContribution)
	}
	value, err := l.converter.Convert(amount)
	if err != nil {
		l.recordContribution(OutcomeOracleError)
		return err
	}
	if value.Cmp(minimumReference) < 0 {
		l.recordContribution(OutcomeBelowMinimum)
		return fmt.Errorf("%w: %s reference units < %s", ErrInsufficientContribution, value, minimumReference)
	}
	key := caller.Key()
	balance, known := l.balances[key]
	if !known {
		balance = big.NewInt(0)
		l.order = append(l.order, key)
	}
	l.balances[key] = new(big.Int).Add(balance, amount)
	l.total = new(big.Int).Add(l.total, amount)
	l.emit(events.ContributionRecorded{
		Contributor:    key,
		Amount:         new(big.Int).Set(amount),
		ReferenceValue: value,
	})
	l.recordContribution(OutcomeAccepted)
	return nil
}

// Receive is the untargeted-value-receipt fallback: any value arriving without
// an operation selector routes through the same validation as Contribute.
func (l *Ledger) Receive(caller crypto.Address, amount *big.Int) error {
	return l.Contribute(caller, amount)
}

// Withdraw drains the pooled balance to the controller and resets every
// contributor record. Transfer and reset form a single unit: a rejected
// transfer leaves balances, contributor list and total exactly as before.
func (l *Ledger) Withdraw(caller crypto.Address) (*WithdrawalReceipt, error) {
	if l == nil {
		return nil, fmt.Errorf("fund: ledger not initialised")
	}
	if !caller.Equal(l.controller) {
		l.recordWithdrawal(OutcomeUnauthorized)
		return nil, ErrUnauthorized
	}
	if l.settlement == nil {
		l.recordWithdrawal(OutcomeRejected)
		return nil, fmt.Errorf("%w: settlement not configured", ErrTransferFailed)
	}
	amount := new(big.Int).Set(l.total)
	if err := l.settlement.Transfer(l.controller, amount); err != nil {
		l.recordWithdrawal(OutcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	contributors := len(l.order)
	l.balances = make(map[[20]byte]*big.Int)
	l.order = nil
	l.total = big.NewInt(0)
	receipt := &WithdrawalReceipt{
		ID:           uuid.NewString(),
		Controller:   l.controller,
		Amount:       amount,
		Contributors: contributors,
		WithdrawnAt:  l.nowFn(),
	}
	l.emit(events.FundWithdrawn{
		Controller:   l.controller.Key(),
		Amount:       new(big.Int).Set(amount),
		Contributors: contributors,
		ReceiptID:    receipt.ID,
	})
	l.recordWithdrawal(OutcomeSettled)
	return receipt, nil
}

// AmountContributedBy returns the cumulative amount recorded for the identity
// this cycle. Unknown identities yield zero. Pure lookup, never fails.
func (l *Ledger) AmountContributedBy(addr crypto.Address) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	balance, ok := l.balances[addr.Key()]
	if !ok || balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// TotalContributed returns the tracked pool total for the current cycle.
func (l *Ledger) TotalContributed() *big.Int {
	if l == nil || l.total == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.total)
}

// Contributors lists the identities recorded this cycle in order of first
// contribution. Repeated contributions do not duplicate entries.
func (l *Ledger) Contributors() []crypto.Address {
	if l == nil {
		return nil
	}
	out := make([]crypto.Address, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, crypto.NewAddress(crypto.FundPrefix, key[:]))
	}
	return out
}

// OracleVersion reports the version identifier of the configured price source.
func (l *Ledger) OracleVersion() (uint64, error) {
	if l == nil {
		return 0, fmt.Errorf("fund: ledger not initialised")
	}
	return l.converter.Version()
}

func (l *Ledger) emit(event events.Event) {
	if l == nil || l.emitter == nil || event == nil {
		return
	}
	l.emitter.Emit(event)
}

func (l *Ledger) recordContribution(outcome string) {
	if l == nil || l.metrics == nil {
		return
	}
	l.metrics.RecordContribution(outcome)
}

func (l *Ledger) recordWithdrawal(outcome string) {
	if l == nil || l.metrics == nil {
		return
	}
	l.metrics.RecordWithdrawal(outcome)
}
