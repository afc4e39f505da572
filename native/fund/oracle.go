package fund

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

var (
	// ErrOracleUnavailable indicates the price source could not be queried or
	// returned invalid or stale data. No conversion proceeds while this holds.
	ErrOracleUnavailable = errors.New("fund: price oracle unavailable")
	// ErrArithmeticOverflow indicates the conversion arithmetic exceeded the
	// 256-bit unsigned domain. It signals a degenerate price or amount, not a
	// transient condition.
	ErrArithmeticOverflow = errors.New("fund: conversion overflow")
)

// ReferenceDecimals fixes the fractional precision of reference-currency
// amounts so they share granularity with native-asset units.
const ReferenceDecimals = 18

var referenceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(ReferenceDecimals), nil)

// PriceQuote captures an exchange rate for a currency pair along with the
// timestamp reported by the upstream oracle and the oracle identifier.
type PriceQuote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// PriceOracle resolves an exchange rate for the provided base/quote currency
// pair and reports the upstream feed's version identifier.
type PriceOracle interface {
	GetRate(base, quote string) (PriceQuote, error)
	Version() (uint64, error)
}

// ManualOracle provides an in-memory oracle implementation used for tests and
// manual overrides during incident response.
type ManualOracle struct {
	mu      sync.RWMutex
	quotes  map[string]PriceQuote
	version uint64
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PriceQuote), version: 1}
}

func manualKey(base, quote string) string {
	return normaliseSymbol(base) + "_" + normaliseSymbol(quote)
}

// SetDecimal records the supplied decimal rate for the currency pair using the
// provided timestamp.
func (m *ManualOracle) SetDecimal(base, quote, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("manual oracle: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual oracle: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("manual oracle: rate must be positive")
	}
	m.Set(base, quote, rat, ts)
	return nil
}

// Set stores the provided rational rate for the currency pair.
func (m *ManualOracle) Set(base, quote string, rate *big.Rat, ts time.Time) {
	if m == nil || rate == nil {
		return
	}
	key := manualKey(base, quote)
	m.mu.Lock()
	stored := PriceQuote{Timestamp: ts, Source: "manual"}
	stored.Rate = new(big.Rat).Set(rate)
	m.quotes[key] = stored
	m.mu.Unlock()
}

// SetVersion overrides the version identifier reported by the oracle.
func (m *ManualOracle) SetVersion(version uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.version = version
	m.mu.Unlock()
}

// GetRate retrieves the stored rate for the currency pair.
func (m *ManualOracle) GetRate(base, quote string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	key := manualKey(base, quote)
	m.mu.RLock()
	stored, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("manual oracle: quote for %s/%s not found", base, quote)
	}
	return stored.Clone(), nil
}

// Version reports the configured feed version.
func (m *ManualOracle) Version() (uint64, error) {
	if m == nil {
		return 0, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

// Converter turns native-asset amounts into reference-currency units using the
// injected oracle. It is the only component that touches oracle arithmetic so
// the ledger's validation logic stays oracle-agnostic.
type Converter struct {
	oracle PriceOracle
	base   string
	quote  string
	maxAge time.Duration
	nowFn  func() time.Time
}

// NewConverter binds the oracle to a BASE/QUOTE pair. maxAge bounds quote
// staleness; a zero duration disables the freshness guard.
func NewConverter(oracle PriceOracle, pair string, maxAge time.Duration) (*Converter, error) {
	if oracle == nil {
		return nil, fmt.Errorf("fund: oracle required")
	}
	parts := strings.Split(pair, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("fund: invalid price pair %q", pair)
	}
	base := normaliseSymbol(parts[0])
	quote := normaliseSymbol(parts[1])
	if base == "" || quote == "" {
		return nil, fmt.Errorf("fund: invalid price pair %q", pair)
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Converter{oracle: oracle, base: base, quote: quote, maxAge: maxAge, nowFn: time.Now}, nil
}

// SetNowFunc overrides the time source used by the staleness guard. Primarily
// intended for deterministic testing.
func (c *Converter) SetNowFunc(now func() time.Time) {
	if c == nil || now == nil {
		return
	}
	c.nowFn = now
}

// CurrentPrice queries the oracle and returns the latest rate scaled to
// ReferenceDecimals fractional digits, truncating toward zero. Errors, stale
// observations and non-positive rates all surface as ErrOracleUnavailable.
func (c *Converter) CurrentPrice() (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("fund: converter not initialised")
	}
	quote, err := c.oracle.GetRate(c.base, c.quote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if quote.Rate == nil || quote.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive rate from %s", ErrOracleUnavailable, quote.Source)
	}
	if c.maxAge > 0 {
		cutoff := c.nowFn().Add(-c.maxAge)
		if quote.Timestamp.Before(cutoff) {
			return nil, fmt.Errorf("%w: quote from %s is stale", ErrOracleUnavailable, quote.Source)
		}
	}
	scaled := new(big.Int).Mul(quote.Rate.Num(), referenceScale)
	scaled.Quo(scaled, quote.Rate.Denom())
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("%w: rate below representable precision", ErrOracleUnavailable)
	}
	return scaled, nil
}

// Convert returns amount * CurrentPrice() rescaled down to the precision of
// amount. The multiplication runs in the 256-bit unsigned domain; exceeding it
// fails with ErrArithmeticOverflow. Truncation toward zero is the only
// rounding guarantee.
func (c *Converter) Convert(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("fund: amount must be positive")
	}
	price, err := c.CurrentPrice()
	if err != nil {
		return nil, err
	}
	amt, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: amount exceeds 256-bit range", ErrArithmeticOverflow)
	}
	rate, overflow := uint256.FromBig(price)
	if overflow {
		return nil, fmt.Errorf("%w: price exceeds 256-bit range", ErrArithmeticOverflow)
	}
	product, overflowed := new(uint256.Int).MulOverflow(amt, rate)
	if overflowed {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, amount, price)
	}
	scale, _ := uint256.FromBig(referenceScale)
	product.Div(product, scale)
	return product.ToBig(), nil
}

// Version reports the oracle's version identifier.
func (c *Converter) Version() (uint64, error) {
	if c == nil {
		return 0, fmt.Errorf("fund: converter not initialised")
	}
	version, err := c.oracle.Version()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return version, nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
