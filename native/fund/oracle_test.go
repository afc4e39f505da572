package fund

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"
)

type oracleFunc struct {
	rate    func(base, quote string) (PriceQuote, error)
	version func() (uint64, error)
}

func (f oracleFunc) GetRate(base, quote string) (PriceQuote, error) {
	return f.rate(base, quote)
}

func (f oracleFunc) Version() (uint64, error) {
	if f.version == nil {
		return 1, nil
	}
	return f.version()
}

func newTestConverter(t *testing.T, rate string, maxAge time.Duration) (*Converter, *ManualOracle) {
	t.Helper()
	manual := NewManualOracle()
	if err := manual.SetDecimal("FND", "USD", rate, time.Now().UTC()); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	converter, err := NewConverter(manual, "FND/USD", maxAge)
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	return converter, manual
}

func TestManualOracleProvidesQuotes(t *testing.T) {
	manual := NewManualOracle()
	now := time.Now().UTC()
	if err := manual.SetDecimal("FND", "USD", "2000", now); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	quote, err := manual.GetRate("fnd", "usd")
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if quote.Rate == nil || quote.Rate.FloatString(2) != "2000.00" {
		t.Fatalf("unexpected rate: %v", quote.Rate)
	}
	if !quote.Timestamp.Equal(now) {
		t.Fatalf("unexpected timestamp: %v", quote.Timestamp)
	}
}

func TestCurrentPriceScalesToReferenceDecimals(t *testing.T) {
	converter, _ := newTestConverter(t, "2000", 0)
	price, err := converter.CurrentPrice()
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(2000), referenceScale)
	if price.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, price)
	}
}

func TestCurrentPriceFractionalRateTruncates(t *testing.T) {
	converter, _ := newTestConverter(t, "0.000000000000000001", 0)
	price, err := converter.CurrentPrice()
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if price.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected 1, got %s", price)
	}
}

func TestCurrentPriceRejectsStaleQuote(t *testing.T) {
	manual := NewManualOracle()
	if err := manual.SetDecimal("FND", "USD", "2000", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	converter, err := NewConverter(manual, "FND/USD", time.Minute)
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	if _, err := converter.CurrentPrice(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestCurrentPriceRejectsNonPositiveRate(t *testing.T) {
	oracle := oracleFunc{rate: func(string, string) (PriceQuote, error) {
		return PriceQuote{Rate: big.NewRat(0, 1), Timestamp: time.Now()}, nil
	}}
	converter, err := NewConverter(oracle, "FND/USD", 0)
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	if _, err := converter.CurrentPrice(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestCurrentPriceSurfacesOracleErrors(t *testing.T) {
	oracle := oracleFunc{rate: func(string, string) (PriceQuote, error) {
		return PriceQuote{}, fmt.Errorf("feed offline")
	}}
	converter, err := NewConverter(oracle, "FND/USD", 0)
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	if _, err := converter.CurrentPrice(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestConvertMultipliesAndRescales(t *testing.T) {
	converter, _ := newTestConverter(t, "2000", 0)
	// 0.0030 native units at 2000 reference per unit converts to 6.00.
	amount := new(big.Int).Mul(big.NewInt(3), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	value, err := converter.Convert(amount)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(6), referenceScale)
	if value.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, value)
	}
}

func TestConvertTruncatesTowardZero(t *testing.T) {
	converter, _ := newTestConverter(t, "1.5", 0)
	value, err := converter.Convert(big.NewInt(3))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 3 * 1.5 = 4.5 truncates to 4 at the amount's precision.
	if value.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected 4, got %s", value)
	}
}

func TestConvertOverflowsOnDegenerateAmount(t *testing.T) {
	converter, _ := newTestConverter(t, "2000", 0)
	amount := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := converter.Convert(amount); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestConvertRejectsNonPositiveAmounts(t *testing.T) {
	converter, _ := newTestConverter(t, "2000", 0)
	if _, err := converter.Convert(big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := converter.Convert(big.NewInt(-1)); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestVersionPassthrough(t *testing.T) {
	converter, manual := newTestConverter(t, "2000", 0)
	manual.SetVersion(4)
	version, err := converter.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected version 4, got %d", version)
	}
}

func TestVersionFailureSurfacesAsUnavailable(t *testing.T) {
	oracle := oracleFunc{
		rate:    func(string, string) (PriceQuote, error) { return PriceQuote{}, nil },
		version: func() (uint64, error) { return 0, fmt.Errorf("feed offline") },
	}
	converter, err := NewConverter(oracle, "FND/USD", 0)
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	if _, err := converter.Version(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestNewConverterRejectsMalformedPair(t *testing.T) {
	manual := NewManualOracle()
	for _, pair := range []string{"", "FNDUSD", "FND/", "/USD"} {
		if _, err := NewConverter(manual, pair, 0); err == nil {
			t.Fatalf("expected error for pair %q", pair)
		}
	}
}
