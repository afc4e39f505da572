package fund

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoOracle adapts the public CoinGecko simple price API.
type CoinGeckoOracle struct {
	client   HTTPDoer
	endpoint string
	idMap    map[string]string
	version  uint64
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// NewCoinGeckoOracle constructs a new adapter. idMap allows the caller to map
// native token symbols to CoinGecko asset identifiers. version is the feed
// schema version the adapter reports; zero defaults to 1.
func NewCoinGeckoOracle(client HTTPDoer, endpoint string, idMap map[string]string, version uint64) *CoinGeckoOracle {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	if version == 0 {
		version = 1
	}
	mapped := make(map[string]string, len(idMap))
	for k, v := range idMap {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &CoinGeckoOracle{client: client, endpoint: ep, idMap: mapped, version: version}
}

func (o *CoinGeckoOracle) assetID(symbol string) string {
	if o == nil {
		return ""
	}
	if id, ok := o.idMap[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

// GetRate resolves the QUOTE-per-BASE rate for the configured pair. The base
// symbol names the priced asset and the quote symbol the reference currency.
func (o *CoinGeckoOracle) GetRate(base, quote string) (PriceQuote, error) {
	if o == nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle not configured")
	}
	vsCurrency := strings.ToLower(normaliseSymbol(quote))
	id := o.assetID(base)
	if id == "" {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: unmapped asset %s", base)
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", vsCurrency)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("coingecko oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: quote missing for %s", base)
	}
	priceStr := renderNumber(entry[vsCurrency])
	if priceStr == "" {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: empty price")
	}
	rat, ok := new(big.Rat).SetString(priceStr)
	if !ok || rat.Sign() <= 0 {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: invalid rate %q", priceStr)
	}
	ts := parseUnixSeconds(entry["last_updated_at"])
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return PriceQuote{Rate: rat, Timestamp: ts, Source: "coingecko"}, nil
}

// Version reports the configured feed schema version.
func (o *CoinGeckoOracle) Version() (uint64, error) {
	if o == nil {
		return 0, fmt.Errorf("coingecko oracle not configured")
	}
	return o.version, nil
}

func renderNumber(raw interface{}) string {
	switch v := raw.(type) {
	case json.Number:
		return v.String()
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func parseUnixSeconds(raw interface{}) time.Time {
	switch v := raw.(type) {
	case json.Number:
		if parsed, err := v.Int64(); err == nil && parsed > 0 {
			return time.Unix(parsed, 0)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && parsed > 0 {
			return time.Unix(parsed, 0)
		}
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0)
		}
	}
	return time.Time{}
}

// ThrottledOracle bounds the upstream query rate of the wrapped oracle.
// Exhausting the budget surfaces as ErrOracleUnavailable so callers treat it
// like any other transient oracle outage.
type ThrottledOracle struct {
	inner   PriceOracle
	limiter *rate.Limiter
}

// NewThrottledOracle wraps the oracle with a token bucket admitting perMinute
// queries with the supplied burst. Non-positive values fall back to a
// 30-per-minute budget with a burst of 5.
func NewThrottledOracle(inner PriceOracle, perMinute float64, burst int) *ThrottledOracle {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 5
	}
	return &ThrottledOracle{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), burst),
	}
}

func (t *ThrottledOracle) GetRate(base, quote string) (PriceQuote, error) {
	if t == nil || t.inner == nil {
		return PriceQuote{}, fmt.Errorf("throttled oracle not configured")
	}
	if !t.limiter.Allow() {
		return PriceQuote{}, fmt.Errorf("%w: query budget exhausted", ErrOracleUnavailable)
	}
	return t.inner.GetRate(base, quote)
}

// Version passes through without consuming query budget.
func (t *ThrottledOracle) Version() (uint64, error) {
	if t == nil || t.inner == nil {
		return 0, fmt.Errorf("throttled oracle not configured")
	}
	return t.inner.Version()
}
