package synth

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures a USD price reported by an external feed. Price is a
// positive integer at an 8-decimal scale together with the timestamp the
// upstream oracle last refreshed it.
type PriceQuote struct {
	Price     *big.Int
	UpdatedAt time.Time
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{UpdatedAt: q.UpdatedAt}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// PriceFeed resolves the latest USD quote for a single collateral asset.
type PriceFeed interface {
	LatestQuote() (PriceQuote, error)
}

const feedDecimals = 8

var (
	// fixedPointScale is the 18-decimal scale all ledger amounts use.
	fixedPointScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// feedScaleAdjust lifts 8-decimal feed prices to the 18-decimal scale.
	feedScaleAdjust = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)
)

// usdValue converts a token amount into its USD value using the latest feed
// quote. This path performs no staleness or positivity validation: it feeds
// aggregate valuation where a momentarily stale quote is tolerated. The
// asymmetry with tokenAmountFromUsd is carried over from the original design.
func (e *Engine) usdValue(feed PriceFeed, amount *big.Int) (*big.Int, error) {
	quote, err := feed.LatestQuote()
	if err != nil {
		return nil, err
	}
	if quote.Price == nil || amount == nil {
		return big.NewInt(0), nil
	}
	value := new(big.Int).Mul(quote.Price, feedScaleAdjust)
	value.Mul(value, amount)
	return value.Quo(value, fixedPointScale), nil
}

// tokenAmountFromUsd converts a USD amount into a token amount. It sizes
// liquidation seizures, so the quote must be positive and fresh relative to
// the supplied current time.
func (e *Engine) tokenAmountFromUsd(feed PriceFeed, usdAmount *big.Int, now time.Time) (*big.Int, error) {
	quote, err := feed.LatestQuote()
	if err != nil {
		return nil, err
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if now.Sub(quote.UpdatedAt) > e.params.MaxQuoteAge {
		return nil, ErrStalePrice
	}
	if usdAmount == nil {
		return big.NewInt(0), nil
	}
	denom := new(big.Int).Mul(quote.Price, feedScaleAdjust)
	amount := new(big.Int).Mul(usdAmount, fixedPointScale)
	return amount.Quo(amount, denom), nil
}

// UsdValue reports the USD value of the supplied amount of a registered
// collateral asset.
func (e *Engine) UsdValue(asset string, amount *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	reg, err := e.lookupAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.usdValue(reg.feed, amount)
}

// TokenAmountFromUsd reports how many tokens of a registered collateral asset
// the supplied USD amount buys at the current quote. It fails on non-positive
// or stale quotes.
func (e *Engine) TokenAmountFromUsd(asset string, usdAmount *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	reg, err := e.lookupAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.tokenAmountFromUsd(reg.feed, usdAmount, e.now())
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	quote PriceQuote
	set   bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the supplied 8-decimal price with the given timestamp.
func (f *ManualFeed) Set(price *big.Int, ts time.Time) {
	if f == nil || price == nil {
		return
	}
	f.mu.Lock()
	f.quote = PriceQuote{Price: new(big.Int).Set(price), UpdatedAt: ts}
	f.set = true
	f.mu.Unlock()
}

// SetDecimal parses a decimal USD price string and stores it at the feed's
// 8-decimal scale.
func (f *ManualFeed) SetDecimal(price string, ts time.Time) error {
	if f == nil {
		return fmt.Errorf("manual feed not configured")
	}
	scaled, err := parseFeedPrice(price)
	if err != nil {
		return err
	}
	f.Set(scaled, ts)
	return nil
}

// LatestQuote returns the stored quote.
func (f *ManualFeed) LatestQuote() (PriceQuote, error) {
	if f == nil {
		return PriceQuote{}, fmt.Errorf("manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return PriceQuote{}, fmt.Errorf("manual feed: no quote recorded")
	}
	return f.quote.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches quotes from a JSON price endpoint returning a decimal
// price string and a unix timestamp.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
}

// NewHTTPFeed constructs an HTTP feed adapter. When the client is nil
// http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint)}
}

func (f *HTTPFeed) LatestQuote() (PriceQuote, error) {
	if f == nil || f.endpoint == "" {
		return PriceQuote{}, fmt.Errorf("http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		UpdatedAt int64  `json:"updatedAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("http feed: decode: %w", err)
	}
	scaled, err := parseFeedPrice(payload.Price)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("http feed: %w", err)
	}
	return PriceQuote{Price: scaled, UpdatedAt: time.Unix(payload.UpdatedAt, 0)}, nil
}

func parseFeedPrice(price string) (*big.Int, error) {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return nil, fmt.Errorf("price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", price)
	}
	if rat.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(feedDecimals), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
