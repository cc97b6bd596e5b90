package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/treasurydash/ledgersync/internal/token"
	"go.uber.org/zap"
)

// Oracle supplies a USD-per-unit quote for an allowlisted symbol. It is
// best-effort: ingestion must never block on pricing, so implementations
// always return a usable value.
type Oracle interface {
	QuoteUSD(ctx context.Context, symbol string) decimal.Decimal
}

// CachedOracle fetches a live quote for tokens flagged live_quote,
// caches it in redis, and falls back to the static default price on any
// failure. Symbols without a live quote always get the static price.
type CachedOracle struct {
	allowlist *token.Allowlist
	rdb       *redis.Client
	client    *http.Client
	baseURL   string
	cacheTTL  time.Duration
	log       *zap.SugaredLogger
}

func NewCachedOracle(al *token.Allowlist, rdb *redis.Client, baseURL string, cacheTTL time.Duration, log *zap.SugaredLogger) *CachedOracle {
	return &CachedOracle{
		allowlist: al,
		rdb:       rdb,
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// QuoteUSD returns the current price for symbol. Unknown symbols quote
// at zero.
func (o *CachedOracle) QuoteUSD(ctx context.Context, symbol string) decimal.Decimal {
	t, ok := o.allowlist.BySymbol(symbol)
	if !ok {
		return decimal.Zero
	}
	if !t.LiveQuote || t.QuoteID == "" {
		return t.DefaultPrice
	}

	key := "price:" + t.Symbol
	if o.rdb != nil {
		if cached, err := o.rdb.Get(ctx, key).Result(); err == nil {
			if p, perr := decimal.NewFromString(cached); perr == nil {
				return p
			}
		}
	}

	p, err := o.fetchQuote(ctx, t.QuoteID)
	if err != nil {
		o.log.Warnw("live quote failed, using default price", "symbol", t.Symbol, "error", err)
		return t.DefaultPrice
	}
	if o.rdb != nil {
		if err := o.rdb.Set(ctx, key, p.String(), o.cacheTTL).Err(); err != nil {
			o.log.Warnw("price cache write failed", "symbol", t.Symbol, "error", err)
		}
	}
	return p
}

func (o *CachedOracle) fetchQuote(ctx context.Context, quoteID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.baseURL, quoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price api status %d", resp.StatusCode)
	}
	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	quote, ok := body[quoteID]["usd"]
	if !ok || quote.IsZero() {
		return decimal.Zero, fmt.Errorf("no usd quote for %s", quoteID)
	}
	return quote, nil
}

// StaticOracle serves fixed prices; used in tests and as a degraded mode
// when no pricing endpoint is configured.
type StaticOracle struct {
	prices map[string]decimal.Decimal
}

func NewStaticOracle(prices map[string]decimal.Decimal) *StaticOracle {
	norm := make(map[string]decimal.Decimal, len(prices))
	for sym, p := range prices {
		norm[sym] = p
	}
	return &StaticOracle{prices: norm}
}

func (o *StaticOracle) QuoteUSD(_ context.Context, symbol string) decimal.Decimal {
	return o.prices[symbol]
}
