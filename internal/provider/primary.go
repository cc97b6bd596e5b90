package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/treasurydash/ledgersync/internal/model"
	"go.uber.org/zap"
)

// primaryChainSlugs maps ledger chains to the primary indexer's chain
// query parameter.
var primaryChainSlugs = map[model.Chain]string{
	model.ChainBNB:     "bsc",
	model.ChainETH:     "eth",
	model.ChainPolygon: "polygon",
	model.ChainARB:     "arbitrum",
	model.ChainBase:    "base",
}

// IndexerClient talks to the primary cursor-paginated transfer indexer.
type IndexerClient struct {
	baseURL  string
	apiKey   string
	maxPages int
	client   *http.Client
	log      *zap.SugaredLogger
}

func NewIndexerClient(baseURL, apiKey string, maxPages int, timeout time.Duration, log *zap.SugaredLogger) *IndexerClient {
	if maxPages <= 0 {
		maxPages = 30
	}
	return &IndexerClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		maxPages: maxPages,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type indexerTransfer struct {
	TransactionHash string `json:"transaction_hash"`
	Address         string `json:"address"`
	BlockNumber     string `json:"block_number"`
	BlockTimestamp  string `json:"block_timestamp"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	Value           string `json:"value"`
	TokenSymbol     string `json:"token_symbol"`
	TokenDecimals   string `json:"token_decimals"`
}

type indexerPage struct {
	Cursor string            `json:"cursor"`
	Result []indexerTransfer `json:"result"`
}

// TokenTransfers pages through the wallet's ERC-20 transfer history.
// from_block is sinceBlock+1, omitted on a forced full fetch or when no
// checkpoint exists. Pages are requested oldest first, so a fetch cut
// off at the page ceiling still covers a contiguous block range from
// from_block upward; the returned cursor is non-empty in that case and
// the caller resumes the remainder on a later cycle. Any non-2xx aborts
// the whole attempt and partial pages are discarded.
func (c *IndexerClient) TokenTransfers(ctx context.Context, wallet model.Wallet, sinceBlock uint64, forceFullHistory bool) ([]RawTransfer, string, error) {
	slug, ok := primaryChainSlugs[wallet.Chain]
	if !ok {
		return nil, "", fmt.Errorf("unsupported chain %q", wallet.Chain)
	}

	var (
		transfers []RawTransfer
		cursor    string
	)
	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("chain", slug)
		q.Set("order", "ASC")
		if !forceFullHistory && sinceBlock > 0 {
			q.Set("from_block", strconv.FormatUint(sinceBlock+1, 10))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		endpoint := fmt.Sprintf("%s/%s/erc20/transfers?%s", c.baseURL, wallet.Address, q.Encode())

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, "", err
		}
		var pg indexerPage
		if err := json.Unmarshal(body, &pg); err != nil {
			return nil, "", fmt.Errorf("decode indexer page: %w", err)
		}
		for _, t := range pg.Result {
			transfers = append(transfers, t.toRaw())
		}
		cursor = pg.Cursor
		if cursor == "" {
			break
		}
	}
	c.log.Debugw("primary fetch complete",
		"wallet", wallet.Name, "transfers", len(transfers))
	return transfers, cursor, nil
}

func (c *IndexerClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("primary request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("primary read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if qerr := classifyStatus(resp.StatusCode); qerr != nil || looksLikeQuota(string(body)) {
			return nil, fmt.Errorf("primary status %d: %w", resp.StatusCode, ErrAuthOrQuota)
		}
		return nil, fmt.Errorf("primary status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (t indexerTransfer) toRaw() RawTransfer {
	block, _ := strconv.ParseUint(t.BlockNumber, 10, 64)
	ts, err := time.Parse(time.RFC3339, t.BlockTimestamp)
	if err != nil {
		ts = time.Time{}
	}
	return RawTransfer{
		TxHash:          t.TransactionHash,
		BlockNumber:     block,
		Timestamp:       ts,
		From:            t.FromAddress,
		To:              t.ToAddress,
		ContractAddress: t.Address,
		Symbol:          t.TokenSymbol,
		Value:           t.Value,
		Decimals:        t.TokenDecimals,
	}
}
