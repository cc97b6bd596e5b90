package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/token"
	"go.uber.org/zap"
)

// defaultScanBaseURLs maps each chain to its etherscan-family API host.
func defaultScanBaseURLs() map[model.Chain]string {
	return map[model.Chain]string{
		model.ChainBNB:     "https://api.bscscan.com/api",
		model.ChainETH:     "https://api.etherscan.io/api",
		model.ChainPolygon: "https://api.polygonscan.com/api",
		model.ChainARB:     "https://api.arbiscan.io/api",
		model.ChainBase:    "https://api.basescan.org/api",
	}
}

const scanPageSize = 10000

// ScanClient is the secondary page-numbered provider. It always fetches
// full history in one large page and, because the scan API has no token
// restriction, filters to the allowlist immediately by contract address
// or symbol.
type ScanClient struct {
	// BaseURLs may be overridden per chain (tests point it at a stub).
	BaseURLs  map[model.Chain]string
	apiKey    string
	allowlist *token.Allowlist
	client    *http.Client
	log       *zap.SugaredLogger
}

func NewScanClient(apiKey string, allowlist *token.Allowlist, timeout time.Duration, log *zap.SugaredLogger) *ScanClient {
	return &ScanClient{
		BaseURLs:  defaultScanBaseURLs(),
		apiKey:    apiKey,
		allowlist: allowlist,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

type scanTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	ContractAddress string `json:"contractAddress"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

type scanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// TokenTransfers fetches the wallet's full ERC-20 history.
func (c *ScanClient) TokenTransfers(ctx context.Context, wallet model.Wallet) ([]RawTransfer, error) {
	base, ok := c.BaseURLs[wallet.Chain]
	if !ok {
		return nil, fmt.Errorf("unsupported chain %q", wallet.Chain)
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("address", wallet.Address)
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(scanPageSize))
	q.Set("sort", "asc")
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secondary request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("secondary read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if qerr := classifyStatus(resp.StatusCode); qerr != nil {
			return nil, fmt.Errorf("secondary status %d: %w", resp.StatusCode, ErrAuthOrQuota)
		}
		return nil, fmt.Errorf("secondary status %d: %s", resp.StatusCode, string(body))
	}

	var sr scanResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decode secondary response: %w", err)
	}
	// status "0" with "No transactions found" is an empty wallet, not a
	// failure; any other rejection aborts.
	if sr.Status != "1" {
		if strings.Contains(strings.ToLower(sr.Message), "no transactions") {
			return nil, nil
		}
		if looksLikeQuota(sr.Message) || looksLikeQuota(string(sr.Result)) {
			return nil, fmt.Errorf("secondary rejected: %s: %w", sr.Message, ErrAuthOrQuota)
		}
		return nil, fmt.Errorf("secondary rejected: %s %s", sr.Message, string(sr.Result))
	}

	var rows []scanTransfer
	if err := json.Unmarshal(sr.Result, &rows); err != nil {
		return nil, fmt.Errorf("decode secondary result: %w", err)
	}

	var transfers []RawTransfer
	for _, row := range rows {
		if !c.allowlisted(row) {
			continue
		}
		transfers = append(transfers, row.toRaw())
	}
	c.log.Debugw("secondary fetch complete",
		"wallet", wallet.Name, "fetched", len(rows), "kept", len(transfers))
	return transfers, nil
}

func (c *ScanClient) allowlisted(row scanTransfer) bool {
	if _, ok := c.allowlist.ByContract(row.ContractAddress); ok {
		return true
	}
	_, ok := c.allowlist.BySymbol(row.TokenSymbol)
	return ok
}

func (t scanTransfer) toRaw() RawTransfer {
	block, _ := strconv.ParseUint(t.BlockNumber, 10, 64)
	var ts time.Time
	if secs, err := strconv.ParseInt(t.TimeStamp, 10, 64); err == nil {
		ts = time.Unix(secs, 0).UTC()
	}
	return RawTransfer{
		TxHash:          t.Hash,
		BlockNumber:     block,
		Timestamp:       ts,
		From:            t.From,
		To:              t.To,
		ContractAddress: t.ContractAddress,
		Symbol:          t.TokenSymbol,
		Value:           t.Value,
		Decimals:        t.TokenDecimal,
	}
}
