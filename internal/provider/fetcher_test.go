package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treasurydash/ledgersync/internal/config"
	"github.com/treasurydash/ledgersync/internal/logger"
	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/token"
)

const usdtContract = "0x55d398326f99059ff775485246999027b3197955"

func testAllowlist() *token.Allowlist {
	return token.NewAllowlist([]config.TokenConfig{
		{Symbol: "USDT", Addresses: []string{usdtContract}, Decimals: 18, DustThreshold: "1", DefaultPrice: "1"},
		{Symbol: "CAKE", Addresses: []string{"0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"}, Decimals: 18, DefaultPrice: "2.5"},
	})
}

func testWallet() model.Wallet {
	return model.Wallet{ID: 1, Address: "0xAAAA000000000000000000000000000000000001", Chain: model.ChainBNB, Name: "ops"}
}

func indexerPageBody(cursor string, hashes ...string) string {
	page := indexerPage{Cursor: cursor}
	for i, h := range hashes {
		page.Result = append(page.Result, indexerTransfer{
			TransactionHash: h,
			Address:         usdtContract,
			BlockNumber:     fmt.Sprintf("%d", 100+i),
			BlockTimestamp:  time.Now().UTC().Format(time.RFC3339),
			FromAddress:     "0xAAAA000000000000000000000000000000000001",
			ToAddress:       "0xBBBB000000000000000000000000000000000002",
			Value:           "5000000000000000000",
			TokenSymbol:     "USDT",
			TokenDecimals:   "18",
		})
	}
	b, _ := json.Marshal(page)
	return string(b)
}

func TestIndexerClient_PaginatesUntilNoCursor(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, indexerPageBody("next-page", "0xh1"))
			return
		}
		fmt.Fprint(w, indexerPageBody("", "0xh2"))
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL, "key", 30, time.Second, logger.NewNop())
	transfers, cursor, err := c.TokenTransfers(context.Background(), testWallet(), 50, false)
	require.NoError(t, err)
	assert.Len(t, transfers, 2)
	assert.Empty(t, cursor)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "from_block=51")
	// oldest first, so a truncated fetch is a contiguous prefix
	assert.Contains(t, queries[0], "order=ASC")
	assert.Contains(t, queries[1], "cursor=next-page")
}

func TestIndexerClient_ForceFullOmitsFromBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("from_block"))
		fmt.Fprint(w, indexerPageBody("", "0xh1"))
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL, "key", 30, time.Second, logger.NewNop())
	_, _, err := c.TokenTransfers(context.Background(), testWallet(), 50, true)
	require.NoError(t, err)
}

func TestIndexerClient_PageCeilingBoundsLoop(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// misbehaving provider that never stops returning a cursor
		fmt.Fprint(w, indexerPageBody("always-more", "0xh"))
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL, "key", 3, time.Second, logger.NewNop())
	transfers, cursor, err := c.TokenTransfers(context.Background(), testWallet(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Len(t, transfers, 3)
	// the live cursor tells the caller the history was cut off
	assert.NotEmpty(t, cursor)
}

func TestIndexerClient_UnauthorizedIsAuthOrQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewIndexerClient(srv.URL, "bad-key", 30, time.Second, logger.NewNop())
	_, _, err := c.TokenTransfers(context.Background(), testWallet(), 0, false)
	assert.ErrorIs(t, err, ErrAuthOrQuota)
}

func scanBody(t *testing.T, rows []scanTransfer) string {
	t.Helper()
	result, err := json.Marshal(rows)
	require.NoError(t, err)
	b, err := json.Marshal(scanResponse{Status: "1", Message: "OK", Result: result})
	require.NoError(t, err)
	return string(b)
}

func newScanStub(t *testing.T, body string) (*ScanClient, *httptest.Server) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	c := NewScanClient("key", testAllowlist(), time.Second, logger.NewNop())
	c.BaseURLs = map[model.Chain]string{model.ChainBNB: srv.URL}
	return c, srv
}

func TestScanClient_FiltersToAllowlist(t *testing.T) {
	body := scanBody(t, []scanTransfer{
		{Hash: "0xh1", BlockNumber: "100", TimeStamp: "1700000000", From: "0xaaa", To: "0xbbb",
			ContractAddress: usdtContract, TokenSymbol: "BSC-USD", Value: "5000000000000000000", TokenDecimal: "18"},
		{Hash: "0xh2", BlockNumber: "101", TimeStamp: "1700000100", From: "0xaaa", To: "0xbbb",
			ContractAddress: "0x000000000000000000000000000000000000dead", TokenSymbol: "SCAM", Value: "1", TokenDecimal: "18"},
		{Hash: "0xh3", BlockNumber: "102", TimeStamp: "1700000200", From: "0xaaa", To: "0xbbb",
			ContractAddress: "0xffff000000000000000000000000000000000003", TokenSymbol: "CAKE", Value: "1000000000000000000", TokenDecimal: "18"},
	})
	c, srv := newScanStub(t, body)
	defer srv.Close()

	transfers, err := c.TokenTransfers(context.Background(), testWallet())
	require.NoError(t, err)
	// 0xh1 matches by contract, 0xh3 by symbol; the spam token is gone
	require.Len(t, transfers, 2)
	assert.Equal(t, "0xh1", transfers[0].TxHash)
	assert.Equal(t, "0xh3", transfers[1].TxHash)
}

func TestScanClient_EmptyWalletIsNotAnError(t *testing.T) {
	b, _ := json.Marshal(scanResponse{Status: "0", Message: "No transactions found", Result: json.RawMessage(`[]`)})
	c, srv := newScanStub(t, string(b))
	defer srv.Close()

	transfers, err := c.TokenTransfers(context.Background(), testWallet())
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestFallbackFetcher_PrimaryUnauthorizedFallsBackToSecondary(t *testing.T) {
	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer primarySrv.Close()
	body := scanBody(t, []scanTransfer{
		{Hash: "0xh1", BlockNumber: "100", TimeStamp: "1700000000", From: "0xaaa", To: "0xbbb",
			ContractAddress: usdtContract, TokenSymbol: "BSC-USD", Value: "5000000000000000000", TokenDecimal: "18"},
	})
	secondary, secondarySrv := newScanStub(t, body)
	defer secondarySrv.Close()

	primary := NewIndexerClient(primarySrv.URL, "bad-key", 30, time.Second, logger.NewNop())
	f := NewFallbackFetcher(primary, secondary, logger.NewNop())

	res, err := f.FetchTransfers(context.Background(), testWallet(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, SourceSecondary, res.Source)
	require.Len(t, res.Transfers, 1)
	assert.Equal(t, "0xh1", res.Transfers[0].TxHash)
}

func TestFallbackFetcher_BothProvidersFailing(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	primary := NewIndexerClient(failing.URL, "key", 30, time.Second, logger.NewNop())
	secondary := NewScanClient("key", testAllowlist(), time.Second, logger.NewNop())
	secondary.BaseURLs = map[model.Chain]string{model.ChainBNB: failing.URL}
	f := NewFallbackFetcher(primary, secondary, logger.NewNop())

	res, err := f.FetchTransfers(context.Background(), testWallet(), 0, false)
	assert.Error(t, err)
	assert.Equal(t, SourceNone, res.Source)
}

func TestFallbackFetcher_NoProvidersConfigured(t *testing.T) {
	f := NewFallbackFetcher(nil, nil, logger.NewNop())
	assert.False(t, f.Available())

	_, err := f.FetchTransfers(context.Background(), testWallet(), 0, false)
	assert.True(t, errors.Is(err, ErrNoProviderConfigured))
}

func TestFallbackFetcher_SecondaryFailureAfterEmptyPrimaryIsNoNewData(t *testing.T) {
	emptyPrimary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cursor":"","result":[]}`)
	}))
	defer emptyPrimary.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	primary := NewIndexerClient(emptyPrimary.URL, "key", 30, time.Second, logger.NewNop())
	secondary := NewScanClient("key", testAllowlist(), time.Second, logger.NewNop())
	secondary.BaseURLs = map[model.Chain]string{model.ChainBNB: failing.URL}
	f := NewFallbackFetcher(primary, secondary, logger.NewNop())

	res, err := f.FetchTransfers(context.Background(), testWallet(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, SourcePrimary, res.Source)
	assert.Empty(t, res.Transfers)
}
