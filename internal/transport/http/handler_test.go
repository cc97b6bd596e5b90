package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treasurydash/ledgersync/internal/auth"
	"github.com/treasurydash/ledgersync/internal/classify"
	"github.com/treasurydash/ledgersync/internal/config"
	"github.com/treasurydash/ledgersync/internal/logger"
	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/pricing"
	"github.com/treasurydash/ledgersync/internal/provider"
	"github.com/treasurydash/ledgersync/internal/repo"
	"github.com/treasurydash/ledgersync/internal/service"
	"github.com/treasurydash/ledgersync/internal/token"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubFetcher struct {
	result provider.FetchResult
}

func (s *stubFetcher) Available() bool { return true }

func (s *stubFetcher) FetchTransfers(context.Context, model.Wallet, uint64, bool) (provider.FetchResult, error) {
	return s.result, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *auth.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.SyncCheckpoint{}, &model.OutboxEvent{}))
	require.NoError(t, db.Create(&model.Wallet{
		ID: 1, Address: "0xAAAA000000000000000000000000000000000001",
		Chain: model.ChainBNB, Name: "treasury-a",
	}).Error)

	log := logger.NewNop()
	repository := repo.NewRepository(db, nil, nil, log)
	allowlist := token.NewAllowlist([]config.TokenConfig{
		{Symbol: "USDT", Addresses: []string{"0x55d398326f99059fF775485246999027B3197955"}, Decimals: 18, DustThreshold: "1", DefaultPrice: "1"},
		{Symbol: "CAKE", Decimals: 18, DefaultPrice: "2.5"},
	})
	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)})
	classifier := classify.NewClassifier(allowlist, oracle, log)

	fetcher := &stubFetcher{result: provider.FetchResult{
		Source: provider.SourcePrimary,
		Transfers: []provider.RawTransfer{{
			TxHash: "0xh1", BlockNumber: 100, Timestamp: time.Now().UTC(),
			From: "0xCCCC000000000000000000000000000000000003",
			To:   "0xAAAA000000000000000000000000000000000001",
			ContractAddress: "0x55d398326f99059fF775485246999027B3197955",
			Symbol:          "USDT", Value: "5000000000000000000", Decimals: "18",
		}},
	}}

	svc := service.NewSyncService(repository, fetcher, classifier, allowlist, log)
	jwtSvc := auth.NewService([]byte("test-secret"))
	return NewRouter(svc, jwtSvc, config.RateLimitConfig{RPS: 100, Burst: 100}, log), jwtSvc
}

func TestPostSync_RejectsUnauthenticated(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostSync_RejectsNonAdmin(t *testing.T) {
	router, jwtSvc := newTestRouter(t)
	tok, err := jwtSvc.Generate("viewer", "viewer", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPostSync_AdminRunsCycle(t *testing.T) {
	router, jwtSvc := newTestRouter(t)
	tok, err := jwtSvc.Generate("ops", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync",
		strings.NewReader(`{"force_full_sync":false}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool            `json:"success"`
		Summary service.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Summary.NewTransactions)
	require.Len(t, body.Summary.Results, 1)
	assert.Equal(t, "treasury-a", body.Summary.Results[0].WalletName)
	assert.Equal(t, string(provider.SourcePrimary), body.Summary.Results[0].Source)
}

func TestGetTransactions_RequiresToken(t *testing.T) {
	router, jwtSvc := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// any valid role may read
	tok, err := jwtSvc.Generate("viewer", "viewer", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
