package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/treasurydash/ledgersync/internal/classify"
	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/provider"
	"github.com/treasurydash/ledgersync/internal/repo"
	"github.com/treasurydash/ledgersync/internal/token"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoWallets means the requested scope matched no tracked wallet;
// fatal to the invocation, nothing is mutated.
var ErrNoWallets = errors.New("no tracked wallets found for requested scope")

// SyncRequest is the inbound trigger payload.
type SyncRequest struct {
	WalletID      *uint64 `json:"wallet_id"`
	ForceFullSync bool    `json:"force_full_sync"`
}

// WalletResult reports one wallet's outcome within a sync run.
type WalletResult struct {
	WalletID        uint64 `json:"wallet_id"`
	WalletName      string `json:"wallet_name"`
	NewTransactions int    `json:"new_transactions"`
	Mirrors         int    `json:"mirrors"`
	Source          string `json:"source"`
	Error           string `json:"error,omitempty"`
}

// Summary is the structured response of one sync invocation. Per-wallet
// failures live in Results; the run as a whole only fails on
// authentication, authorization or configuration errors.
type Summary struct {
	RunID             string         `json:"run_id"`
	NewTransactions   int            `json:"new_transactions"`
	DuplicatesRemoved int64          `json:"duplicates_removed"`
	MirrorsCreated    int            `json:"mirrors_created"`
	RowsCleaned       int64          `json:"rows_cleaned"`
	Results           []WalletResult `json:"results"`
	SyncedAt          time.Time      `json:"synced_at"`
}

// SyncService orchestrates one sync cycle: wallets are processed
// sequentially so mirror detection observes rows written earlier in the
// same cycle without cross-wallet locking.
type SyncService struct {
	repo       repo.RepositoryInterface
	fetcher    provider.TransferFetcher
	classifier *classify.Classifier
	writer     *LedgerWriter
	allowlist  *token.Allowlist
	log        *zap.SugaredLogger
}

func NewSyncService(
	r repo.RepositoryInterface,
	fetcher provider.TransferFetcher,
	classifier *classify.Classifier,
	allowlist *token.Allowlist,
	log *zap.SugaredLogger,
) *SyncService {
	return &SyncService{
		repo:       r,
		fetcher:    fetcher,
		classifier: classifier,
		writer:     NewLedgerWriter(r, log),
		allowlist:  allowlist,
		log:        log,
	}
}

// Sync runs one cycle over the requested scope. Wallet-level failures
// are isolated: one bad wallet never aborts the rest.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (*Summary, error) {
	if !s.fetcher.Available() {
		return nil, provider.ErrNoProviderConfigured
	}

	tracked, err := s.repo.ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := s.resolveScope(ctx, req, tracked)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: uuid.NewString()}

	// dedup sweep first so the writer's existence checks see one row
	// per (tx_hash, wallet_id)
	dups, err := s.repo.RemoveDuplicateTransactions(ctx)
	if err != nil {
		s.log.Errorw("duplicate sweep failed", "error", err)
	}
	summary.DuplicatesRemoved = dups

	for _, wallet := range scope {
		res := s.syncWallet(ctx, wallet, tracked, req.ForceFullSync)
		summary.NewTransactions += res.NewTransactions
		summary.MirrorsCreated += res.Mirrors
		summary.Results = append(summary.Results, res)
	}

	if req.ForceFullSync {
		summary.MirrorsCreated += s.Backfill(ctx, tracked)
	}

	cleaned, err := s.Cleanup(ctx)
	if err != nil {
		s.log.Errorw("cleanup pass failed", "error", err)
	}
	summary.RowsCleaned = cleaned

	summary.SyncedAt = time.Now().UTC()

	// best-effort collaborators: balance refresh and the outbox event
	// must never fail the sync response
	s.refreshBalances(ctx, scope)
	s.emitSummaryEvent(ctx, summary)

	return summary, nil
}

func (s *SyncService) resolveScope(ctx context.Context, req SyncRequest, tracked []model.Wallet) ([]model.Wallet, error) {
	if req.WalletID == nil {
		if len(tracked) == 0 {
			return nil, ErrNoWallets
		}
		return tracked, nil
	}
	for _, w := range tracked {
		if w.ID == *req.WalletID {
			return []model.Wallet{w}, nil
		}
	}
	return nil, ErrNoWallets
}

// syncWallet pulls one wallet's new transfers, classifies and writes
// them, then advances the checkpoint exactly once, after everything
// fetched this cycle has been processed. A crash mid-wallet leaves the
// checkpoint unadvanced, so the next run naturally resumes.
func (s *SyncService) syncWallet(ctx context.Context, wallet model.Wallet, tracked []model.Wallet, forceFull bool) WalletResult {
	result := WalletResult{WalletID: wallet.ID, WalletName: wallet.Name, Source: string(provider.SourceNone)}

	var since uint64
	if !forceFull {
		cp, err := s.repo.GetCheckpoint(ctx, wallet.ID)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if cp != nil {
			since = cp.LastBlockSynced
		}
	}

	fetched, err := s.fetcher.FetchTransfers(ctx, wallet, since, forceFull)
	result.Source = string(fetched.Source)
	if err != nil {
		s.log.Errorw("transfer fetch failed", "wallet", wallet.Name, "error", err)
		result.Error = err.Error()
		if cperr := s.repo.AdvanceCheckpoint(ctx, wallet.ID, since, "", model.SyncStatusError); cperr != nil {
			s.log.Errorw("checkpoint update failed", "wallet", wallet.Name, "error", cperr)
		}
		return result
	}

	maxBlock := since
	for _, raw := range fetched.Transfers {
		if raw.BlockNumber > maxBlock {
			maxBlock = raw.BlockNumber
		}
		entry, reason := s.classifier.Classify(ctx, raw, wallet)
		if reason != classify.DropNone {
			continue
		}
		inserted, mirrored := s.writer.Upsert(ctx, entry, tracked)
		if inserted {
			result.NewTransactions++
		}
		if mirrored {
			result.Mirrors++
		}
	}

	watermark := maxBlock
	if fetched.Cursor != "" && watermark > since {
		// a live cursor means the fetch stopped at the page ceiling;
		// hold the watermark one block below the boundary so rows
		// sharing it are refetched next cycle, the writer dedupes them
		watermark--
	}
	if err := s.repo.AdvanceCheckpoint(ctx, wallet.ID, watermark, fetched.Cursor, model.SyncStatusSuccess); err != nil {
		s.log.Errorw("checkpoint update failed", "wallet", wallet.Name, "error", err)
		result.Error = err.Error()
	}

	s.log.Infow("wallet synced",
		"wallet", wallet.Name,
		"source", result.Source,
		"fetched", len(fetched.Transfers),
		"inserted", result.NewTransactions,
		"mirrors", result.Mirrors,
		"watermark", watermark)
	return result
}

// Cleanup deletes rows violating positivity, dust or allowlist
// invariants. Runs at the end of every sync, full or incremental.
func (s *SyncService) Cleanup(ctx context.Context) (int64, error) {
	dustSymbol := ""
	dustThreshold := decimal.Zero
	for _, t := range s.allowlist.Tokens() {
		if t.DustThreshold.IsPositive() {
			dustSymbol = t.Symbol
			dustThreshold = t.DustThreshold
			break
		}
	}
	return s.repo.CleanupLedger(ctx, s.allowlist.Symbols(), dustSymbol, dustThreshold)
}

func (s *SyncService) refreshBalances(ctx context.Context, wallets []model.Wallet) {
	for _, w := range wallets {
		balances, err := s.repo.SumLedgerBalances(ctx, w.ID)
		if err != nil {
			s.log.Warnw("balance refresh failed", "wallet", w.Name, "error", err)
			continue
		}
		for symbol, bal := range balances {
			if err := s.repo.CacheWalletBalance(ctx, w.ID, symbol, bal); err != nil {
				s.log.Warnw("balance cache write failed", "wallet", w.Name, "symbol", symbol, "error", err)
			}
		}
	}
}

func (s *SyncService) emitSummaryEvent(ctx context.Context, summary *Summary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		s.log.Warnw("summary marshal failed", "error", err)
		return
	}
	evt := &model.OutboxEvent{
		Aggregate:   "Ledger",
		AggregateID: summary.RunID,
		EventType:   "sync.completed",
		Payload:     string(payload),
	}
	if err := s.repo.CreateOutboxEvent(ctx, evt); err != nil {
		s.log.Warnw("outbox write failed", "error", err)
	}
}

// Wallets returns the tracked wallet list (read endpoint).
func (s *SyncService) Wallets(ctx context.Context) ([]model.Wallet, error) {
	return s.repo.ListWallets(ctx)
}

// Transactions returns recent ledger rows, optionally scoped to one
// wallet (read endpoint).
func (s *SyncService) Transactions(ctx context.Context, walletID uint64, limit int) ([]model.Transaction, error) {
	if walletID != 0 {
		if _, err := s.repo.GetWallet(ctx, walletID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoWallets
			}
			return nil, err
		}
	}
	return s.repo.ListTransactions(ctx, walletID, limit)
}
