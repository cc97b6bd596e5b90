package service

import (
	"context"

	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/repo"
	"go.uber.org/zap"
)

// LedgerWriter performs the idempotent upsert of canonical transactions
// keyed by (tx_hash, wallet_id), and synthesizes the counterparty's
// mirrored entry when both sides of a transfer are tracked wallets.
type LedgerWriter struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewLedgerWriter(r repo.RepositoryInterface, log *zap.SugaredLogger) *LedgerWriter {
	return &LedgerWriter{repo: r, log: log}
}

// Upsert records the entry unless its (tx_hash, wallet_id) identity
// already exists, then ensures the mirror row. Mirror synthesis runs
// even when the primary row pre-existed, so re-running over already
// ingested history still repairs one-sided transfers. Both insert
// outcomes are reported so the caller can count every row that landed.
// Row-level failures are logged and never abort the batch.
func (w *LedgerWriter) Upsert(ctx context.Context, entry *model.Transaction, tracked []model.Wallet) (inserted, mirrored bool) {
	existing, err := w.repo.FindTransaction(ctx, entry.TxHash, entry.WalletID)
	if err != nil {
		w.log.Errorw("ledger lookup failed", "tx_hash", entry.TxHash, "wallet_id", entry.WalletID, "error", err)
		return false, false
	}
	if existing == nil {
		if err := w.repo.CreateTransaction(ctx, entry); err != nil {
			w.log.Errorw("ledger insert failed", "tx_hash", entry.TxHash, "wallet_id", entry.WalletID, "error", err)
		} else {
			inserted = true
		}
	}

	mirrored, err = w.EnsureMirror(ctx, *entry, tracked)
	if err != nil {
		w.log.Errorw("mirror synthesis failed", "tx_hash", entry.TxHash, "error", err)
	}
	return inserted, mirrored
}

// EnsureMirror creates the counterparty's row for entry when the other
// side of the transfer is itself a tracked wallet and no row with the
// same tx_hash exists for it yet. The mirror copies amount, token and
// USD value verbatim from entry, so the two perspectives never drift.
func (w *LedgerWriter) EnsureMirror(ctx context.Context, entry model.Transaction, tracked []model.Wallet) (bool, error) {
	counterparty := findWalletByAddress(tracked, entry.CounterpartyAddress(), entry.WalletID)
	if counterparty == nil {
		return false, nil
	}
	existing, err := w.repo.FindTransaction(ctx, entry.TxHash, counterparty.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	mirror := entry.Mirrored(counterparty.ID)
	if err := w.repo.CreateTransaction(ctx, &mirror); err != nil {
		return false, err
	}
	w.log.Infow("mirror entry created",
		"tx_hash", entry.TxHash,
		"wallet_id", counterparty.ID,
		"direction", mirror.Direction)
	return true, nil
}

func findWalletByAddress(wallets []model.Wallet, addr string, excludeID uint64) *model.Wallet {
	if addr == "" {
		return nil
	}
	for i := range wallets {
		if wallets[i].ID != excludeID && wallets[i].HasAddress(addr) {
			return &wallets[i]
		}
	}
	return nil
}
