package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/treasurydash/ledgersync/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryInterface restricts Repo methods (unit-test mocking seam).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	ListWallets(ctx context.Context) ([]model.Wallet, error)
	GetWallet(ctx context.Context, id uint64) (*model.Wallet, error)
	FindTransaction(ctx context.Context, txHash string, walletID uint64) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, t *model.Transaction) error
	ListTransactions(ctx context.Context, walletID uint64, limit int) ([]model.Transaction, error)
	ListAllTransactions(ctx context.Context) ([]model.Transaction, error)
	RemoveDuplicateTransactions(ctx context.Context) (int64, error)
	CleanupLedger(ctx context.Context, allowedSymbols []string, dustSymbol string, dustThreshold decimal.Decimal) (int64, error)
	GetCheckpoint(ctx context.Context, walletID uint64) (*model.SyncCheckpoint, error)
	AdvanceCheckpoint(ctx context.Context, walletID, maxBlockSeen uint64, cursor, status string) error
	SumLedgerBalances(ctx context.Context, walletID uint64) (map[string]decimal.Decimal, error)
	CacheWalletBalance(ctx context.Context, walletID uint64, symbol string, balance decimal.Decimal) error
	CreateOutboxEvent(ctx context.Context, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// ListWallets returns every tracked wallet.
func (r *Repository) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	var wallets []model.Wallet
	err := r.db.WithContext(ctx).Order("id").Find(&wallets).Error
	return wallets, err
}

// GetWallet fetches one wallet by id.
func (r *Repository) GetWallet(ctx context.Context, id uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).First(&w, id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// FindTransaction looks up a ledger row by its (tx_hash, wallet_id)
// identity; returns (nil, nil) when absent.
func (r *Repository) FindTransaction(ctx context.Context, txHash string, walletID uint64) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Where("tx_hash = ? AND wallet_id = ?", txHash, walletID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction inserts a ledger row.
func (r *Repository) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// ListTransactions returns recent rows for one wallet (0 = all wallets).
func (r *Repository) ListTransactions(ctx context.Context, walletID uint64, limit int) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Order("block_number desc, id desc")
	if walletID != 0 {
		q = q.Where("wallet_id = ?", walletID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var txs []model.Transaction
	err := q.Find(&txs).Error
	return txs, err
}

// ListAllTransactions returns the whole ledger, oldest first; the
// backfill pass walks this.
func (r *Repository) ListAllTransactions(ctx context.Context) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).Order("id").Find(&txs).Error
	return txs, err
}

// RemoveDuplicateTransactions deletes rows sharing (tx_hash, wallet_id),
// keeping the oldest. Duplicates only arise from historical ingestion
// before the writer's existence check; the sweep keeps the ledger
// honest either way.
func (r *Repository) RemoveDuplicateTransactions(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM "transaction"
		WHERE id NOT IN (
			SELECT MIN(id) FROM "transaction" GROUP BY tx_hash, wallet_id
		)`)
	return res.RowsAffected, res.Error
}

// CleanupLedger removes rows violating positivity, dust, or allowlist
// invariants. Blunt and order-independent; safe to run unconditionally.
func (r *Repository) CleanupLedger(ctx context.Context, allowedSymbols []string, dustSymbol string, dustThreshold decimal.Decimal) (int64, error) {
	var total int64

	res := r.db.WithContext(ctx).
		Where("amount <= 0").
		Delete(&model.Transaction{})
	if res.Error != nil {
		return total, fmt.Errorf("cleanup zero-amount: %w", res.Error)
	}
	total += res.RowsAffected

	if dustSymbol != "" && dustThreshold.IsPositive() {
		res = r.db.WithContext(ctx).
			Where("token_symbol = ? AND amount < ?", dustSymbol, dustThreshold).
			Delete(&model.Transaction{})
		if res.Error != nil {
			return total, fmt.Errorf("cleanup dust: %w", res.Error)
		}
		total += res.RowsAffected
	}

	res = r.db.WithContext(ctx).
		Where("token_symbol NOT IN ?", allowedSymbols).
		Delete(&model.Transaction{})
	if res.Error != nil {
		return total, fmt.Errorf("cleanup off-allowlist: %w", res.Error)
	}
	total += res.RowsAffected

	return total, nil
}

// GetCheckpoint returns the wallet's checkpoint, or (nil, nil) before
// the first sync.
func (r *Repository) GetCheckpoint(ctx context.Context, walletID uint64) (*model.SyncCheckpoint, error) {
	var cp model.SyncCheckpoint
	err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// AdvanceCheckpoint writes max(maxBlockSeen, stored watermark) and a
// fresh last_sync_at. The watermark never regresses; a no-op cycle still
// refreshes the timestamp so sync liveness stays observable.
func (r *Repository) AdvanceCheckpoint(ctx context.Context, walletID, maxBlockSeen uint64, cursor, status string) error {
	now := time.Now().UTC()
	cp, err := r.GetCheckpoint(ctx, walletID)
	if err != nil {
		return err
	}
	if cp == nil {
		return r.db.WithContext(ctx).Create(&model.SyncCheckpoint{
			WalletID:        walletID,
			LastBlockSynced: maxBlockSeen,
			LastSyncAt:      now,
			SyncStatus:      status,
			LastCursor:      cursor,
		}).Error
	}
	block := cp.LastBlockSynced
	if maxBlockSeen > block {
		block = maxBlockSeen
	}
	return r.db.WithContext(ctx).Model(&model.SyncCheckpoint{}).
		Where("wallet_id = ?", walletID).
		Updates(map[string]interface{}{
			"last_block_synced": block,
			"last_sync_at":      now,
			"sync_status":       status,
			"last_cursor":       cursor,
		}).Error
}

// SumLedgerBalances nets IN minus OUT per token for one wallet.
func (r *Repository) SumLedgerBalances(ctx context.Context, walletID uint64) (map[string]decimal.Decimal, error) {
	type sumRow struct {
		TokenSymbol string
		Direction   string
		Total       decimal.Decimal
	}
	var rows []sumRow
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Select("token_symbol, direction, SUM(amount) as total").
		Where("wallet_id = ?", walletID).
		Group("token_symbol, direction").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal)
	for _, row := range rows {
		bal := balances[row.TokenSymbol]
		if row.Direction == model.DirectionIn {
			bal = bal.Add(row.Total)
		} else {
			bal = bal.Sub(row.Total)
		}
		balances[row.TokenSymbol] = bal
	}
	return balances, nil
}

// CacheWalletBalance writes Redis; best-effort collaborator.
func (r *Repository) CacheWalletBalance(ctx context.Context, walletID uint64, symbol string, balance decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	key := fmt.Sprintf("balance:%d:%s", walletID, symbol)
	return r.rdb.Set(ctx, key, balance.String(), 5*time.Minute).Err()
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, evt *model.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}
