package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a ledger entry relative to its owning wallet.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// Transaction status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// Transaction is one ledger entry: a single on-chain token transfer seen
// from the perspective of one tracked wallet. A transfer between two
// tracked wallets appears twice, once per wallet, never twice for the
// same wallet. Uniqueness of (tx_hash, wallet_id) is enforced by the
// writer's existence check plus the pre-sync duplicate sweep rather than
// a DB constraint, matching the hosted backend this ledger mirrors.
type Transaction struct {
	ID           uint64          `gorm:"primaryKey" json:"id"`
	WalletID     uint64          `gorm:"not null;index:idx_tx_wallet" json:"wallet_id"`
	TxHash       string          `gorm:"size:80;not null;index:idx_tx_wallet" json:"tx_hash"`
	BlockNumber  uint64          `gorm:"not null" json:"block_number"`
	Timestamp    time.Time       `gorm:"not null" json:"timestamp"`
	FromAddress  string          `gorm:"size:64;not null" json:"from_address"`
	ToAddress    string          `gorm:"size:64;not null" json:"to_address"`
	Direction    string          `gorm:"size:8;not null" json:"direction"`
	TokenSymbol  string          `gorm:"size:16;not null" json:"token_symbol"`
	TokenAddress *string         `gorm:"size:64" json:"token_address"`
	Amount       decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	UsdValue     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"usd_value"`
	GasFee       decimal.Decimal `gorm:"type:numeric(38,18);not null;default:'0'" json:"gas_fee"`
	Status       string          `gorm:"size:16;not null;default:'success'" json:"status"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string { return "transaction" }

// CounterpartyAddress returns the side of the transfer that is not the
// owning wallet.
func (t Transaction) CounterpartyAddress() string {
	if t.Direction == DirectionOut {
		return t.ToAddress
	}
	return t.FromAddress
}

// Mirrored builds the counterparty's entry for the same transfer: the
// opposite direction under the counterparty wallet, with amount, USD
// value and token identity copied verbatim so the two sides never drift.
func (t Transaction) Mirrored(counterpartyWalletID uint64) Transaction {
	dir := DirectionIn
	if t.Direction == DirectionIn {
		dir = DirectionOut
	}
	return Transaction{
		WalletID:     counterpartyWalletID,
		TxHash:       t.TxHash,
		BlockNumber:  t.BlockNumber,
		Timestamp:    t.Timestamp,
		FromAddress:  t.FromAddress,
		ToAddress:    t.ToAddress,
		Direction:    dir,
		TokenSymbol:  t.TokenSymbol,
		TokenAddress: t.TokenAddress,
		Amount:       t.Amount,
		UsdValue:     t.UsdValue,
		GasFee:       decimal.Zero,
		Status:       t.Status,
	}
}
