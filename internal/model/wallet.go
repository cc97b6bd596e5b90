package model

import (
	"strings"
	"time"
)

// Chain identifies the network a wallet lives on.
type Chain string

const (
	ChainBNB     Chain = "BNB"
	ChainETH     Chain = "ETH"
	ChainPolygon Chain = "POLYGON"
	ChainARB     Chain = "ARB"
	ChainBase    Chain = "BASE"
)

// Wallet is a tracked treasury address. Rows are managed by the settings
// UI; the sync engine only reads them.
type Wallet struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Address   string    `gorm:"size:64;not null;index" json:"address"`
	Chain     Chain     `gorm:"size:16;not null" json:"chain"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }

// HasAddress compares case-insensitively; chain addresses carry no
// canonical casing in the ledger.
func (w Wallet) HasAddress(addr string) bool {
	return strings.EqualFold(w.Address, addr)
}
