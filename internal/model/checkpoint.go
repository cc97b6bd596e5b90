package model

import "time"

// Checkpoint sync status values.
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncCheckpoint is the per-wallet high-water mark for incremental sync.
// LastBlockSynced never regresses; a cycle that sees no new blocks
// rewrites the same value with a fresh LastSyncAt so operators can tell
// a live no-op sync from a stalled one.
type SyncCheckpoint struct {
	WalletID        uint64    `gorm:"primaryKey" json:"wallet_id"`
	LastBlockSynced uint64    `gorm:"not null;default:0" json:"last_block_synced"`
	LastSyncAt      time.Time `gorm:"not null" json:"last_sync_at"`
	SyncStatus      string    `gorm:"size:16;not null" json:"sync_status"`
	LastCursor      string    `gorm:"size:512" json:"last_cursor"`
}

func (SyncCheckpoint) TableName() string { return "sync_checkpoint" }
