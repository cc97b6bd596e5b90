package service

import (
	"context"

	"github.com/treasurydash/ledgersync/internal/model"
)

// Backfill rescans the whole ledger and creates mirror entries that are
// missing: rows ingested before their counterparty wallet was tracked,
// or before dual-entry synthesis existed. Idempotent; a second run
// over the same state creates nothing.
func (s *SyncService) Backfill(ctx context.Context, tracked []model.Wallet) int {
	rows, err := s.repo.ListAllTransactions(ctx)
	if err != nil {
		s.log.Errorw("backfill: ledger scan failed", "error", err)
		return 0
	}
	created := 0
	for _, row := range rows {
		ok, err := s.writer.EnsureMirror(ctx, row, tracked)
		if err != nil {
			s.log.Errorw("backfill: mirror synthesis failed", "tx_hash", row.TxHash, "error", err)
			continue
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		s.log.Infow("backfill created missing mirror entries", "count", created)
	}
	return created
}
