package provider

import (
	"context"
	"fmt"

	"github.com/treasurydash/ledgersync/internal/model"
	"go.uber.org/zap"
)

// FallbackFetcher implements TransferFetcher over the two providers:
// primary first, secondary when the primary aborts or yields nothing.
// Either client may be nil when its credential is not configured.
type FallbackFetcher struct {
	primary   *IndexerClient
	secondary *ScanClient
	log       *zap.SugaredLogger
}

func NewFallbackFetcher(primary *IndexerClient, secondary *ScanClient, log *zap.SugaredLogger) *FallbackFetcher {
	return &FallbackFetcher{primary: primary, secondary: secondary, log: log}
}

// Available reports whether any provider credential is configured.
func (f *FallbackFetcher) Available() bool {
	return f.primary != nil || f.secondary != nil
}

// FetchTransfers tries the primary indexer, then falls back to the
// secondary scan API. A primary failure discards any partial pages; the
// checkpoint must only ever reflect data from the source that actually
// served the wallet.
func (f *FallbackFetcher) FetchTransfers(ctx context.Context, wallet model.Wallet, sinceBlock uint64, forceFullHistory bool) (FetchResult, error) {
	if f.primary == nil && f.secondary == nil {
		return FetchResult{Source: SourceNone}, ErrNoProviderConfigured
	}

	var primaryErr error
	if f.primary != nil {
		transfers, cursor, err := f.primary.TokenTransfers(ctx, wallet, sinceBlock, forceFullHistory)
		if err != nil {
			primaryErr = err
			f.log.Warnw("primary provider failed, falling back",
				"wallet", wallet.Name, "error", err)
		} else if len(transfers) > 0 {
			return FetchResult{Transfers: transfers, Source: SourcePrimary, Cursor: cursor}, nil
		}
	}

	if f.secondary != nil {
		transfers, err := f.secondary.TokenTransfers(ctx, wallet)
		if err != nil {
			if primaryErr != nil {
				return FetchResult{Source: SourceNone},
					fmt.Errorf("primary failed (%v); secondary failed: %w", primaryErr, err)
			}
			if f.primary == nil {
				return FetchResult{Source: SourceNone}, err
			}
			// primary answered cleanly with no rows; a broken secondary
			// must not turn "no new data" into a wallet failure
			f.log.Warnw("secondary provider failed after empty primary result",
				"wallet", wallet.Name, "error", err)
			return FetchResult{Source: SourcePrimary}, nil
		}
		return FetchResult{Transfers: transfers, Source: SourceSecondary}, nil
	}

	if primaryErr != nil {
		return FetchResult{Source: SourceNone}, primaryErr
	}
	return FetchResult{Source: SourcePrimary}, nil
}
