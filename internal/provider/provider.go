package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/treasurydash/ledgersync/internal/model"
)

// ErrNoProviderConfigured means neither provider has a credential; the
// caller must surface this as a fatal configuration error rather than
// reporting an empty sync.
var ErrNoProviderConfigured = errors.New("no transfer provider configured")

// ErrAuthOrQuota marks a credential/quota rejection from a provider; it
// aborts that provider immediately and triggers fallback.
var ErrAuthOrQuota = errors.New("provider auth or quota failure")

// Source records which provider actually served a wallet's transfers.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceNone      Source = "none"
)

// RawTransfer is the provider-agnostic shape of one token movement as
// fetched, before classification. Value stays a raw integer string and
// Decimals a string: providers disagree on types and decimal
// normalization belongs to the classifier.
type RawTransfer struct {
	TxHash          string
	BlockNumber     uint64
	Timestamp       time.Time
	From            string
	To              string
	ContractAddress string
	Symbol          string
	Value           string
	Decimals        string
}

// FetchResult is one wallet's worth of fetched history.
type FetchResult struct {
	Transfers []RawTransfer
	Source    Source
	Cursor    string
}

// TransferFetcher is the adapter contract the sync service consumes.
// Available reports whether at least one provider credential is
// configured; the service rejects a sync up front when none is, before
// any state is touched.
type TransferFetcher interface {
	FetchTransfers(ctx context.Context, wallet model.Wallet, sinceBlock uint64, forceFullHistory bool) (FetchResult, error)
	Available() bool
}

// classifyStatus maps an HTTP status to the auth/quota sentinel when it
// indicates a credential or rate problem. Every non-2xx aborts the
// provider either way; the distinction only matters for logs.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return ErrAuthOrQuota
	}
	return nil
}

// looksLikeQuota recognizes quota phrasing in provider error bodies.
func looksLikeQuota(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") ||
		strings.Contains(m, "quota") ||
		strings.Contains(m, "max rate") ||
		strings.Contains(m, "unauthorized")
}
