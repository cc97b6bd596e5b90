package classify

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/pricing"
	"github.com/treasurydash/ledgersync/internal/provider"
	"github.com/treasurydash/ledgersync/internal/token"
	"go.uber.org/zap"
)

const defaultDecimals = 18

// DropReason explains why a raw transfer was filtered out. An empty
// reason means the transfer was kept. Drops are deliberate filtering,
// not failures; they are logged at debug for observability only.
type DropReason string

const (
	DropNone         DropReason = ""
	DropOffAllowlist DropReason = "symbol not allowlisted"
	DropZeroAmount   DropReason = "zero or unparseable amount"
	DropDust         DropReason = "below dust threshold"
)

// Classifier turns raw provider records into canonical ledger entries.
type Classifier struct {
	allowlist *token.Allowlist
	oracle    pricing.Oracle
	log       *zap.SugaredLogger
}

func NewClassifier(allowlist *token.Allowlist, oracle pricing.Oracle, log *zap.SugaredLogger) *Classifier {
	return &Classifier{allowlist: allowlist, oracle: oracle, log: log}
}

// Classify normalizes one raw transfer from the perspective of wallet.
// The returned entry carries the owning wallet id and direction; a nil
// entry with a non-empty reason means the transfer was dropped.
func (c *Classifier) Classify(ctx context.Context, raw provider.RawTransfer, wallet model.Wallet) (*model.Transaction, DropReason) {
	// contract address is authoritative for the symbol; providers get
	// symbol strings wrong and spam tokens impersonate real ones
	symbol := strings.ToUpper(raw.Symbol)
	if t, ok := c.allowlist.ByContract(raw.ContractAddress); ok {
		symbol = t.Symbol
	}

	tok, ok := c.allowlist.BySymbol(symbol)
	if !ok {
		c.logDrop(raw, wallet, DropOffAllowlist)
		return nil, DropOffAllowlist
	}

	direction := model.DirectionIn
	if wallet.HasAddress(raw.From) {
		direction = model.DirectionOut
	}

	amount := normalizeAmount(raw.Value, raw.Decimals)
	if amount.LessThanOrEqual(decimal.Zero) {
		c.logDrop(raw, wallet, DropZeroAmount)
		return nil, DropZeroAmount
	}
	if tok.DustThreshold.IsPositive() && amount.LessThan(tok.DustThreshold) {
		c.logDrop(raw, wallet, DropDust)
		return nil, DropDust
	}

	price := c.oracle.QuoteUSD(ctx, tok.Symbol)

	var tokenAddr *string
	if raw.ContractAddress != "" {
		addr := raw.ContractAddress
		tokenAddr = &addr
	}

	return &model.Transaction{
		WalletID:     wallet.ID,
		TxHash:       raw.TxHash,
		BlockNumber:  raw.BlockNumber,
		Timestamp:    raw.Timestamp,
		FromAddress:  raw.From,
		ToAddress:    raw.To,
		Direction:    direction,
		TokenSymbol:  tok.Symbol,
		TokenAddress: tokenAddr,
		Amount:       amount,
		UsdValue:     amount.Mul(price),
		GasFee:       decimal.Zero,
		Status:       model.StatusSuccess,
	}, DropNone
}

func (c *Classifier) logDrop(raw provider.RawTransfer, wallet model.Wallet, reason DropReason) {
	c.log.Debugw("transfer dropped",
		"reason", string(reason),
		"tx_hash", raw.TxHash,
		"symbol", raw.Symbol,
		"wallet", wallet.Name)
}

// normalizeAmount divides the raw integer value by 10^decimals. Missing
// or unparseable decimals default to 18; an unparseable value becomes
// zero and gets dropped by the positivity rule.
func normalizeAmount(value, decimals string) decimal.Decimal {
	raw, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	dec, err := strconv.Atoi(decimals)
	if err != nil || dec < 0 {
		dec = defaultDecimals
	}
	return raw.Shift(int32(-dec))
}
