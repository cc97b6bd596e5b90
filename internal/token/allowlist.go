package token

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/treasurydash/ledgersync/internal/config"
)

// Token is one allowlisted asset. Contract addresses are authoritative
// for symbol resolution; provider-supplied symbol strings are not
// trusted when the contract is known.
type Token struct {
	Symbol        string
	Addresses     []string
	Decimals      int
	DustThreshold decimal.Decimal
	DefaultPrice  decimal.Decimal
	LiveQuote     bool
	QuoteID       string
}

// Allowlist is the fixed set of symbols the ledger tracks. Everything
// else is dropped at classification and swept by cleanup.
type Allowlist struct {
	tokens     []Token
	bySymbol   map[string]*Token
	byContract map[string]*Token
}

// NewAllowlist builds the registry from config entries.
func NewAllowlist(entries []config.TokenConfig) *Allowlist {
	al := &Allowlist{
		bySymbol:   make(map[string]*Token),
		byContract: make(map[string]*Token),
	}
	for _, e := range entries {
		dust, err := decimal.NewFromString(e.DustThreshold)
		if err != nil {
			dust = decimal.Zero
		}
		price, err := decimal.NewFromString(e.DefaultPrice)
		if err != nil {
			price = decimal.Zero
		}
		al.tokens = append(al.tokens, Token{
			Symbol:        strings.ToUpper(e.Symbol),
			Addresses:     e.Addresses,
			Decimals:      e.Decimals,
			DustThreshold: dust,
			DefaultPrice:  price,
			LiveQuote:     e.LiveQuote,
			QuoteID:       e.QuoteID,
		})
	}
	for i := range al.tokens {
		t := &al.tokens[i]
		al.bySymbol[t.Symbol] = t
		for _, addr := range t.Addresses {
			al.byContract[strings.ToLower(addr)] = t
		}
	}
	return al
}

// BySymbol looks up a token by symbol, case-insensitively.
func (a *Allowlist) BySymbol(symbol string) (*Token, bool) {
	t, ok := a.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// ByContract looks up a token by contract address, case-insensitively.
func (a *Allowlist) ByContract(addr string) (*Token, bool) {
	if addr == "" {
		return nil, false
	}
	t, ok := a.byContract[strings.ToLower(addr)]
	return t, ok
}

// Symbols returns every allowlisted symbol.
func (a *Allowlist) Symbols() []string {
	out := make([]string, 0, len(a.tokens))
	for _, t := range a.tokens {
		out = append(out, t.Symbol)
	}
	return out
}

// Tokens returns all entries.
func (a *Allowlist) Tokens() []Token {
	return a.tokens
}
