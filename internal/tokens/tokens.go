package tokens

import (
	"sort"
	"strings"
)

// Token describes how a logical symbol maps onto oracle identifiers.
type Token struct {
	Symbol      string `mapstructure:"symbol"`
	Chain       string `mapstructure:"chain"`
	Address     string `mapstructure:"address"`
	FeedAddress string `mapstructure:"feed_address"`
}

// Registry is an immutable lookup of tracked tokens, built once at startup.
type Registry struct {
	bySymbol map[string]Token
	tracked  []string
}

// NewRegistry builds a registry from token definitions. Symbols listed in
// tracked are polled by the ingestion loop; every defined symbol resolves
// for on-demand fetches (swap quotes, alert evaluation).
func NewRegistry(defs []Token, tracked []string) *Registry {
	bySymbol := make(map[string]Token, len(defs))
	for _, def := range defs {
		bySymbol[strings.ToLower(def.Symbol)] = def
	}

	kept := make([]string, 0, len(tracked))
	for _, symbol := range tracked {
		symbol = strings.ToLower(symbol)
		if _, ok := bySymbol[symbol]; ok {
			kept = append(kept, symbol)
		}
	}

	return &Registry{bySymbol: bySymbol, tracked: kept}
}

// Resolve returns the token definition for a symbol.
func (r *Registry) Resolve(symbol string) (Token, bool) {
	token, ok := r.bySymbol[strings.ToLower(symbol)]
	return token, ok
}

// Tracked returns the symbols polled every ingestion cycle.
func (r *Registry) Tracked() []string {
	out := make([]string, len(r.tracked))
	copy(out, r.tracked)
	return out
}

// Symbols returns every defined symbol in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Defaults returns the built-in token set: wrapped ETH, MATIC and BTC with
// their mainnet ERC-20 addresses and the Chainlink USD feed for each.
func Defaults() []Token {
	return []Token{
		{
			Symbol:      "ethereum",
			Chain:       "eth",
			Address:     "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			FeedAddress: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
		},
		{
			Symbol:      "polygon",
			Chain:       "polygon",
			Address:     "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
			FeedAddress: "0x7bAC85A8a13A4BcD8abb3eB7d6b4d632c5a57676",
		},
		{
			Symbol:      "bitcoin",
			Chain:       "eth",
			Address:     "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
			FeedAddress: "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
		},
	}
}

// DefaultTracked lists the symbols the ingestion loop polls out of the box.
// Bitcoin resolves for swap quotes but is not part of the periodic sweep.
func DefaultTracked() []string {
	return []string{"ethereum", "polygon"}
}
