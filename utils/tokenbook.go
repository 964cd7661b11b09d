package utils

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenInfo describes how a token's base units are displayed.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// TokenBook maps token addresses to display metadata. Unknown tokens render
// as raw base units.
type TokenBook struct {
	mu     sync.RWMutex
	tokens map[common.Address]TokenInfo
}

func NewTokenBook() *TokenBook {
	return &TokenBook{tokens: make(map[common.Address]TokenInfo)}
}

func (b *TokenBook) Register(token common.Address, info TokenInfo) {
	b.mu.Lock()
	b.tokens[token] = info
	b.mu.Unlock()
}

func (b *TokenBook) Lookup(token common.Address) (TokenInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.tokens[token]
	return info, ok
}

// Format renders amount of token, e.g. "1.5 USDC".
func (b *TokenBook) Format(token common.Address, amount *big.Int) string {
	info, ok := b.Lookup(token)
	if !ok {
		return FormatUnits(amount, 0) + " " + token.Hex()
	}
	return FormatUnits(amount, info.Decimals) + " " + info.Symbol
}

// Parse converts a human amount of token to base units.
func (b *TokenBook) Parse(token common.Address, amount string) (*big.Int, error) {
	info, _ := b.Lookup(token)
	return ParseUnits(amount, info.Decimals)
}
