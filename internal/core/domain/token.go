package domain

import "github.com/ethereum/go-ethereum/common"

// NativeDecimals is the precision of the chain's native currency.
const NativeDecimals = 18

// Token identifies an ERC-20 and the precision its amounts are expressed in.
type Token struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name,omitempty"`
	Symbol   string         `json:"symbol"`
	Decimals int            `json:"decimals"`
}

// Label is "Name (SYMBOL)", or just the symbol when the name is unknown.
func (t Token) Label() string {
	if t.Name == "" || t.Name == t.Symbol {
		return t.Symbol
	}
	return t.Name + " (" + t.Symbol + ")"
}

// IsNative reports whether t stands for the chain's native currency
// rather than a contract.
func (t Token) IsNative() bool {
	return t.Address == (common.Address{})
}

// NativeToken describes the chain's native currency.
func NativeToken(symbol string) Token {
	return Token{Symbol: symbol, Decimals: NativeDecimals}
}
