package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/xsettle/types"
)

// ValidateAddress checks if a string is a valid Ethereum address
func ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress ensures an address is properly checksummed
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return common.HexToAddress(address).Hex()
}

// ParseAddress is NormalizeAddress with an error for bad input.
func ParseAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address %q", address)
	}
	return common.HexToAddress(address), nil
}

// ParsePaymentID parses a 0x-prefixed 32-byte hex string.
func ParsePaymentID(s string) (types.PaymentID, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return types.PaymentID{}, fmt.Errorf("invalid payment id %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return types.PaymentID{}, fmt.Errorf("payment id must be %d bytes, got %d", common.HashLength, len(b))
	}
	return types.PaymentID(common.BytesToHash(b)), nil
}

// ParseFingerprint decodes a hex sender fingerprint. An empty string is the
// empty fingerprint.
func ParseFingerprint(s string) ([]byte, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid sender fingerprint %q: %w", s, err)
	}
	return b, nil
}

// HexAddress converts an address string that has already been validated.
func HexAddress(address string) common.Address {
	return common.HexToAddress(address)
}
