package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainSelector identifies a remote chain.
type ChainSelector uint64

// PaymentID is the caller-assigned handle of an originating payment.
type PaymentID [32]byte

// Hex returns the 0x-prefixed hex form of the id.
func (p PaymentID) Hex() string {
	return common.Hash(p).Hex()
}

// TokenAmount is an asset/amount pair physically delivered with a message.
type TokenAmount struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// PaymentIntent is the decoded payment instruction carried by a message.
type PaymentIntent struct {
	PaymentID           PaymentID       `json:"paymentId"`
	DestinationToken    common.Address  `json:"destinationToken"`
	Recipient           common.Address  `json:"recipient"`
	MinAcceptableOutput *big.Int        `json:"minAcceptableOutput"`
	SourceToken         *common.Address `json:"sourceToken,omitempty"` // nil in the legacy wire format
}

// EffectiveSourceToken returns the declared source token, falling back to
// the destination token when the payload did not carry one.
func (p PaymentIntent) EffectiveSourceToken() common.Address {
	if p.SourceToken != nil {
		return *p.SourceToken
	}
	return p.DestinationToken
}

// MinOutput returns a copy of the minimum acceptable output, zero when the
// payload did not set one.
func (p PaymentIntent) MinOutput() *big.Int {
	if p.MinAcceptableOutput == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.MinAcceptableOutput)
}

// Message is the inbound envelope handed over by the transport.
type Message struct {
	MessageID      common.Hash   `json:"messageId"`
	SourceChain    ChainSelector `json:"sourceChainSelector"`
	Sender         []byte        `json:"sender"`
	Data           []byte        `json:"data"`
	DeliveredFunds []TokenAmount `json:"destTokenAmounts"`
}

// SettlementRecord describes a completed settlement. It is handed to the
// gateway and emitted as an event; nothing here persists it.
type SettlementRecord struct {
	PaymentID     PaymentID      `json:"paymentId"`
	Recipient     common.Address `json:"recipient"`
	SettledToken  common.Address `json:"settledToken"`
	SettledAmount *big.Int       `json:"settledAmount"`
	Swapped       bool           `json:"swapped"`
}
