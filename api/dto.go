package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/xsettle/types"
)

// MessageRequest is the JSON form of an inbound message.
type MessageRequest struct {
	MessageID           common.Hash          `json:"messageId"`
	SourceChainSelector uint64               `json:"sourceChainSelector"`
	Sender              hexutil.Bytes        `json:"sender"`
	Data                hexutil.Bytes        `json:"data"`
	DestTokenAmounts    []TokenAmountRequest `json:"destTokenAmounts" validate:"dive"`
}

type TokenAmountRequest struct {
	Token  common.Address `json:"token"`
	Amount string         `json:"amount" validate:"required,uint256"`
}

func (m MessageRequest) toMessage() types.Message {
	funds := make([]types.TokenAmount, 0, len(m.DestTokenAmounts))
	for _, f := range m.DestTokenAmounts {
		// validated as uint256
		amount, _ := new(big.Int).SetString(f.Amount, 10)
		funds = append(funds, types.TokenAmount{Token: f.Token, Amount: amount})
	}
	return types.Message{
		MessageID:      m.MessageID,
		SourceChain:    types.ChainSelector(m.SourceChainSelector),
		Sender:         m.Sender,
		Data:           m.Data,
		DeliveredFunds: funds,
	}
}

// SettlementResponse is the JSON form of a settlement record.
type SettlementResponse struct {
	PaymentID     string         `json:"paymentId"`
	Recipient     common.Address `json:"recipient"`
	SettledToken  common.Address `json:"settledToken"`
	SettledAmount string         `json:"settledAmount"`
	Swapped       bool           `json:"swapped"`
}

func newSettlementResponse(r *types.SettlementRecord) SettlementResponse {
	return SettlementResponse{
		PaymentID:     r.PaymentID.Hex(),
		Recipient:     r.Recipient,
		SettledToken:  r.SettledToken,
		SettledAmount: r.SettledAmount.String(),
		Swapped:       r.Swapped,
	}
}

// PaymentResponse is the JSON form of a finalized payment.
type PaymentResponse struct {
	PaymentID   string         `json:"paymentId"`
	Recipient   common.Address `json:"recipient"`
	Token       common.Address `json:"token"`
	Amount      string         `json:"amount"`
	FinalizedAt string         `json:"finalizedAt"`
}

type ErrorResponse struct {
	Code    types.ErrorCode  `json:"code"`
	Class   types.ErrorClass `json:"class"`
	Message string           `json:"message"`
}
