// Package codec decodes the payment instruction carried in an inbound
// message and encodes it on the sending side.
//
// The payload is the Solidity ABI encoding of static values, one 32-byte word
// per field:
//
//	legacy   (128 bytes): bytes32 paymentId, address destinationToken, address recipient, uint256 minAcceptableOutput
//	extended (160 bytes): legacy fields followed by address sourceToken
//
// The shape is chosen by exact length through the layouts table. Encode and
// Decode share that table, so the accepted lengths cannot drift from what the
// encoder produces. Any other length is rejected.
package codec

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/xsettle/types"
)

// Shape identifies a payload layout.
type Shape int

const (
	ShapeLegacy Shape = iota + 1
	ShapeExtended
)

func (s Shape) String() string {
	switch s {
	case ShapeLegacy:
		return "legacy"
	case ShapeExtended:
		return "extended"
	default:
		return "unknown"
	}
}

const (
	wordSize = 32

	LegacyLength   = 4 * wordSize
	ExtendedLength = 5 * wordSize
)

type layout struct {
	shape Shape
	args  abi.Arguments
}

var (
	bytes32Ty = mustType("bytes32")
	addressTy = mustType("address")
	uint256Ty = mustType("uint256")

	legacyArgs = abi.Arguments{
		{Name: "paymentId", Type: bytes32Ty},
		{Name: "destinationToken", Type: addressTy},
		{Name: "recipient", Type: addressTy},
		{Name: "minAcceptableOutput", Type: uint256Ty},
	}

	extendedArgs = append(append(abi.Arguments{}, legacyArgs...),
		abi.Argument{Name: "sourceToken", Type: addressTy})

	// layouts maps an exact payload length to its shape.
	layouts = map[int]layout{
		LegacyLength:   {shape: ShapeLegacy, args: legacyArgs},
		ExtendedLength: {shape: ShapeExtended, args: extendedArgs},
	}
)

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

// ShapeOf returns the shape a payload of n bytes decodes as.
func ShapeOf(n int) (Shape, bool) {
	l, ok := layouts[n]
	return l.shape, ok
}

// Decode parses data into a PaymentIntent. It fails with a
// types.ErrMalformedPayload-coded error when data is not exactly one of the
// two shapes or is not canonically encoded (for example an address word
// with non-zero padding).
func Decode(data []byte) (types.PaymentIntent, error) {
	l, ok := layouts[len(data)]
	if !ok {
		return types.PaymentIntent{}, types.Errorf(types.CodeMalformedPayload,
			"payload is %d bytes, want %d (legacy) or %d (extended)", len(data), LegacyLength, ExtendedLength)
	}

	values, err := l.args.Unpack(data)
	if err != nil {
		return types.PaymentIntent{}, types.Wrap(types.CodeMalformedPayload, err, "failed to unpack %s payload", l.shape)
	}

	intent, err := fromValues(l.shape, values)
	if err != nil {
		return types.PaymentIntent{}, err
	}

	// Unpack ignores address padding; re-encoding exposes dirty words.
	canonical, err := Encode(intent)
	if err != nil {
		return types.PaymentIntent{}, err
	}
	if !bytes.Equal(canonical, data) {
		return types.PaymentIntent{}, types.Errorf(types.CodeMalformedPayload, "%s payload is not canonically encoded", l.shape)
	}
	return intent, nil
}

func fromValues(shape Shape, values []any) (types.PaymentIntent, error) {
	var (
		intent types.PaymentIntent
		ok     bool
	)

	id, ok := values[0].([32]byte)
	if !ok {
		return intent, types.Errorf(types.CodeMalformedPayload, "paymentId has unexpected type %T", values[0])
	}
	intent.PaymentID = types.PaymentID(id)

	if intent.DestinationToken, ok = values[1].(common.Address); !ok {
		return intent, types.Errorf(types.CodeMalformedPayload, "destinationToken has unexpected type %T", values[1])
	}
	if intent.Recipient, ok = values[2].(common.Address); !ok {
		return intent, types.Errorf(types.CodeMalformedPayload, "recipient has unexpected type %T", values[2])
	}
	if intent.MinAcceptableOutput, ok = values[3].(*big.Int); !ok {
		return intent, types.Errorf(types.CodeMalformedPayload, "minAcceptableOutput has unexpected type %T", values[3])
	}

	if shape == ShapeExtended {
		src, ok := values[4].(common.Address)
		if !ok {
			return intent, types.Errorf(types.CodeMalformedPayload, "sourceToken has unexpected type %T", values[4])
		}
		intent.SourceToken = &src
	}
	return intent, nil
}

// Encode produces the payload for intent: extended when SourceToken is set,
// legacy otherwise.
func Encode(intent types.PaymentIntent) ([]byte, error) {
	minOut := intent.MinOutput()
	if minOut.Sign() < 0 || minOut.BitLen() > 256 {
		return nil, types.Errorf(types.CodeInvalidAmount, "minAcceptableOutput %s does not fit uint256", minOut)
	}

	values := []any{
		[32]byte(intent.PaymentID),
		intent.DestinationToken,
		intent.Recipient,
		minOut,
	}

	args := legacyArgs
	if intent.SourceToken != nil {
		args = extendedArgs
		values = append(values, *intent.SourceToken)
	}

	out, err := args.Pack(values...)
	if err != nil {
		return nil, types.Wrap(types.CodeMalformedPayload, err, "failed to pack payload")
	}
	return out, nil
}

// SenderFingerprint returns the 32-byte ABI encoding of an EVM sender
// address, which is how an EVM origin reports the sender of a message.
func SenderFingerprint(sender common.Address) []byte {
	return common.LeftPadBytes(sender.Bytes(), wordSize)
}
