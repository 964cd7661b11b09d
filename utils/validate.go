package utils

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	if err := validate.RegisterValidation("eth_addr_or_empty", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || ValidateAddress(s)
	}); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("uint256", func(fl validator.FieldLevel) bool {
		_, err := ValidateBigInt(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
}

// Validator returns the shared validator with the custom tags registered:
// eth_addr_or_empty and uint256.
func Validator() *validator.Validate {
	return validate
}

// ValidateStruct runs struct tag validation on v.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// DecodeJSON unmarshals data into v, rejecting unknown fields.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}
	return nil
}

// DecodeStrict is DecodeJSON followed by ValidateStruct.
func DecodeStrict(data []byte, v any) error {
	if err := DecodeJSON(data, v); err != nil {
		return err
	}
	return ValidateStruct(v)
}
