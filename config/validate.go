package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitwit/xsettle/types"
	"github.com/vitwit/xsettle/utils"
)

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return types.Wrap(types.CodeConfigError, err, "invalid configuration")
	}

	var errs []error
	switch c.Gateway.Kind {
	case "webhook":
		if c.Gateway.URL == "" {
			errs = append(errs, fmt.Errorf("webhook gateway needs a url"))
		}
	case "sqlite3", "postgres":
		if c.Gateway.DSN == "" {
			errs = append(errs, fmt.Errorf("%s gateway needs a dsn", c.Gateway.Kind))
		}
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway timeout must be positive"))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("api request timeout must be positive"))
	}

	for i, seed := range c.Trust {
		if _, err := utils.ParseFingerprint(seed.Sender); err != nil {
			errs = append(errs, fmt.Errorf("trust[%d]: %w", i, err))
		}
	}

	if len(c.Swap.Rates) > 0 && c.Swap.Desk == "" {
		errs = append(errs, fmt.Errorf("swap rates need a desk account"))
	}
	for i, r := range c.Swap.Rates {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil || !rate.IsPositive() {
			errs = append(errs, fmt.Errorf("swap.rates[%d]: rate %q must be a positive decimal", i, r.Rate))
		}
	}

	book := c.TokenBook()
	for i, g := range c.Genesis {
		if _, err := book.Parse(utils.HexAddress(g.Token), g.Amount); err != nil {
			errs = append(errs, fmt.Errorf("genesis[%d]: %w", i, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return types.Wrap(types.CodeConfigError, err, "invalid configuration")
	}
	return nil
}

// TokenBook builds the token metadata table from Tokens.
func (c *Config) TokenBook() *utils.TokenBook {
	book := utils.NewTokenBook()
	for _, t := range c.Tokens {
		book.Register(utils.HexAddress(t.Address), utils.TokenInfo{Symbol: t.Symbol, Decimals: t.Decimals})
	}
	return book
}
