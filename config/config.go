// Package config loads the settlement service configuration.
//
// Values are layered: environment variables (XSETTLE_ prefix) win over the
// optional JSON file named by XSETTLE_CONFIG, which wins over the built-in
// defaults. The merged result is validated before it is returned.
package config

import (
	"time"
)

const EnvPrefix = "XSETTLE_"

type Config struct {
	LogLevel string `env:"LOG_LEVEL" json:"log_level" validate:"oneof=debug info warn error"`

	Metrics  Metrics  `envPrefix:"METRICS_" json:"metrics"`
	Receiver Receiver `envPrefix:"RECEIVER_" json:"receiver"`
	Gateway  Gateway  `envPrefix:"GATEWAY_" json:"gateway"`
	Swap     Swap     `envPrefix:"SWAP_" json:"swap"`
	API      API      `envPrefix:"API_" json:"api"`

	// Trust, Tokens and Genesis are list-shaped and only come from the file.
	Trust   []TrustSeed `json:"trust" validate:"dive"`
	Tokens  []Token     `json:"tokens" validate:"dive"`
	Genesis []Balance   `json:"genesis" validate:"dive"`

	// File is the JSON file merged under the environment.
	File string `env:"CONFIG" json:"-"`
}

type Metrics struct {
	Disabled bool   `env:"DISABLED" json:"disabled"`
	Path     string `env:"PATH" json:"path" validate:"startswith=/"`
}

// Receiver describes the receiving side's accounts.
type Receiver struct {
	Account  string   `env:"ACCOUNT" json:"account" validate:"required,eth_addr"`
	Router   string   `env:"ROUTER" json:"router" validate:"eth_addr_or_empty"`
	Vault    string   `env:"VAULT" json:"vault" validate:"required,eth_addr"`
	Admins   []string `env:"ADMINS" envSeparator:"," json:"admins" validate:"required,min=1,dive,eth_addr"`
	Spenders []string `env:"SPENDERS" envSeparator:"," json:"spenders" validate:"dive,eth_addr"`

	// TokenPool mints delivered funds to Account at the start of each
	// message instead of expecting the transport to have done so.
	TokenPool bool `env:"TOKEN_POOL" json:"token_pool"`
}

// TrustSeed is a trust registry entry applied at start up.
type TrustSeed struct {
	Chain    uint64 `json:"chain" validate:"required"`
	Sender   string `json:"sender"`
	Disabled bool   `json:"disabled"`
}

type Gateway struct {
	Kind    string   `env:"KIND" json:"kind" validate:"oneof=nop webhook sqlite3 postgres"`
	URL     string   `env:"URL" json:"url" validate:"omitempty,url"`
	Path    string   `env:"PATH" json:"path"`
	Token   string   `env:"TOKEN" json:"token"`
	Timeout Duration `env:"TIMEOUT" json:"timeout"`
	DSN     string   `env:"DSN" json:"dsn"`
}

type Swap struct {
	Desk  string `env:"DESK" json:"desk" validate:"eth_addr_or_empty"`
	Rates []Rate `json:"rates" validate:"dive"`
}

// Rate quotes Rate units of Out per unit of In.
type Rate struct {
	In   string `json:"in" validate:"required,eth_addr"`
	Out  string `json:"out" validate:"required,eth_addr"`
	Rate string `json:"rate" validate:"required"`
}

type API struct {
	Address         string   `env:"ADDRESS" json:"address" validate:"required"`
	JWTKey          string   `env:"JWT_KEY" json:"jwt_key"`
	JWTIssuer       string   `env:"JWT_ISSUER" json:"jwt_issuer"`
	RequestTimeout  Duration `env:"REQUEST_TIMEOUT" json:"request_timeout"`
	ShutdownTimeout Duration `env:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout"`
}

type Token struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Symbol   string `json:"symbol" validate:"required"`
	Decimals int32  `json:"decimals" validate:"gte=0,lte=77"`
}

// Balance is a genesis balance in human units of Token.
type Balance struct {
	Token   string `json:"token" validate:"required,eth_addr"`
	Account string `json:"account" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required"`
}

// Defaults returns the built-in configuration layer.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Metrics: Metrics{
			Path: "/metrics",
		},
		Gateway: Gateway{
			Kind:    "nop",
			Path:    "/",
			Timeout: Duration(5 * time.Second),
		},
		API: API{
			Address:         ":8080",
			JWTIssuer:       "xsettle",
			RequestTimeout:  Duration(10 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}
