package tradingprovider

import (
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// BinanceConfig contains credentials and endpoint selection for the Binance
// spot trading venue. Credentials are only required when the venue is
// selected, so they are checked by Validate rather than struct tags.
type BinanceConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key,description=Binance API key"`
	SecretKey string `yaml:"secret_key" json:"secret_key" jsonschema:"title=Secret Key,description=Binance API secret key"`
	// BaseURL overrides the REST endpoint, used by tests. Takes precedence
	// over UseTestnet.
	BaseURL    string `yaml:"base_url" json:"base_url"`
	UseTestnet bool   `yaml:"use_testnet" json:"use_testnet"`
}

// Validate checks that the credentials needed to trade are present.
func (c *BinanceConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "binance trading requires api_key")
	}

	if c.SecretKey == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "binance trading requires secret_key")
	}

	return nil
}
