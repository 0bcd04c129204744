// Package config holds the YAML engine configuration. Structs are validated
// with go-playground/validator and can emit a JSON schema for editor
// completion.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-engine/internal/trading/paper"
	tradingprovider "github.com/rxtech-lab/argo-engine/internal/trading/provider"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// Duration wraps time.Duration so YAML configs can use "2s" notation.
type Duration time.Duration

// UnmarshalYAML implements custom unmarshaling for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "bad duration %q", value.Value)
	}

	*d = Duration(parsed)

	return nil
}

// JSONSchema reports durations as strings in the generated schema.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: "Go duration, e.g. 2s or 1m30s"}
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarketDataConfig selects and configures the market data source.
type MarketDataConfig struct {
	// StreamURL overrides the websocket endpoint, used against local test
	// servers.
	StreamURL     string   `yaml:"stream_url" json:"stream_url" jsonschema:"title=Stream URL,description=Websocket stream endpoint override"`
	KlineInterval string   `yaml:"kline_interval" json:"kline_interval" jsonschema:"title=Kline Interval,description=Bar interval subscribed per symbol,default=1m"`
	Symbols       []string `yaml:"symbols" json:"symbols" jsonschema:"title=Symbols,description=Instruments in BASE/QUOTE notation" validate:"required,min=1,dive,required"`
}

// TradingConfig selects the trading venue.
type TradingConfig struct {
	Venue   string                        `yaml:"venue" json:"venue" jsonschema:"title=Venue,description=Trading venue to route orders to" validate:"required,oneof=paper binance"`
	Paper   paper.Config                  `yaml:"paper" json:"paper" jsonschema:"title=Paper,description=Paper venue settings"`
	Binance tradingprovider.BinanceConfig `yaml:"binance" json:"binance" jsonschema:"title=Binance,description=Binance venue credentials"`
	// OrderPollInterval is how often working Binance orders are polled for
	// fills.
	OrderPollInterval Duration `yaml:"order_poll_interval" json:"order_poll_interval" jsonschema:"title=Order Poll Interval"`
	// BalanceRefreshInterval is how often venue balances are reconciled.
	BalanceRefreshInterval Duration `yaml:"balance_refresh_interval" json:"balance_refresh_interval" jsonschema:"title=Balance Refresh Interval"`
}

// ServerConfig configures the engine status HTTP server.
type ServerConfig struct {
	// Listen is the bind address, empty disables the server.
	Listen string `yaml:"listen" json:"listen" jsonschema:"title=Listen,description=Bind address of the status server"`
}

// StrategyConfig instantiates one registered strategy on a set of symbols.
type StrategyConfig struct {
	Name    string   `yaml:"name" json:"name" jsonschema:"title=Name,description=Registered strategy name" validate:"required"`
	Tag     string   `yaml:"tag" json:"tag" jsonschema:"title=Tag,description=Instance tag distinguishing multiple instances"`
	Symbols []string `yaml:"symbols" json:"symbols" jsonschema:"title=Symbols,description=Instruments the strategy trades" validate:"required,min=1,dive,required"`
	// Params are strategy-specific settings passed to the factory verbatim.
	Params map[string]any `yaml:"params" json:"params" jsonschema:"title=Params,description=Strategy-specific settings"`
}

// Config is the root engine configuration.
type Config struct {
	MarketData MarketDataConfig `yaml:"market_data" json:"market_data" jsonschema:"title=Market Data" validate:"required"`
	Trading    TradingConfig    `yaml:"trading" json:"trading" jsonschema:"title=Trading" validate:"required"`
	Server     ServerConfig     `yaml:"server" json:"server" jsonschema:"title=Server"`
	Strategies []StrategyConfig `yaml:"strategies" json:"strategies" jsonschema:"title=Strategies" validate:"required,min=1,dive"`
}

const (
	defaultOrderPollInterval      = 2 * time.Second
	defaultBalanceRefreshInterval = 30 * time.Second
)

// Parse parses and validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse engine config", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	return Parse(data)
}

func (c *Config) applyDefaults() {
	if c.MarketData.KlineInterval == "" {
		c.MarketData.KlineInterval = "1m"
	}

	if c.Trading.OrderPollInterval <= 0 {
		c.Trading.OrderPollInterval = Duration(defaultOrderPollInterval)
	}

	if c.Trading.BalanceRefreshInterval <= 0 {
		c.Trading.BalanceRefreshInterval = Duration(defaultBalanceRefreshInterval)
	}
}

// Validate validates the configuration, including venue-specific sections
// that only apply to the selected venue.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid engine config", err)
	}

	if c.Trading.Venue == "binance" {
		if err := c.Trading.Binance.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// GenerateSchema generates the JSON schema of the engine configuration.
func GenerateSchema() (string, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
	}

	schema := reflector.Reflect(&Config{})

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal config schema", err)
	}

	return string(data), nil
}
