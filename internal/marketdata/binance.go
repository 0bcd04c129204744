package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultBinanceStreamURL is the production combined-stream endpoint.
	DefaultBinanceStreamURL = "wss://stream.binance.com:9443"

	binancePriceScale = 8
)

// BinanceSourceConfig configures the Binance market data source.
type BinanceSourceConfig struct {
	// StreamURL overrides the stream endpoint, used by tests against a local
	// server. Defaults to DefaultBinanceStreamURL.
	StreamURL string
	// KlineInterval is the bar interval subscribed per symbol, e.g. "1m".
	KlineInterval string
}

// BinanceSource streams top-of-book, trade, and kline data from Binance
// combined streams into the engine.
type BinanceSource struct {
	config     BinanceSourceConfig
	securities *SecuritySet
	sink       EventSink
	log        *logger.Logger
}

// NewBinanceSource creates the source. Securities are registered before
// SubscribeToSecurities starts the stream.
func NewBinanceSource(config BinanceSourceConfig, sink EventSink, log *logger.Logger) *BinanceSource {
	if config.StreamURL == "" {
		config.StreamURL = DefaultBinanceStreamURL
	}

	if config.KlineInterval == "" {
		config.KlineInterval = "1m"
	}

	return &BinanceSource{
		config:     config,
		securities: NewSecuritySet("binance", binancePriceScale),
		sink:       sink,
		log:        log.Named("binance_source"),
	}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) CreateNewSecurityObject(symbol types.Symbol) (*security.Security, error) {
	return s.securities.Create(symbol)
}

// SubscribeToSecurities connects the combined stream for every registered
// security and blocks until ctx is canceled. Securities go online on
// connect and offline on every drop.
func (s *BinanceSource) SubscribeToSecurities(ctx context.Context) error {
	all := s.securities.All()
	if len(all) == 0 {
		return errors.New(errors.ErrCodeMarketDataMissing, "no securities registered with binance source")
	}

	streams := make([]string, 0, len(all)*3)
	for _, sec := range all {
		venueSymbol := strings.ToLower(sec.Symbol().VenueSymbol())
		streams = append(streams,
			venueSymbol+"@bookTicker",
			venueSymbol+"@trade",
			venueSymbol+"@kline_"+s.config.KlineInterval,
		)
	}

	url := s.config.StreamURL + "/stream?streams=" + strings.Join(streams, "/")

	client := NewStreamClient(
		StreamConfig{URL: url},
		s.handleMessage,
		func(connected bool) { s.securities.SetAllOnline(connected) },
		s.log,
	)

	return client.Run(ctx)
}

// combinedEvent is the envelope of a combined-stream message.
type combinedEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTickerEvent struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type tradeEvent struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

type klineEvent struct {
	Symbol string `json:"s"`
	Kline  struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsFinal   bool   `json:"x"`
	} `json:"k"`
}

func (s *BinanceSource) handleMessage(message []byte) error {
	var envelope combinedEvent
	if err := json.Unmarshal(message, &envelope); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataParse, "bad stream envelope", err)
	}

	switch {
	case strings.Contains(envelope.Stream, "@bookTicker"):
		return s.handleBookTicker(envelope.Data)
	case strings.Contains(envelope.Stream, "@trade"):
		return s.handleTrade(envelope.Data)
	case strings.Contains(envelope.Stream, "@kline"):
		return s.handleKline(envelope.Data)
	default:
		s.log.Debug("ignoring unknown stream", zap.String("stream", envelope.Stream))

		return nil
	}
}

func (s *BinanceSource) handleBookTicker(data json.RawMessage) error {
	var event bookTickerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataParse, "bad bookTicker event", err)
	}

	sec, err := s.lookup(event.Symbol)
	if err != nil {
		return err
	}

	level1 := security.Level1{Time: time.Now()}
	if level1.BidPrice, err = parsePrice(event.BidPrice); err != nil {
		return err
	}

	if level1.BidQty, err = parsePrice(event.BidQty); err != nil {
		return err
	}

	if level1.AskPrice, err = parsePrice(event.AskPrice); err != nil {
		return err
	}

	if level1.AskQty, err = parsePrice(event.AskQty); err != nil {
		return err
	}

	last := sec.Level1()
	level1.LastPrice = last.LastPrice
	level1.LastQty = last.LastQty

	sec.SetLevel1(level1)
	s.sink.PublishLevel1Update(sec)

	return nil
}

func (s *BinanceSource) handleTrade(data json.RawMessage) error {
	var event tradeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataParse, "bad trade event", err)
	}

	sec, err := s.lookup(event.Symbol)
	if err != nil {
		return err
	}

	price, err := parsePrice(event.Price)
	if err != nil {
		return err
	}

	qty, err := parsePrice(event.Quantity)
	if err != nil {
		return err
	}

	tradeTime := time.UnixMilli(event.TradeTime)

	level1 := sec.Level1()
	level1.LastPrice = price
	level1.LastQty = qty
	level1.Time = tradeTime
	sec.SetLevel1(level1)

	s.sink.PublishNewTrade(sec, tradeTime, price, qty)

	return nil
}

func (s *BinanceSource) handleKline(data json.RawMessage) error {
	var event klineEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataParse, "bad kline event", err)
	}

	// Only finalized bars are events; in-progress klines are noise here.
	if !event.Kline.IsFinal {
		return nil
	}

	sec, err := s.lookup(event.Symbol)
	if err != nil {
		return err
	}

	bar := types.Bar{Time: time.UnixMilli(event.Kline.StartTime)}
	if bar.Open, err = parsePrice(event.Kline.Open); err != nil {
		return err
	}

	if bar.High, err = parsePrice(event.Kline.High); err != nil {
		return err
	}

	if bar.Low, err = parsePrice(event.Kline.Low); err != nil {
		return err
	}

	if bar.Close, err = parsePrice(event.Kline.Close); err != nil {
		return err
	}

	if bar.Volume, err = parsePrice(event.Kline.Volume); err != nil {
		return err
	}

	s.sink.PublishNewBar(sec, bar)

	return nil
}

// lookup resolves a venue symbol like BTCUSDT back to the registered
// security.
func (s *BinanceSource) lookup(venueSymbol string) (*security.Security, error) {
	for _, sec := range s.securities.All() {
		if strings.EqualFold(sec.Symbol().VenueSymbol(), venueSymbol) {
			return sec, nil
		}
	}

	return nil, errors.Newf(errors.ErrCodeSecurityNotFound,
		"stream event for unregistered symbol %s", venueSymbol)
}

func parsePrice(value string) (float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeMarketDataParse, err, "bad decimal %q", value)
	}

	return parsed, nil
}
