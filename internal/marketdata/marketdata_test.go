package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

type recordingSink struct {
	mu            sync.Mutex
	level1Updates []*security.Security
	bars          []types.Bar
	barSecurities []*security.Security
	trades        []float64
}

func (r *recordingSink) PublishLevel1Update(sec *security.Security) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.level1Updates = append(r.level1Updates, sec)
}

func (r *recordingSink) PublishNewBar(sec *security.Security, bar types.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.barSecurities = append(r.barSecurities, sec)
	r.bars = append(r.bars, bar)
}

func (r *recordingSink) PublishNewTrade(sec *security.Security, tradeTime time.Time, price, qty float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trades = append(r.trades, price)
}

func (r *recordingSink) level1Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.level1Updates)
}

type BinanceSourceTestSuite struct {
	suite.Suite

	sink   *recordingSink
	source *BinanceSource
	sec    *security.Security
}

func (suite *BinanceSourceTestSuite) SetupTest() {
	suite.sink = &recordingSink{}
	suite.source = NewBinanceSource(BinanceSourceConfig{}, suite.sink, logger.NewNopLogger())

	sec, err := suite.source.CreateNewSecurityObject(types.Symbol{Base: "BTC", Quote: "USDT"})
	suite.Require().NoError(err)
	suite.sec = sec
}

func (suite *BinanceSourceTestSuite) TestBookTickerUpdatesLevel1() {
	message := []byte(`{"stream":"btcusdt@bookTicker","data":` +
		`{"s":"BTCUSDT","b":"50000.10","B":"1.5","a":"50000.20","A":"2.5"}}`)

	suite.Require().NoError(suite.source.handleMessage(message))

	level1 := suite.sec.Level1()
	suite.Equal(50000.10, level1.BidPrice)
	suite.Equal(1.5, level1.BidQty)
	suite.Equal(50000.20, level1.AskPrice)
	suite.Equal(2.5, level1.AskQty)
	suite.Len(suite.sink.level1Updates, 1)
	suite.Same(suite.sec, suite.sink.level1Updates[0])
}

func (suite *BinanceSourceTestSuite) TestBookTickerKeepsLastTrade() {
	trade := []byte(`{"stream":"btcusdt@trade","data":` +
		`{"s":"BTCUSDT","p":"49999.00","q":"0.25","T":1700000000000}}`)
	suite.Require().NoError(suite.source.handleMessage(trade))

	book := []byte(`{"stream":"btcusdt@bookTicker","data":` +
		`{"s":"BTCUSDT","b":"50000.10","B":"1.5","a":"50000.20","A":"2.5"}}`)
	suite.Require().NoError(suite.source.handleMessage(book))

	level1 := suite.sec.Level1()
	suite.Equal(49999.00, level1.LastPrice)
	suite.Equal(0.25, level1.LastQty)
}

func (suite *BinanceSourceTestSuite) TestTradePublishesAndUpdatesLast() {
	message := []byte(`{"stream":"btcusdt@trade","data":` +
		`{"s":"BTCUSDT","p":"49999.00","q":"0.25","T":1700000000000}}`)

	suite.Require().NoError(suite.source.handleMessage(message))

	suite.Equal([]float64{49999.00}, suite.sink.trades)
	suite.Equal(49999.00, suite.sec.LastPrice())
	suite.Equal(time.UnixMilli(1700000000000), suite.sec.Level1().Time)
}

func (suite *BinanceSourceTestSuite) TestFinalKlinePublishesBar() {
	message := []byte(`{"stream":"btcusdt@kline_1m","data":{"s":"BTCUSDT",` +
		`"k":{"t":1700000000000,"o":"100","c":"105","h":"106","l":"99","v":"12.5","x":true}}}`)

	suite.Require().NoError(suite.source.handleMessage(message))

	suite.Require().Len(suite.sink.bars, 1)
	bar := suite.sink.bars[0]
	suite.Equal(100.0, bar.Open)
	suite.Equal(106.0, bar.High)
	suite.Equal(99.0, bar.Low)
	suite.Equal(105.0, bar.Close)
	suite.Equal(12.5, bar.Volume)
	suite.Equal(time.UnixMilli(1700000000000), bar.Time)
	suite.Same(suite.sec, suite.sink.barSecurities[0])
}

func (suite *BinanceSourceTestSuite) TestUnfinishedKlineIsIgnored() {
	message := []byte(`{"stream":"btcusdt@kline_1m","data":{"s":"BTCUSDT",` +
		`"k":{"t":1700000000000,"o":"100","c":"105","h":"106","l":"99","v":"12.5","x":false}}}`)

	suite.Require().NoError(suite.source.handleMessage(message))
	suite.Empty(suite.sink.bars)
}

func (suite *BinanceSourceTestSuite) TestUnknownSymbolIsRejected() {
	message := []byte(`{"stream":"ethusdt@trade","data":` +
		`{"s":"ETHUSDT","p":"3000","q":"1","T":1700000000000}}`)

	err := suite.source.handleMessage(message)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSecurityNotFound))
}

func (suite *BinanceSourceTestSuite) TestMalformedEnvelopeIsRejected() {
	err := suite.source.handleMessage([]byte(`{not json`))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataParse))
}

func (suite *BinanceSourceTestSuite) TestUnknownStreamIsIgnored() {
	message := []byte(`{"stream":"btcusdt@depth","data":{}}`)
	suite.NoError(suite.source.handleMessage(message))
}

func (suite *BinanceSourceTestSuite) TestDuplicateSecurityRejected() {
	_, err := suite.source.CreateNewSecurityObject(types.Symbol{Base: "BTC", Quote: "USDT"})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSecurityExists))
}

func (suite *BinanceSourceTestSuite) TestSubscribeWithoutSecurities() {
	empty := NewBinanceSource(BinanceSourceConfig{}, suite.sink, logger.NewNopLogger())

	err := empty.SubscribeToSecurities(context.Background())
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataMissing))
}

func TestBinanceSourceTestSuite(t *testing.T) {
	suite.Run(t, new(BinanceSourceTestSuite))
}

// streamServer is a minimal websocket endpoint that pushes canned messages to
// every client that connects.
type streamServer struct {
	upgrader websocket.Upgrader
	messages []string

	mu       sync.Mutex
	connects int
}

func (s *streamServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.connects++
	s.mu.Unlock()

	for _, message := range s.messages {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
			return
		}
	}

	// Keep the connection open until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type StreamClientTestSuite struct {
	suite.Suite
}

func (suite *StreamClientTestSuite) TestDeliversMessagesAndTracksState() {
	server := &streamServer{messages: []string{`{"stream":"one"}`, `{"stream":"two"}`}}
	ts := httptest.NewServer(http.HandlerFunc(server.handler))
	defer ts.Close()

	var (
		mu       sync.Mutex
		received []string
		states   []bool
	)

	done := make(chan struct{})
	client := NewStreamClient(
		StreamConfig{URL: "ws" + strings.TrimPrefix(ts.URL, "http")},
		func(message []byte) error {
			mu.Lock()
			defer mu.Unlock()

			received = append(received, string(message))
			if len(received) == 2 {
				close(done)
			}

			return nil
		},
		func(connected bool) {
			mu.Lock()
			defer mu.Unlock()

			states = append(states, connected)
		},
		logger.NewNopLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		suite.FailNow("timed out waiting for stream messages")
	}

	cancel()
	select {
	case err := <-runDone:
		suite.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		suite.FailNow("timed out waiting for client shutdown")
	}

	mu.Lock()
	defer mu.Unlock()
	suite.Equal([]string{`{"stream":"one"}`, `{"stream":"two"}`}, received)
	suite.Require().NotEmpty(states)
	suite.True(states[0])
	suite.False(states[len(states)-1])
}

func (suite *StreamClientTestSuite) TestHandlerErrorDoesNotDropConnection() {
	server := &streamServer{messages: []string{`bad`, `good`}}
	ts := httptest.NewServer(http.HandlerFunc(server.handler))
	defer ts.Close()

	var (
		mu       sync.Mutex
		received []string
	)

	done := make(chan struct{})
	client := NewStreamClient(
		StreamConfig{URL: "ws" + strings.TrimPrefix(ts.URL, "http")},
		func(message []byte) error {
			mu.Lock()
			defer mu.Unlock()

			received = append(received, string(message))
			if len(received) == 2 {
				close(done)
			}

			if string(message) == "bad" {
				return errors.New(errors.ErrCodeMarketDataParse, "bad message")
			}

			return nil
		},
		nil,
		logger.NewNopLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		suite.FailNow("timed out waiting for stream messages")
	}

	mu.Lock()
	defer mu.Unlock()
	suite.Equal([]string{"bad", "good"}, received)

	server.mu.Lock()
	defer server.mu.Unlock()
	suite.Equal(1, server.connects)
}

func TestStreamClientTestSuite(t *testing.T) {
	suite.Run(t, new(StreamClientTestSuite))
}
