package mocks

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type DataGeneratorTestSuite struct {
	suite.Suite
}

func (suite *DataGeneratorTestSuite) TestBarsShape() {
	gen := NewDataGenerator(42)
	config := DefaultBarSeriesConfig()
	config.Count = 100

	bars := gen.Bars(config)
	suite.Require().Len(bars, 100)

	for i, bar := range bars {
		suite.Positive(bar.Open, "bar %d", i)
		suite.Positive(bar.Low, "bar %d", i)
		suite.GreaterOrEqual(bar.High, bar.Low, "bar %d", i)
		suite.GreaterOrEqual(bar.Volume, 0.0, "bar %d", i)

		if i > 0 {
			suite.Equal(config.Interval, bar.Time.Sub(bars[i-1].Time), "bar %d", i)
		}
	}
}

func (suite *DataGeneratorTestSuite) TestSameSeedSameSeries() {
	config := DefaultBarSeriesConfig()
	config.Count = 50

	first := NewDataGenerator(7).Bars(config)
	second := NewDataGenerator(7).Bars(config)

	suite.Equal(first, second)
}

func (suite *DataGeneratorTestSuite) TestQuotesStraddleTheClose() {
	gen := NewDataGenerator(42)
	config := DefaultBarSeriesConfig()
	config.Count = 20

	bars := gen.Bars(config)
	quotes := gen.Quotes(bars, 0.02, 100)

	suite.Require().Len(quotes, len(bars))

	for i, quote := range quotes {
		suite.Less(quote.BidPrice, quote.AskPrice, "quote %d", i)
		suite.InDelta(bars[i].Close, (quote.BidPrice+quote.AskPrice)/2, 0.001, "quote %d", i)
		suite.InDelta(100, quote.BidQty, 1e-9)
	}
}

func (suite *DataGeneratorTestSuite) TestTrendingBarsDrift() {
	up := TrendingBars(500, 0.5)
	down := TrendingBars(500, -0.5)

	suite.Greater(up[len(up)-1].Close/up[0].Open, down[len(down)-1].Close/down[0].Open)
}

func TestDataGeneratorTestSuite(t *testing.T) {
	suite.Run(t, new(DataGeneratorTestSuite))
}
