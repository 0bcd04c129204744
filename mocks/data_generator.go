package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
)

// DataGenerator produces synthetic bar and quote series for tests and
// benchmarks. Prices follow a geometric Brownian motion.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a generator. Use a fixed seed for reproducible
// series in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// BarSeriesConfig controls the shape of a generated bar series.
type BarSeriesConfig struct {
	// StartTime is the open time of the first bar.
	StartTime time.Time
	// Interval is the duration between bars.
	Interval time.Duration
	// Count is the number of bars to generate.
	Count int
	// InitialPrice is the open of the first bar.
	InitialPrice float64
	// Volatility controls the per-bar price movement (0.002 = 0.2%).
	Volatility float64
	// Trend is the total drift over the whole series, negative for bearish.
	Trend float64
	// VolumeBase is the average volume per bar.
	VolumeBase float64
	// VolumeVariance is the relative variance in volume (0.0 to 1.0).
	VolumeVariance float64
}

// DefaultBarSeriesConfig returns a neutral minute-bar series.
func DefaultBarSeriesConfig() BarSeriesConfig {
	return BarSeriesConfig{
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:       time.Minute,
		Count:          10_000,
		InitialPrice:   100.0,
		Volatility:     0.002,
		Trend:          0.0,
		VolumeBase:     10_000,
		VolumeVariance: 0.3,
	}
}

// Bars generates a bar series under the given configuration.
func (g *DataGenerator) Bars(config BarSeriesConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := currentPrice

		// Box-Muller transform for a normally distributed step.
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		close := open * (1 + config.Volatility*z + drift)
		if close <= 0 {
			close = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, close) + highExtension

		low := math.Min(open, close) - lowExtension
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volume := config.VolumeBase * (1 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Bar{
			Time:   currentTime,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(close, 4),
			Volume: roundToDecimals(volume, 2),
		}

		currentPrice = close
		currentTime = currentTime.Add(config.Interval)
	}

	return bars
}

// Quotes derives a top-of-book series from a bar series: one quote per bar,
// centered on the close with the given absolute spread.
func (g *DataGenerator) Quotes(bars []types.Bar, spread, depth float64) []security.Level1 {
	quotes := make([]security.Level1, len(bars))

	for i, bar := range bars {
		half := spread / 2
		quotes[i] = security.Level1{
			BidPrice:  roundToDecimals(bar.Close-half, 4),
			BidQty:    depth,
			AskPrice:  roundToDecimals(bar.Close+half, 4),
			AskQty:    depth,
			LastPrice: bar.Close,
			LastQty:   depth / 10,
			Time:      bar.Time.Add(time.Duration(float64(time.Minute) * g.rng.Float64())),
		}
	}

	return quotes
}

// TrendingBars is a convenience wrapper that generates a series with a fixed
// seed and the given total drift, for strategy tests that need a directional
// market.
func TrendingBars(count int, trend float64) []types.Bar {
	gen := NewDataGenerator(42)
	config := DefaultBarSeriesConfig()
	config.Count = count
	config.Trend = trend

	return gen.Bars(config)
}

func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
