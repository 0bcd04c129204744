package types

import "time"

// Bar is one aggregated trade bar (candlestick).
type Bar struct {
	Time   time.Time `yaml:"time" json:"time"`
	Open   float64   `yaml:"open" json:"open"`
	High   float64   `yaml:"high" json:"high"`
	Low    float64   `yaml:"low" json:"low"`
	Close  float64   `yaml:"close" json:"close"`
	Volume float64   `yaml:"volume" json:"volume"`
}

// Level1Field identifies which top-of-book value a tick carries.
type Level1Field string

const (
	Level1FieldBid  Level1Field = "bid"
	Level1FieldAsk  Level1Field = "ask"
	Level1FieldLast Level1Field = "last"
)

// Level1Tick is a single top-of-book value change.
type Level1Tick struct {
	Field Level1Field
	Price float64
	Qty   float64
	Time  time.Time
}

// PriceLevel is one price point of an order book side.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// BookUpdate is a full or incremental order book update.
type BookUpdate struct {
	Bids []PriceLevel
	Asks []PriceLevel
	Time time.Time
}
