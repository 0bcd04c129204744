package types

type PositionType string

type OrderSide string

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// IsLong reports whether the position type is long.
func (p PositionType) IsLong() bool {
	return p == PositionTypeLong
}

// Invert returns the opposite position type. Used when a completed position
// spawns an inverted follow-up position.
func (p PositionType) Invert() PositionType {
	if p == PositionTypeLong {
		return PositionTypeShort
	}

	return PositionTypeLong
}

// OpenOrderSide returns the venue order side that opens a position of this type.
func (p PositionType) OpenOrderSide() OrderSide {
	if p == PositionTypeLong {
		return OrderSideBuy
	}

	return OrderSideSell
}

// CloseOrderSide returns the venue order side that closes a position of this type.
func (p PositionType) CloseOrderSide() OrderSide {
	return p.OpenOrderSide().Invert()
}

// Invert returns the opposite order side.
func (s OrderSide) Invert() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}

	return OrderSideBuy
}
