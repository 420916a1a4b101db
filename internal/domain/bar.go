package domain

import "time"

// Bar is one OHLCV candle. Bar sequences are always ordered ascending by date.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Quote is a realtime snapshot for a symbol. ChangePct is the same-day move
// in percent (not a fraction), matching what the brokerage returns.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
}
