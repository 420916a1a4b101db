package domain

import "context"

type SignalAction string

const (
	SignalBuy  SignalAction = "buy"
	SignalSell SignalAction = "sell"
	SignalHold SignalAction = "hold"
)

// Signal is the output contract of an entry strategy. The engine itself is
// strategy-agnostic; it only consumes signals produced elsewhere.
type Signal struct {
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
}

// SignalProducer is implemented by entry strategies (moving averages,
// momentum, multi-factor ranking). They live outside this module.
type SignalProducer interface {
	Name() string
	Analyze(ctx context.Context, symbol string, bars []Bar) (Signal, error)
}
