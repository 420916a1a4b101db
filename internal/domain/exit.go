package domain

type ExitDecision string

const (
	ExitHold       ExitDecision = "hold"
	ExitStopLoss   ExitDecision = "stop_loss"
	ExitTakeProfit ExitDecision = "take_profit"
)

// ExitVote is one strategy's verdict for a position.
type ExitVote struct {
	Strategy   string       `json:"strategy"`
	Decision   ExitDecision `json:"decision"`
	Reason     string       `json:"reason"`
	Confidence float64      `json:"confidence"`
}

// ExitResult combines the three strategy votes into a final decision. Votes
// keeps the full trail for audit and reporting.
type ExitResult struct {
	Symbol      string             `json:"symbol"`
	Decision    ExitDecision       `json:"decision"`
	Votes       []ExitVote         `json:"votes"`
	VoteSummary string             `json:"vote_summary"`
	Details     map[string]float64 `json:"details"`
}

func (r ExitResult) ShouldExit() bool {
	return r.Decision == ExitStopLoss || r.Decision == ExitTakeProfit
}
