package models

// Classification labels a tracked entry from its own lifecycle fields.
type Classification string

const (
	ClassDefensiveBuy  Classification = "DEFENSIVE_BUY"
	ClassDefensiveSell Classification = "DEFENSIVE_SELL"
	ClassSweepBuy      Classification = "SWEEP_BUY"
	ClassSweepSell     Classification = "SWEEP_SELL"
	ClassSpoof         Classification = "SPOOF"
	ClassUnknown       Classification = "UNKNOWN"
)

// Verdict is the instrument-level intent read from aggregated entries
// plus flow metrics.
type Verdict string

const (
	VerdictAccumulateMarkup     Verdict = "ACCUMULATE_MARKUP"
	VerdictDistributionMarkdown Verdict = "DISTRIBUTION_MARKDOWN"
	VerdictManipulation         Verdict = "MANIPULATION"
	VerdictNeutral              Verdict = "NEUTRAL"
	VerdictUnknown              Verdict = "UNKNOWN"
)

// TrapType is the trap-detector verdict.
type TrapType string

const (
	TrapBull TrapType = "BULL_TRAP"
	TrapBear TrapType = "BEAR_TRAP"
	TrapNone TrapType = "NONE"
)
