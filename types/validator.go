package types

import "time"

// Tier is a validator's class, gating case capacity, effective weight
// and eligibility for escalated panels (§4.3).
type Tier int

const (
	TierScout Tier = iota
	TierAuditor
	TierArbiter
)

// String renders the tier the way logs and the CLI display it.
func (t Tier) String() string {
	switch t {
	case TierScout:
		return "scout"
	case TierAuditor:
		return "auditor"
	case TierArbiter:
		return "arbiter"
	default:
		return "unknown"
	}
}

// VoteOutcome is one entry in a validator's bounded calibration
// history: what it voted, how it compared to the final verdict, and
// how confident it was.
type VoteOutcome struct {
	At         time.Time
	Correct    bool
	Confidence float64
	Alignment  float64
}

// ValidatorState is the Consensus Engine's exclusively-owned record of
// a registered validator (§3).
type ValidatorState struct {
	Identity        string
	ID              ID
	Tier            Tier
	Stake           float64
	Calibration     float64
	TotalVerdicts   int
	CorrectVerdicts int
	CasesThisEpoch  int
	LastActive      time.Time
	TierStartedAt   time.Time
	SlashEvents     []time.Time
	History         []VoteOutcome
}

// Vote is a single validator's ballot on a dispute.
type Vote struct {
	Validator   string
	Verdict     Verdict
	Confidence  float64
	Reasoning   string
	SubmittedAt time.Time
}

// VerdictWeights is the fixed-arity per-verdict tally the spec calls
// for in place of a dynamic map (§9 "Dynamic vote maps → tagged
// variants"). Index order also fixes the tie-break declaration order:
// upheld ≻ rejected ≻ partial ≻ abstain.
type VerdictWeights struct {
	Upheld   float64
	Rejected float64
	Partial  float64
	Abstain  float64
}

// ConsensusResult is the outcome of tallying (and, if needed,
// escalating) a dispute's votes.
type ConsensusResult struct {
	DisputeID      string
	FinalVerdict   Verdict
	WinningWeight  float64
	TotalWeight    float64
	Normalized     VerdictWeights
	Participants   []string
	Escalated      bool
	ConsensusReached bool
}
