package types

import "time"

// AttackKind is the category of defect a challenger asserts against a
// target node. It determines the payout multiplier (config.AttackMultiplier).
type AttackKind string

const (
	AttackFactualError    AttackKind = "factual_error"
	AttackLogicalFallacy  AttackKind = "logical_fallacy"
	AttackMissingContext  AttackKind = "missing_context"
	AttackContradiction   AttackKind = "contradiction"
	AttackOutdated        AttackKind = "outdated"
)

// DisputeStatus is the dispute's position in the §4.2 state machine.
type DisputeStatus string

const (
	StatusPendingDefense       DisputeStatus = "pending_defense"
	StatusPendingAdjudication  DisputeStatus = "pending_adjudication"
	StatusResolved             DisputeStatus = "resolved"
	// StatusExpired is reserved for disputes discarded without
	// resolution (e.g. an escalation with no arbiters and no quorum).
	// No transition in this implementation produces it yet (spec §9,
	// open question OQ-2).
	StatusExpired DisputeStatus = "expired"
)

// Verdict is a validator's (or the auto-resolve path's) judgment on a
// dispute.
type Verdict string

const (
	VerdictChallengeUpheld   Verdict = "challenge_upheld"
	VerdictChallengeRejected Verdict = "challenge_rejected"
	VerdictPartial           Verdict = "partial"
	VerdictAbstain           Verdict = "abstain"
)

// ChallengeSubmission is a challenger's incoming attack on a node of an
// accepted reasoning tree, prior to being opened as a Dispute.
type ChallengeSubmission struct {
	TaskID          string
	TargetNodeID    string
	Proposer        string
	ProposerStake   float64
	Challenger      string
	ChallengerStake float64
	Attack          AttackKind
	Argument        string
	Evidence        *Evidence
	SubmittedAt     time.Time
}

// Defense is a proposer's optional rebuttal to a challenge, recorded
// before the defense deadline.
type Defense struct {
	Kind        string
	Argument    string
	Evidence    *Evidence
	SubmittedAt time.Time
}

// Resolution carries the monetary and reputational outcome of a
// resolved dispute (§4.2). Fields become immutable once set on the
// Dispute.
type Resolution struct {
	Verdict            Verdict
	Confidence         float64
	ChallengerPayout   float64
	ProposerPayout     float64
	ProposerRepDelta   float64
	ChallengerRepDelta float64
	AutoResolved       bool
	ResolvedAt         time.Time
}

// Dispute is the Dispute Manager's exclusively-owned record of a
// challenge from opening through resolution.
type Dispute struct {
	ID               string
	TaskID           string
	TargetNodeID     string
	Proposer         string
	ProposerStake    float64
	Challenger       string
	ChallengerStake  float64
	Attack           AttackKind
	Argument         string
	Evidence         *Evidence
	Defense          *Defense
	Status           DisputeStatus
	DefenseDeadline  time.Time
	Resolution       *Resolution
	CreatedAt        time.Time
	ResolvedAt       time.Time
}

// Active reports whether the dispute is still in flight (neither
// resolved nor expired) — the §3 "at most one active dispute per
// (task, target-node)" invariant is checked against this.
func (d *Dispute) Active() bool {
	return d.Status == StatusPendingDefense || d.Status == StatusPendingAdjudication
}
