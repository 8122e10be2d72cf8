// Package config holds the numeric constants that make up the core's
// public contract (§6): attack multipliers, slash rates, tier
// thresholds and the absolute-duration windows the Dispute Manager and
// Consensus Engine measure deadlines against. Changing any of these is
// a protocol change, not a tuning knob, which is why they are exported
// constants rather than a loaded config file — grounded on the
// teacher's public config.Parameters convention (luxfi-consensus
// cmd/consensus imports github.com/luxfi/consensus/config).
package config

import (
	"time"

	"github.com/MeaCulpitt/Dialectic-subnet/types"
)

// Challenge, defense and adjudication windows (§5 Timeouts).
const (
	ChallengeWindow    = 6 * time.Hour
	DefenseWindow      = 2 * time.Hour
	AdjudicationWindow = 4 * time.Hour
	EscalationExtension = 6 * time.Hour
)

// MinChallengeStakeFraction is the minimum challenge stake as a
// fraction of the proposer's stake (§4.2 "stake-too-low").
const MinChallengeStakeFraction = 0.10

// Slash rates (§4.2).
const (
	ProposerSlashRate   = 0.30
	ChallengerSlashRate = 0.50
)

// RejectedProposerRecoveryRate is the share of the challenger's slash
// the proposer recovers on a rejected challenge; the remaining share
// is routed externally (30% to validators, 10% burned — an external
// policy the core does not implement, spec §9 open question).
const RejectedProposerRecoveryRate = 0.60

// NoDefenseProposerSlashCap caps the proposer's auto-resolve slash at
// 45% of stake (§4.2 no-defense row: "min(P, P·0.45)").
const NoDefenseProposerSlashCap = 0.45

// PartialChallengerClawback is the 20% of challenger stake clawed back
// on a partial verdict (§4.2 partial row: "− 0.20·C").
const PartialChallengerClawback = 0.20

// AttackMultiplier returns the payout coefficient for an attack kind.
// Exported as a function rather than a map so callers cannot mutate
// the table at runtime.
func AttackMultiplier(kind types.AttackKind) float64 {
	switch kind {
	case types.AttackFactualError:
		return 2.0
	case types.AttackLogicalFallacy:
		return 2.5
	case types.AttackMissingContext:
		return 1.5
	case types.AttackContradiction:
		return 3.0
	case types.AttackOutdated:
		return 1.5
	default:
		return 1.0
	}
}

// Tier minimum stakes, weight multipliers, per-epoch case caps and
// calibration floors (§4.3 Registry / Effective weight).
const (
	ScoutMinStake   = 100.0
	AuditorMinStake = 500.0
	ArbiterMinStake = 2000.0

	ScoutTierMultiplier   = 1.0
	AuditorTierMultiplier = 2.0
	ArbiterTierMultiplier = 5.0

	ScoutCaseCap   = 10
	AuditorCaseCap = 50
	ArbiterCaseCap = 0 // 0 means unbounded

	ScoutCalibrationFloor   = 0.5
	AuditorCalibrationFloor = 0.7
	ArbiterCalibrationFloor = 0.85
)

// CalibrationMin and CalibrationMax bound every validator's
// calibration score (§3 Validator State).
const (
	CalibrationMin = 0.3
	CalibrationMax = 1.5
)

// DefaultAssignmentSize is the default k in "select k validators" (§4.3
// Assignment).
const DefaultAssignmentSize = 5

// ConsensusThreshold is the normalized winning share at/above which a
// tally is consensus-reached (§4.3 Tally).
const ConsensusThreshold = 0.6

// CalibrationDecayWindowDays is the time constant of the history
// weighting in calibration updates (§4.3 Calibration); the inactivity
// constants govern the decay sweep (§4.3 Decay sweep).
const (
	CalibrationDecayWindowDays = 30.0
	InactivityThreshold        = 7 * 24 * time.Hour
	InactivityDecayStep        = 0.02
	InactivityDecayPeriod      = 7 * 24 * time.Hour
	DecaySweepFloor            = 0.5
)

// MaxHistoryLen bounds a validator's retained vote-outcome history
// (§3 Validator State, "bounded history of recent verdict outcomes").
const MaxHistoryLen = 200

// Promotion thresholds (§4.3 Promotion).
const (
	ScoutToAuditorMinDays      = 30
	ScoutToAuditorMinCalibration = 0.7
	ScoutToAuditorMinVerdicts  = 50
	ScoutToAuditorMinStake     = 500.0

	AuditorToArbiterMinDays      = 90
	AuditorToArbiterMinCalibration = 0.85
	AuditorToArbiterMinVerdicts  = 200
	AuditorToArbiterMinStake     = 2000.0
	AuditorToArbiterSlashFreeWindow = 60 * 24 * time.Hour
)

// TierFor returns the highest tier whose minimum stake does not
// exceed the given stake, and ok=false if stake is below even the
// scout minimum.
func TierFor(stake float64) (tier types.Tier, ok bool) {
	switch {
	case stake >= ArbiterMinStake:
		return types.TierArbiter, true
	case stake >= AuditorMinStake:
		return types.TierAuditor, true
	case stake >= ScoutMinStake:
		return types.TierScout, true
	default:
		return types.TierScout, false
	}
}

// MinStakeForTier returns the minimum stake a requested tier demands
// at registration (§4.3 Registry).
func MinStakeForTier(tier types.Tier) float64 {
	switch tier {
	case types.TierArbiter:
		return ArbiterMinStake
	case types.TierAuditor:
		return AuditorMinStake
	default:
		return ScoutMinStake
	}
}

// TierMultiplier returns the effective-weight multiplier for a tier.
func TierMultiplier(tier types.Tier) float64 {
	switch tier {
	case types.TierArbiter:
		return ArbiterTierMultiplier
	case types.TierAuditor:
		return AuditorTierMultiplier
	default:
		return ScoutTierMultiplier
	}
}

// TierCaseCap returns the per-epoch case cap for a tier; 0 means
// unbounded.
func TierCaseCap(tier types.Tier) int {
	switch tier {
	case types.TierArbiter:
		return ArbiterCaseCap
	case types.TierAuditor:
		return AuditorCaseCap
	default:
		return ScoutCaseCap
	}
}

// TierCalibrationFloor returns the minimum calibration a tier may hold
// before demotion.
func TierCalibrationFloor(tier types.Tier) float64 {
	switch tier {
	case types.TierArbiter:
		return ArbiterCalibrationFloor
	case types.TierAuditor:
		return AuditorCalibrationFloor
	default:
		return ScoutCalibrationFloor
	}
}
