// Package consensus implements the validator registry, weighted
// assignment, vote tallying and calibration feedback of the Consensus
// Engine (§4.3). Validator state is exclusively owned here; the
// Dispute Manager hands this engine a dispute identifier and a set of
// votes come back, never a pointer into either engine's state (§5
// Shared resources).
//
// The registry shape (Manager owning named, typed records with a
// Sample operation) follows the teacher's validators.Manager/Set; the
// assignment draw follows utils/sampler.WeightedWithoutReplacement's
// Source-seeded remove-and-renormalize draw, reimplemented here over
// float64 effective weights instead of the sampler's integer weights.
package consensus

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MeaCulpitt/Dialectic-subnet/config"
	logpkg "github.com/MeaCulpitt/Dialectic-subnet/log"
	"github.com/MeaCulpitt/Dialectic-subnet/types"
	"github.com/MeaCulpitt/Dialectic-subnet/utils/sampler"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine owns the validator registry and every in-flight assignment
// and tally. A single mutex serializes writes, mirroring the Dispute
// Manager's concurrency idiom (§5).
type Engine struct {
	mu sync.Mutex

	log    log.Logger
	source sampler.Source
	now    func() time.Time

	metrics *metrics

	validators  map[string]*types.ValidatorState
	assignments map[string][]string // dispute ID -> assigned validator identities
	ballots     map[string]map[string]types.Vote
	escalated   map[string]bool
	deadlines   map[string]time.Time // dispute ID -> adjudication/escalation deadline (§5 Timeouts)
}

// New returns an empty Consensus Engine seeded from seed. registerer
// may be nil, in which case Prometheus counters are not exported
// (tests construct engines this way); registry may be nil, in which
// case an in-process metric.Registry is created for the Averager.
func New(seed int64, registerer prometheus.Registerer, registry metric.Registry) (*Engine, error) {
	m, err := newMetrics(registerer, registry)
	if err != nil {
		return nil, err
	}
	return &Engine{
		log:         logpkg.New("consensus"),
		source:      sampler.NewSource(seed),
		now:         time.Now,
		metrics:     m,
		validators:  make(map[string]*types.ValidatorState),
		assignments: make(map[string][]string),
		ballots:     make(map[string]map[string]types.Vote),
		escalated:   make(map[string]bool),
		deadlines:   make(map[string]time.Time),
	}, nil
}

// Register enrolls a validator at a given stake against a requested
// tier (§4.3 Registry). If stake falls short of the requested tier's
// minimum, the validator is demoted to the highest tier its stake
// does permit; if stake falls short of even the scout minimum,
// registration fails. Re-registering an already-known identity
// updates its stake and re-derives its tier without resetting history.
func (e *Engine) Register(identity string, stake float64, tier types.Tier) (types.Tier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if stake < config.MinStakeForTier(tier) {
		demoted, ok := config.TierFor(stake)
		if !ok {
			return 0, types.ErrStakeBelowTier
		}
		tier = demoted
	}

	now := e.now()
	if v, exists := e.validators[identity]; exists {
		v.Stake = stake
		v.Tier = tier
		return tier, nil
	}

	e.validators[identity] = &types.ValidatorState{
		Identity:      identity,
		ID:            types.DeriveID(identity),
		Tier:          tier,
		Stake:         stake,
		Calibration:   config.CalibrationMax,
		LastActive:    now,
		TierStartedAt: now,
	}
	e.metrics.validatorsRegistered.Inc()
	e.log.Info("validator registered", "identity", identity, "tier", tier.String(), "stake", stake)
	return tier, nil
}

// EffectiveWeight computes stake × calibration × tier multiplier
// (§4.3 Effective weight).
func EffectiveWeight(v *types.ValidatorState) float64 {
	return v.Stake * v.Calibration * config.TierMultiplier(v.Tier)
}

// eligiblePool returns the identities and effective weights of every
// validator eligible to sit a panel: calibration at or above its
// tier's floor, and under its per-epoch case cap (0 = unbounded).
// arbitersOnly restricts the pool to the arbiter tier and drops the
// calibration-floor check, so every arbiter under its case cap is
// eligible (§4.3 Escalation).
func (e *Engine) eligiblePool(arbitersOnly bool) ([]string, []float64) {
	identities := make([]string, 0, len(e.validators))
	for id := range e.validators {
		identities = append(identities, id)
	}
	sort.Strings(identities) // deterministic iteration order for a given seed

	var ids []string
	var weights []float64
	for _, id := range identities {
		v := e.validators[id]
		if arbitersOnly && v.Tier != types.TierArbiter {
			continue
		}
		if !arbitersOnly && v.Calibration < config.TierCalibrationFloor(v.Tier) {
			continue
		}
		caseCap := config.TierCaseCap(v.Tier)
		if caseCap > 0 && v.CasesThisEpoch >= caseCap {
			continue
		}
		ids = append(ids, id)
		weights = append(weights, EffectiveWeight(v))
	}
	return ids, weights
}

// drawWithoutReplacement performs size draws against ids/weights,
// each time sampling a uniform value against the prefix sum of the
// remaining pool's weights, removing the chosen entry, and
// renormalizing before the next draw (§4.3 Assignment). It returns as
// many identities as the pool allows if size exceeds the pool.
func (e *Engine) drawWithoutReplacement(ids []string, weights []float64, size int) []string {
	if size > len(ids) {
		size = len(ids)
	}
	pool := append([]string{}, ids...)
	poolWeights := append([]float64{}, weights...)

	chosen := make([]string, 0, size)
	for i := 0; i < size; i++ {
		total := 0.0
		for _, w := range poolWeights {
			total += w
		}
		if total <= 0 {
			break
		}

		draw := float64(e.source.Uint64()) / float64(math.MaxUint64) * total

		cum := 0.0
		idx := len(pool) - 1
		for j, w := range poolWeights {
			cum += w
			if draw < cum {
				idx = j
				break
			}
		}

		chosen = append(chosen, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
		poolWeights = append(poolWeights[:idx], poolWeights[idx+1:]...)
	}
	return chosen
}

// AssignPanel selects size validators (config.DefaultAssignmentSize if
// size <= 0) without replacement, weighted by effective weight, and
// records the assignment for the dispute (§4.3 Assignment). Assigning
// a dispute a second time replaces its prior panel and discards any
// ballots already cast for it.
func (e *Engine) AssignPanel(disputeID string, size int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if size <= 0 {
		size = config.DefaultAssignmentSize
	}

	ids, weights := e.eligiblePool(false)
	panel := e.drawWithoutReplacement(ids, weights, size)

	e.assignments[disputeID] = panel
	e.ballots[disputeID] = make(map[string]types.Vote)
	now := e.now()
	e.deadlines[disputeID] = now.Add(config.AdjudicationWindow)
	for _, id := range panel {
		v := e.validators[id]
		v.CasesThisEpoch++
		v.LastActive = now
	}

	e.metrics.panelsAssigned.Inc()
	e.log.Info("panel assigned", "dispute", disputeID, "size", len(panel))
	return panel
}

// SubmitVote records a panel member's ballot (§4.3 Vote submission).
func (e *Engine) SubmitVote(disputeID string, vote types.Vote) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	panel, ok := e.assignments[disputeID]
	if !ok {
		return types.ErrDisputeNotFound
	}
	now := e.now()
	if deadline, ok := e.deadlines[disputeID]; ok && !now.Before(deadline) {
		return types.ErrDeadlineExceeded
	}
	if _, known := e.validators[vote.Validator]; !known {
		return types.ErrUnknownValidator
	}
	if !contains(panel, vote.Validator) {
		return types.ErrNotAssigned
	}
	ballots := e.ballots[disputeID]
	if _, already := ballots[vote.Validator]; already {
		return types.ErrAlreadyVoted
	}

	vote.Confidence = clip(vote.Confidence, 0, 1)
	vote.SubmittedAt = now
	ballots[vote.Validator] = vote
	e.validators[vote.Validator].LastActive = now
	return nil
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Tally computes the fixed-arity weighted vote distribution for a
// dispute's current ballots (§4.3 Tally). Each ballot counts its
// voter's effective weight at the time of the call times the vote's
// confidence. Normalized and WinningWeight are fractions of
// TotalWeight, per §3's data model; TotalWeight alone carries the raw
// confidence-weighted sum. With a zero total the result is an abstain
// verdict with zero weights.
func (e *Engine) Tally(disputeID string) types.ConsensusResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tallyLocked(disputeID)
}

func (e *Engine) tallyLocked(disputeID string) types.ConsensusResult {
	ballots := e.ballots[disputeID]
	var weights types.VerdictWeights
	var participants []string
	total := 0.0

	for id, vote := range ballots {
		w := EffectiveWeight(e.validators[id]) * vote.Confidence
		total += w
		participants = append(participants, id)
		switch vote.Verdict {
		case types.VerdictChallengeUpheld:
			weights.Upheld += w
		case types.VerdictChallengeRejected:
			weights.Rejected += w
		case types.VerdictPartial:
			weights.Partial += w
		default:
			weights.Abstain += w
		}
	}
	sort.Strings(participants)

	result := types.ConsensusResult{
		DisputeID:    disputeID,
		FinalVerdict: types.VerdictAbstain,
		TotalWeight:  total,
		Participants: participants,
		Escalated:    e.escalated[disputeID],
	}
	if total <= 0 {
		return result
	}

	normalized := types.VerdictWeights{
		Upheld:   weights.Upheld / total,
		Rejected: weights.Rejected / total,
		Partial:  weights.Partial / total,
		Abstain:  weights.Abstain / total,
	}
	result.Normalized = normalized

	verdict, winning := leadingVerdict(normalized)
	result.FinalVerdict = verdict
	result.WinningWeight = winning
	result.ConsensusReached = winning >= config.ConsensusThreshold
	e.metrics.winningShare.Observe(winning)
	return result
}

// leadingVerdict breaks ties in declaration order: upheld, rejected,
// partial, abstain (§9 "tagged variants" fixes this order).
func leadingVerdict(w types.VerdictWeights) (types.Verdict, float64) {
	best := types.VerdictChallengeUpheld
	bestWeight := w.Upheld
	if w.Rejected > bestWeight {
		best, bestWeight = types.VerdictChallengeRejected, w.Rejected
	}
	if w.Partial > bestWeight {
		best, bestWeight = types.VerdictPartial, w.Partial
	}
	if w.Abstain > bestWeight {
		best, bestWeight = types.VerdictAbstain, w.Abstain
	}
	return best, bestWeight
}

// Finalize tallies a dispute. If consensus was not reached, it
// escalates to an arbiter-only panel (§4.3 Escalation). Otherwise it
// applies a calibration update for every voter — correct if their
// ballot matched the final verdict, incorrect otherwise — and clears
// the dispute's in-flight assignment, ballots, deadline and escalated
// record (§4.3 Finalization, the "otherwise" branch).
func (e *Engine) Finalize(disputeID string) types.ConsensusResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := e.tallyLocked(disputeID)
	if !result.ConsensusReached {
		return e.escalateLocked(disputeID, result)
	}

	e.metrics.consensusReached.Inc()
	ballots := e.ballots[disputeID]
	for _, id := range result.Participants {
		vote := ballots[id]
		e.updateCalibrationLocked(id, vote.Verdict == result.FinalVerdict, vote.Confidence)
	}

	delete(e.assignments, disputeID)
	delete(e.ballots, disputeID)
	delete(e.deadlines, disputeID)
	delete(e.escalated, disputeID)

	return result
}

// Escalate replaces a dispute's assigned set with every arbiter whose
// case quota allows another case, extends its deadline by the
// escalation window, retains ballots already cast by arbiters
// (discarding the rest, which will be recast if needed), and reports
// Escalated so the caller knows to wait for a fresh round of votes
// (§4.3 Escalation). If no arbiters are eligible, the current result
// is returned with Escalated set regardless. Escalation occurs at
// most once per dispute; calling Escalate again after the first is a
// no-op that returns the current tally.
func (e *Engine) Escalate(disputeID string) types.ConsensusResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.escalateLocked(disputeID, e.tallyLocked(disputeID))
}

func (e *Engine) escalateLocked(disputeID string, result types.ConsensusResult) types.ConsensusResult {
	if e.escalated[disputeID] {
		return result
	}

	arbiters, _ := e.eligiblePool(true)

	priorBallots := e.ballots[disputeID]
	retained := make(map[string]types.Vote, len(priorBallots))
	for _, id := range arbiters {
		if vote, voted := priorBallots[id]; voted {
			retained[id] = vote
		}
	}

	e.assignments[disputeID] = arbiters
	e.ballots[disputeID] = retained
	e.escalated[disputeID] = true

	now := e.now()
	deadline := now.Add(config.EscalationExtension)
	if prior, ok := e.deadlines[disputeID]; ok {
		deadline = prior.Add(config.EscalationExtension)
	}
	e.deadlines[disputeID] = deadline

	for _, id := range arbiters {
		if _, alreadyVoted := retained[id]; alreadyVoted {
			continue
		}
		v := e.validators[id]
		v.CasesThisEpoch++
		v.LastActive = now
	}

	result.Escalated = true
	e.metrics.escalations.Inc()
	e.log.Info("dispute escalated to arbiter panel", "dispute", disputeID, "panel_size", len(arbiters))
	return result
}

// UpdateCalibration folds one resolved vote into a voter's bounded
// history and recomputes its calibration as a time-decayed weighted
// mean over that history (§4.3 Calibration). correct reports whether
// the voter's verdict matched the dispute's final verdict; confidence
// is the vote's own stated confidence. Alignment is derived, not
// supplied: (1 − |1 − confidence|) when the vote matched, else
// (1 − confidence). A post-update calibration below the voter's
// current tier floor demotes it one tier (arbiter -> auditor ->
// scout) and resets its tier-start timestamp.
func (e *Engine) UpdateCalibration(identity string, correct bool, confidence float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateCalibrationLocked(identity, correct, confidence)
}

func (e *Engine) updateCalibrationLocked(identity string, correct bool, confidence float64) {
	v, ok := e.validators[identity]
	if !ok {
		return
	}
	now := e.now()

	var alignment float64
	if correct {
		alignment = 1 - math.Abs(1-confidence)
	} else {
		alignment = 1 - confidence
	}

	v.TotalVerdicts++
	if correct {
		v.CorrectVerdicts++
	}
	v.History = append(v.History, types.VoteOutcome{At: now, Correct: correct, Confidence: confidence, Alignment: alignment})
	if len(v.History) > config.MaxHistoryLen {
		v.History = v.History[len(v.History)-config.MaxHistoryLen:]
	}

	var num, den float64
	for _, h := range v.History {
		ageDays := now.Sub(h.At).Hours() / 24
		w := decayWeight(ageDays)
		contribution := h.Alignment
		if !h.Correct {
			contribution *= 0.5
		}
		num += contribution * w
		den += w
	}
	if den > 0 {
		v.Calibration = clip(num/den, config.CalibrationMin, config.CalibrationMax)
	}

	if v.Calibration < config.TierCalibrationFloor(v.Tier) {
		demoteTier(v)
		v.TierStartedAt = now
	}
}

// demoteTier drops a validator one rung (arbiter -> auditor -> scout)
// after a calibration floor breach (§4.3 Calibration). Scouts have no
// further demotion target.
func demoteTier(v *types.ValidatorState) {
	switch v.Tier {
	case types.TierArbiter:
		v.Tier = types.TierAuditor
	case types.TierAuditor:
		v.Tier = types.TierScout
	}
}

// decayWeight returns an exponential time-decay factor for an event
// age in days against the calibration decay window (§4.3
// Calibration).
func decayWeight(ageDays float64) float64 {
	return math.Exp(-ageDays / config.CalibrationDecayWindowDays)
}

// RunDecaySweep applies the inactivity step-down for every validator
// last-active beyond the inactivity threshold and resets all
// per-epoch case counters (§4.3 Decay sweep). It is idempotent within
// a single invocation and independent of UpdateCalibration's
// history-weighted recompute, which runs per resolved vote instead.
func (e *Engine) RunDecaySweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, v := range e.validators {
		if now.Sub(v.LastActive) >= config.InactivityThreshold {
			periods := int(now.Sub(v.LastActive) / config.InactivityDecayPeriod)
			if periods > 0 {
				v.Calibration = clip(v.Calibration-float64(periods)*config.InactivityDecayStep, config.DecaySweepFloor, config.CalibrationMax)
			}
		}
		v.CasesThisEpoch = 0
	}
}

// NewEpoch resets every validator's per-epoch case counter (§4.3
// "per-epoch case caps").
func (e *Engine) NewEpoch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.validators {
		v.CasesThisEpoch = 0
	}
}

// MaybePromote checks a validator against its tier's promotion
// thresholds and advances it one tier if every threshold is met
// (§4.3 Promotion). It never demotes; demotion happens in
// UpdateCalibration when a validator's calibration falls below its
// tier floor.
func (e *Engine) MaybePromote(identity string) (types.Tier, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.validators[identity]
	if !ok {
		return 0, false
	}
	now := e.now()

	switch v.Tier {
	case types.TierScout:
		age := now.Sub(v.TierStartedAt)
		if age.Hours()/24 >= config.ScoutToAuditorMinDays &&
			v.Calibration >= config.ScoutToAuditorMinCalibration &&
			v.TotalVerdicts >= config.ScoutToAuditorMinVerdicts &&
			v.Stake >= config.ScoutToAuditorMinStake {
			v.Tier = types.TierAuditor
			v.TierStartedAt = now
			return v.Tier, true
		}
	case types.TierAuditor:
		age := now.Sub(v.TierStartedAt)
		slashFree := len(v.SlashEvents) == 0 || now.Sub(v.SlashEvents[len(v.SlashEvents)-1]) >= config.AuditorToArbiterSlashFreeWindow
		if age.Hours()/24 >= config.AuditorToArbiterMinDays &&
			v.Calibration >= config.AuditorToArbiterMinCalibration &&
			v.TotalVerdicts >= config.AuditorToArbiterMinVerdicts &&
			v.Stake >= config.AuditorToArbiterMinStake &&
			slashFree {
			v.Tier = types.TierArbiter
			v.TierStartedAt = now
			return v.Tier, true
		}
	}
	return v.Tier, false
}

// Stats returns a copy of a validator's current state.
func (e *Engine) Stats(identity string) (types.ValidatorState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.validators[identity]
	if !ok {
		return types.ValidatorState{}, false
	}
	return *v, true
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
