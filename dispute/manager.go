// Package dispute implements the Dispute Manager (§4.2): it validates
// challenges against an accepted reasoning tree, opens and tracks
// disputes through their state machine, and computes the stake and
// reputation deltas a resolution produces.
//
// The Manager is the exclusive owner of every Dispute it creates — no
// other package ever holds a pointer into its state, only the
// identifier (§5 Shared resources). A single mutex serializes writes,
// mirroring the teacher's ai.SimpleAgent (sync.RWMutex guarding a
// *State) rather than a channel/actor: there are no suspension points
// inside the core (§5), so a plain lock is both simpler and correct.
package dispute

import (
	"fmt"
	"sync"
	"time"

	"github.com/MeaCulpitt/Dialectic-subnet/config"
	logpkg "github.com/MeaCulpitt/Dialectic-subnet/log"
	"github.com/MeaCulpitt/Dialectic-subnet/types"
	"github.com/luxfi/log"
)

type taskTarget struct {
	taskID string
	nodeID string
}

// Manager owns every Dispute from opening through resolution.
type Manager struct {
	mu sync.Mutex

	log log.Logger
	now func() time.Time

	disputes map[string]*types.Dispute
	byTask   map[string][]string   // taskID -> dispute IDs, insertion order
	active   map[taskTarget]string // (task, target node) -> active dispute ID
	counters map[string]int        // taskID -> next dispute sequence number
}

// New returns an empty Dispute Manager.
func New() *Manager {
	return &Manager{
		log:      logpkg.New("dispute"),
		now:      time.Now,
		disputes: make(map[string]*types.Dispute),
		byTask:   make(map[string][]string),
		active:   make(map[taskTarget]string),
		counters: make(map[string]int),
	}
}

// ValidateChallenge checks a challenge submission against the
// accepted tree without mutating any state (§4.2 Validate challenge).
func (m *Manager) ValidateChallenge(sub types.ChallengeSubmission, tree *types.ReasoningTree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateLocked(sub, tree)
}

func (m *Manager) validateLocked(sub types.ChallengeSubmission, tree *types.ReasoningTree) error {
	if !tree.Has(sub.TargetNodeID) {
		return types.ErrNodeNotFound
	}
	if sub.ChallengerStake < config.MinChallengeStakeFraction*sub.ProposerStake {
		return types.ErrStakeBelowMinimum
	}
	deadline := tree.SubmittedAt.Add(config.ChallengeWindow)
	if !m.now().Before(deadline) {
		return types.ErrWindowClosed
	}
	key := taskTarget{taskID: sub.TaskID, nodeID: sub.TargetNodeID}
	if existing, ok := m.active[key]; ok {
		if d := m.disputes[existing]; d != nil && d.Active() {
			return types.ErrDuplicateActiveChallenge
		}
	}
	return nil
}

// OpenDispute validates the challenge and, if accepted, allocates a
// fresh task-scoped dispute identifier and stores the dispute in
// pending-defense with a defense deadline of now + 2h (§4.2 Open
// dispute).
func (m *Manager) OpenDispute(sub types.ChallengeSubmission, tree *types.ReasoningTree) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateLocked(sub, tree); err != nil {
		return "", err
	}

	now := m.now()
	seq := m.counters[sub.TaskID] + 1
	m.counters[sub.TaskID] = seq
	id := fmt.Sprintf("%s-%d", sub.TaskID, seq)

	d := &types.Dispute{
		ID:              id,
		TaskID:          sub.TaskID,
		TargetNodeID:    sub.TargetNodeID,
		Proposer:        sub.Proposer,
		ProposerStake:   sub.ProposerStake,
		Challenger:      sub.Challenger,
		ChallengerStake: sub.ChallengerStake,
		Attack:          sub.Attack,
		Argument:        sub.Argument,
		Evidence:        sub.Evidence,
		Status:          types.StatusPendingDefense,
		DefenseDeadline: now.Add(config.DefenseWindow),
		CreatedAt:       now,
	}

	m.disputes[id] = d
	m.byTask[sub.TaskID] = append(m.byTask[sub.TaskID], id)
	m.active[taskTarget{taskID: sub.TaskID, nodeID: sub.TargetNodeID}] = id

	m.log.Info("dispute opened", "id", id, "task", sub.TaskID, "target", sub.TargetNodeID, "attack", string(sub.Attack))
	return id, nil
}

// SubmitDefense records a proposer's defense, permitted only while the
// dispute is pending-defense and the deadline has not passed (§4.2
// Record defense).
func (m *Manager) SubmitDefense(disputeID string, defense types.Defense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[disputeID]
	if !ok {
		return types.ErrDisputeNotFound
	}
	if d.Status != types.StatusPendingDefense {
		return types.ErrInvalidState
	}
	now := m.now()
	if !now.Before(d.DefenseDeadline) {
		return types.ErrDeadlineExceeded
	}

	defense.SubmittedAt = now
	d.Defense = &defense
	d.Status = types.StatusPendingAdjudication

	m.log.Info("defense recorded", "id", disputeID)
	return nil
}

// SweepExpiredDefenses auto-resolves every pending-defense dispute
// whose deadline has passed in favor of the challenger (§4.2 Expire
// defenses, no-defense row of §4.2 Resolve dispute) and returns their
// identifiers. Idempotent: a dispute resolved by one sweep is no
// longer pending-defense, so a second call in the same instant will
// not return it again.
func (m *Manager) SweepExpiredDefenses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []string
	for id, d := range m.disputes {
		if d.Status != types.StatusPendingDefense {
			continue
		}
		if now.Before(d.DefenseDeadline) {
			continue
		}
		m.autoResolveLocked(d, now)
		expired = append(expired, id)
	}
	return expired
}

func (m *Manager) autoResolveLocked(d *types.Dispute, now time.Time) {
	multiplier := config.AttackMultiplier(d.Attack)
	proposerSlash := minFloat(d.ProposerStake, d.ProposerStake*config.NoDefenseProposerSlashCap)

	d.Resolution = &types.Resolution{
		Verdict:            types.VerdictChallengeUpheld,
		Confidence:         1.0,
		ChallengerPayout:   d.ChallengerStake*multiplier + proposerSlash,
		ProposerPayout:     -proposerSlash,
		ProposerRepDelta:   -0.15,
		ChallengerRepDelta: 0.05,
		AutoResolved:       true,
		ResolvedAt:         now,
	}
	d.Status = types.StatusResolved
	d.ResolvedAt = now

	m.log.Info("dispute auto-resolved (no defense)", "id", d.ID,
		"challenger_payout", d.Resolution.ChallengerPayout,
		"proposer_payout", d.Resolution.ProposerPayout)
}

// Resolve transitions a pending-adjudication dispute to resolved and
// computes the stake/reputation deltas of §4.2's table for the given
// final verdict and confidence. Once set, the dispute's payout and
// reputation fields are immutable (callers receive a copy via
// GetDispute, never a pointer into Manager state).
func (m *Manager) Resolve(disputeID string, verdict types.Verdict, confidence float64) (types.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[disputeID]
	if !ok {
		return types.Resolution{}, types.ErrDisputeNotFound
	}
	if d.Status != types.StatusPendingAdjudication {
		return types.Resolution{}, types.ErrInvalidState
	}

	c := clip(confidence, 0, 1)
	mult := config.AttackMultiplier(d.Attack)
	P, C := d.ProposerStake, d.ChallengerStake

	res := types.Resolution{Verdict: verdict, Confidence: c}
	switch verdict {
	case types.VerdictChallengeUpheld:
		res.ChallengerPayout = C*mult*c + P*config.ProposerSlashRate*c
		res.ProposerPayout = -P * config.ProposerSlashRate * c
		res.ProposerRepDelta = -0.10 * c
		res.ChallengerRepDelta = 0.05 * c
	case types.VerdictChallengeRejected:
		slash := C * config.ChallengerSlashRate * c
		res.ChallengerPayout = -slash
		res.ProposerPayout = slash * config.RejectedProposerRecoveryRate
		res.ProposerRepDelta = 0.02 * c
		res.ChallengerRepDelta = -0.05 * c
	case types.VerdictPartial:
		res.ChallengerPayout = C*mult*0.5*c + P*config.ProposerSlashRate*0.5*c - config.PartialChallengerClawback*C
		res.ProposerPayout = -P * config.ProposerSlashRate * 0.5 * c
		res.ProposerRepDelta = -0.03 * c
		res.ChallengerRepDelta = 0.01 * c
	default:
		return types.Resolution{}, fmt.Errorf("%w: unsupported final verdict %q", types.ErrInvalidState, verdict)
	}

	now := m.now()
	res.ResolvedAt = now
	d.Resolution = &res
	d.Status = types.StatusResolved
	d.ResolvedAt = now

	m.log.Info("dispute resolved", "id", disputeID, "verdict", string(verdict),
		"challenger_payout", res.ChallengerPayout, "proposer_payout", res.ProposerPayout)
	return res, nil
}

// GetDispute returns a copy of a dispute's current state.
func (m *Manager) GetDispute(id string) (types.Dispute, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return types.Dispute{}, false
	}
	return snapshot(d), true
}

// snapshot copies a dispute together with its Defense and Resolution
// records, so the caller holds no pointer into Manager state.
func snapshot(d *types.Dispute) types.Dispute {
	out := *d
	if d.Defense != nil {
		defense := *d.Defense
		out.Defense = &defense
	}
	if d.Resolution != nil {
		res := *d.Resolution
		out.Resolution = &res
	}
	return out
}

// ListPendingAdjudication returns every dispute currently awaiting a
// consensus verdict (the hand-off point to the Consensus Engine).
func (m *Manager) ListPendingAdjudication() []types.Dispute {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Dispute
	for _, d := range m.disputes {
		if d.Status == types.StatusPendingAdjudication {
			out = append(out, snapshot(d))
		}
	}
	return out
}

// ListActiveForTask returns every dispute for a task that is still in
// flight (pending-defense or pending-adjudication).
func (m *Manager) ListActiveForTask(taskID string) []types.Dispute {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Dispute
	for _, id := range m.byTask[taskID] {
		d := m.disputes[id]
		if d != nil && d.Active() {
			out = append(out, snapshot(d))
		}
	}
	return out
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

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
