package consensus

import (
	"testing"
	"time"

	"github.com/MeaCulpitt/Dialectic-subnet/config"
	"github.com/MeaCulpitt/Dialectic-subnet/types"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(42, nil, nil)
	require.NoError(t, err)
	return e
}

func TestRegisterAssignsTierByStake(t *testing.T) {
	e := newTestEngine(t)

	tier, err := e.Register("scout-1", 150, types.TierScout)
	require.NoError(t, err)
	require.Equal(t, types.TierScout, tier)

	tier, err = e.Register("auditor-1", 600, types.TierAuditor)
	require.NoError(t, err)
	require.Equal(t, types.TierAuditor, tier)

	tier, err = e.Register("arbiter-1", 3000, types.TierArbiter)
	require.NoError(t, err)
	require.Equal(t, types.TierArbiter, tier)

	_, err = e.Register("too-small", 10, types.TierScout)
	require.ErrorIs(t, err, types.ErrStakeBelowTier)
}

func TestRegisterDemotesWhenStakeInsufficientForRequestedTier(t *testing.T) {
	e := newTestEngine(t)

	tier, err := e.Register("under-arbiter", 600, types.TierArbiter)
	require.NoError(t, err)
	require.Equal(t, types.TierAuditor, tier)
}

func TestAssignPanelDrawsDistinctValidators(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 10; i++ {
		_, err := e.Register(string(rune('a'+i)), 200, types.TierScout)
		require.NoError(t, err)
	}

	panel := e.AssignPanel("dispute-1", 5)
	require.Len(t, panel, 5)

	seen := make(map[string]bool)
	for _, id := range panel {
		require.False(t, seen[id], "duplicate validator in panel: %s", id)
		seen[id] = true
	}
}

func TestSubmitVoteRejectsUnassigned(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 200, types.TierScout)
	require.NoError(t, err)
	_, err = e.Register("v2", 200, types.TierScout)
	require.NoError(t, err)

	e.AssignPanel("dispute-1", 1)
	panel := e.assignments["dispute-1"]
	var notAssigned string
	for _, id := range []string{"v1", "v2"} {
		if !contains(panel, id) {
			notAssigned = id
		}
	}
	require.NotEmpty(t, notAssigned)

	err = e.SubmitVote("dispute-1", types.Vote{Validator: notAssigned, Verdict: types.VerdictChallengeUpheld})
	require.ErrorIs(t, err, types.ErrNotAssigned)
}

func TestSubmitVoteRejectsDoubleVote(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 200, types.TierScout)
	require.NoError(t, err)
	e.AssignPanel("dispute-1", 1)

	err = e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld})
	require.NoError(t, err)

	err = e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeRejected})
	require.ErrorIs(t, err, types.ErrAlreadyVoted)
}

func TestTallyReachesConsensusAboveThreshold(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("v2", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("v3", 100, types.TierScout)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"v1", "v2", "v3"}
	e.ballots["dispute-1"] = map[string]types.Vote{}

	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld, Confidence: 1.0}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v2", Verdict: types.VerdictChallengeUpheld, Confidence: 1.0}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v3", Verdict: types.VerdictChallengeRejected, Confidence: 1.0}))

	result := e.Tally("dispute-1")
	require.Equal(t, types.VerdictChallengeUpheld, result.FinalVerdict)
	require.True(t, result.ConsensusReached)
	require.GreaterOrEqual(t, result.WinningWeight, 0.6)
	require.InDelta(t, 1.0, result.Normalized.Upheld+result.Normalized.Rejected+result.Normalized.Partial+result.Normalized.Abstain, 1e-9)
}

func TestFinalizeEscalatesWhenBelowThreshold(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("v2", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("arbiter-1", 3000, types.TierArbiter)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"v1", "v2"}
	e.ballots["dispute-1"] = map[string]types.Vote{}
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v2", Verdict: types.VerdictChallengeRejected}))

	result := e.Finalize("dispute-1")
	require.False(t, result.ConsensusReached)
	require.True(t, result.Escalated)

	panel := e.assignments["dispute-1"]
	require.Contains(t, panel, "arbiter-1")
}

func TestUpdateCalibrationMovesTowardMatchedOutcome(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		e.UpdateCalibration("v1", true, 0.9)
	}
	stats, ok := e.Stats("v1")
	require.True(t, ok)
	require.GreaterOrEqual(t, stats.Calibration, config.CalibrationMin)
	require.LessOrEqual(t, stats.Calibration, config.CalibrationMax)
	require.Equal(t, 50, stats.TotalVerdicts)
	require.Equal(t, 50, stats.CorrectVerdicts)
}

func TestUpdateCalibrationDemotesOnFloorBreach(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 3000, types.TierArbiter)
	require.NoError(t, err)

	e.UpdateCalibration("v1", false, 0.95)

	stats, ok := e.Stats("v1")
	require.True(t, ok)
	require.Less(t, stats.Calibration, config.ArbiterCalibrationFloor)
	require.Equal(t, types.TierAuditor, stats.Tier)
}

func TestNewEpochResetsCaseCounters(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	e.AssignPanel("dispute-1", 1)

	stats, _ := e.Stats("v1")
	require.Equal(t, 1, stats.CasesThisEpoch)

	e.NewEpoch()
	stats, _ = e.Stats("v1")
	require.Equal(t, 0, stats.CasesThisEpoch)
}

func TestRunDecaySweepAppliesInactivityStepDown(t *testing.T) {
	e := newTestEngine(t)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }

	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	v := e.validators["v1"]
	v.Calibration = 1.0
	v.LastActive = fixed.Add(-21 * 24 * time.Hour)

	e.RunDecaySweep()

	stats, _ := e.Stats("v1")
	require.InDelta(t, 0.94, stats.Calibration, 1e-9)
}

func TestMaybePromoteScoutToAuditor(t *testing.T) {
	e := newTestEngine(t)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }

	_, err := e.Register("v1", 600, types.TierScout)
	require.NoError(t, err)

	v := e.validators["v1"]
	v.TierStartedAt = fixed.Add(-31 * 24 * time.Hour)
	v.Calibration = 0.8
	v.TotalVerdicts = 60

	tier, promoted := e.MaybePromote("v1")
	require.True(t, promoted)
	require.Equal(t, types.TierAuditor, tier)
}

func TestMaybePromoteDoesNotFireEarly(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 600, types.TierAuditor)
	require.NoError(t, err)

	tier, promoted := e.MaybePromote("v1")
	require.False(t, promoted)
	require.Equal(t, types.TierAuditor, tier)
}

func TestTallyWithZeroVotesReturnsAbstain(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	e.AssignPanel("dispute-1", 1)

	result := e.Tally("dispute-1")
	require.Equal(t, types.VerdictAbstain, result.FinalVerdict)
	require.False(t, result.ConsensusReached)
	require.Equal(t, 0.0, result.TotalWeight)
}

func TestEscalationRetainsArbiterVotesAndDiscardsOthers(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("scout-1", 200, types.TierScout)
	require.NoError(t, err)
	_, err = e.Register("arbiter-1", 3000, types.TierArbiter)
	require.NoError(t, err)
	_, err = e.Register("arbiter-2", 3000, types.TierArbiter)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"scout-1", "arbiter-1"}
	e.ballots["dispute-1"] = map[string]types.Vote{}
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "scout-1", Verdict: types.VerdictChallengeUpheld}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "arbiter-1", Verdict: types.VerdictChallengeRejected}))

	result := e.Finalize("dispute-1")
	require.True(t, result.Escalated)

	panel := e.assignments["dispute-1"]
	require.ElementsMatch(t, []string{"arbiter-1", "arbiter-2"}, panel)

	ballots := e.ballots["dispute-1"]
	require.Len(t, ballots, 1)
	_, kept := ballots["arbiter-1"]
	require.True(t, kept)
	_, discarded := ballots["scout-1"]
	require.False(t, discarded)
}

func TestEscalationWithNoEligibleArbitersStillSetsFlag(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("v2", 1000, types.TierAuditor)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"v1", "v2"}
	e.ballots["dispute-1"] = map[string]types.Vote{}
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v2", Verdict: types.VerdictChallengeRejected}))

	result := e.Finalize("dispute-1")
	require.True(t, result.Escalated)
	require.Empty(t, e.assignments["dispute-1"])
}

func TestEscalationOccursAtMostOnce(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("arbiter-1", 3000, types.TierArbiter)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"v1"}
	e.ballots["dispute-1"] = map[string]types.Vote{}
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld}))

	first := e.Finalize("dispute-1")
	require.True(t, first.Escalated)
	firstDeadline := e.deadlines["dispute-1"]

	second := e.Finalize("dispute-1")
	require.True(t, second.Escalated)
	require.Equal(t, firstDeadline, e.deadlines["dispute-1"])
}

func TestEscalateIsCallableDirectlyWithoutFinalize(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("arbiter-1", 3000, types.TierArbiter)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"v1"}
	e.ballots["dispute-1"] = map[string]types.Vote{}
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld}))

	result := e.Escalate("dispute-1")
	require.True(t, result.Escalated)
	require.Contains(t, e.assignments["dispute-1"], "arbiter-1")
}

func TestAssignPanelSetsAdjudicationDeadline(t *testing.T) {
	e := newTestEngine(t)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)

	e.AssignPanel("dispute-1", 1)
	require.Equal(t, fixed.Add(config.AdjudicationWindow), e.deadlines["dispute-1"])
}

func TestSubmitVoteRejectsAfterDeadline(t *testing.T) {
	e := newTestEngine(t)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }
	_, err := e.Register("v1", 200, types.TierScout)
	require.NoError(t, err)

	e.AssignPanel("dispute-1", 1)
	e.now = func() time.Time { return fixed.Add(config.AdjudicationWindow) }

	err = e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld})
	require.ErrorIs(t, err, types.ErrDeadlineExceeded)
}

func TestSubmitVoteClipsConfidence(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 200, types.TierScout)
	require.NoError(t, err)
	e.AssignPanel("dispute-1", 1)

	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld, Confidence: 1.4}))
	require.Equal(t, 1.0, e.ballots["dispute-1"]["v1"].Confidence)
}

func TestFinalizeAppliesCalibrationAndClearsRecordOnConsensus(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("v2", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("v3", 100, types.TierScout)
	require.NoError(t, err)

	e.assignments["dispute-1"] = []string{"v1", "v2", "v3"}
	e.ballots["dispute-1"] = map[string]types.Vote{}
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v1", Verdict: types.VerdictChallengeUpheld, Confidence: 0.9}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v2", Verdict: types.VerdictChallengeUpheld, Confidence: 0.8}))
	require.NoError(t, e.SubmitVote("dispute-1", types.Vote{Validator: "v3", Verdict: types.VerdictChallengeRejected, Confidence: 0.7}))

	result := e.Finalize("dispute-1")
	require.True(t, result.ConsensusReached)

	v1, _ := e.Stats("v1")
	require.Equal(t, 1, v1.TotalVerdicts)
	require.Equal(t, 1, v1.CorrectVerdicts)

	v3, _ := e.Stats("v3")
	require.Equal(t, 1, v3.TotalVerdicts)
	require.Equal(t, 0, v3.CorrectVerdicts)

	require.NotContains(t, e.assignments, "dispute-1")
	require.NotContains(t, e.ballots, "dispute-1")
	require.NotContains(t, e.deadlines, "dispute-1")
}

func TestEscalateExtendsDeadlineFromPriorDeadline(t *testing.T) {
	e := newTestEngine(t)
	fixed := time.Now()
	e.now = func() time.Time { return fixed }
	_, err := e.Register("v1", 1000, types.TierAuditor)
	require.NoError(t, err)
	_, err = e.Register("arbiter-1", 3000, types.TierArbiter)
	require.NoError(t, err)

	e.AssignPanel("dispute-1", 1)
	priorDeadline := e.deadlines["dispute-1"]

	e.ballots["dispute-1"] = map[string]types.Vote{}
	e.Finalize("dispute-1")

	require.Equal(t, priorDeadline.Add(config.EscalationExtension), e.deadlines["dispute-1"])
}
