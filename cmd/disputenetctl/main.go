// Command disputenetctl drives the Commitment, Dispute and Consensus
// engines from the command line for local demonstration and manual
// testing, grounded on the teacher's cmd/consensus root command
// (a cobra.Command with one RunE subcommand per tool).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MeaCulpitt/Dialectic-subnet/commitment"
	"github.com/MeaCulpitt/Dialectic-subnet/config"
	"github.com/MeaCulpitt/Dialectic-subnet/consensus"
	"github.com/MeaCulpitt/Dialectic-subnet/dispute"
	"github.com/MeaCulpitt/Dialectic-subnet/types"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "disputenetctl",
	Short: "Inspect and exercise the dispute-resolution subnet's adjudication core",
	Long: `disputenetctl drives the Commitment Engine, Dispute Manager and
Consensus Engine in a single process for local demonstration: commit a
reasoning tree, open and resolve a dispute against it, and run a
validator panel to consensus.`,
}

func main() {
	rootCmd.AddCommand(demoCmd(), commitCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Build a Merkle commitment over a sample reasoning tree and print its root",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree := sampleTree()
			built := commitment.New().Build(tree)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"root":        built.Root,
				"proof_count": len(built.Proofs),
			})
		},
	}
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a full challenge -> defense -> adjudication cycle end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd)
		},
	}
}

func sampleTree() *types.ReasoningTree {
	return &types.ReasoningTree{
		TaskID: "task-demo",
		Root: types.ReasoningNode{
			ID: "n0", Claim: "The treaty was ratified in 1998.", Kind: types.NodeConclusion,
			Children: []string{"n1"},
		},
		Nodes: []types.ReasoningNode{
			{ID: "n1", Claim: "Ratification records show 1998.", Kind: types.NodePremise},
		},
		Proposer:      "proposer-1",
		ProposerStake: 1000,
		SubmittedAt:   time.Now(),
	}
}

func runDemo(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	tree := sampleTree()

	built := commitment.New().Build(tree)
	fmt.Fprintf(out, "committed tree, root=%s\n", built.Root)

	dm := dispute.New()
	sub := types.ChallengeSubmission{
		TaskID:          tree.TaskID,
		TargetNodeID:    "n1",
		Proposer:        tree.Proposer,
		ProposerStake:   tree.ProposerStake,
		Challenger:      "challenger-1",
		ChallengerStake: 150,
		Attack:          types.AttackFactualError,
		Argument:        "the cited record was superseded by a 2003 correction",
	}
	id, err := dm.OpenDispute(sub, tree)
	if err != nil {
		return fmt.Errorf("open dispute: %w", err)
	}
	fmt.Fprintf(out, "opened dispute %s\n", id)

	if err := dm.SubmitDefense(id, types.Defense{Kind: "context", Argument: "the 2003 correction only affected an unrelated clause"}); err != nil {
		return fmt.Errorf("submit defense: %w", err)
	}
	fmt.Fprintln(out, "defense recorded")

	ce, err := consensus.New(time.Now().UnixNano(), nil, nil)
	if err != nil {
		return fmt.Errorf("build consensus engine: %w", err)
	}
	for i, stake := range []float64{600, 700, 2500, 3000, 550} {
		tier, ok := config.TierFor(stake)
		if !ok {
			return fmt.Errorf("stake %v below scout minimum", stake)
		}
		if _, err := ce.Register(fmt.Sprintf("validator-%d", i), stake, tier); err != nil {
			return fmt.Errorf("register validator: %w", err)
		}
	}
	panel := ce.AssignPanel(id, config.DefaultAssignmentSize)
	fmt.Fprintf(out, "assigned panel: %v\n", panel)

	for i, v := range panel {
		verdict := types.VerdictChallengeUpheld
		if i == len(panel)-1 {
			verdict = types.VerdictChallengeRejected
		}
		if err := ce.SubmitVote(id, types.Vote{Validator: v, Verdict: verdict, Confidence: 0.8}); err != nil {
			return fmt.Errorf("submit vote: %w", err)
		}
	}
	result := ce.Finalize(id)
	fmt.Fprintf(out, "tally: verdict=%s reached=%v winning_share=%.2f total_weight=%.1f\n",
		result.FinalVerdict, result.ConsensusReached, result.WinningWeight, result.TotalWeight)

	if result.ConsensusReached {
		res, err := dm.Resolve(id, result.FinalVerdict, result.WinningWeight)
		if err != nil {
			return fmt.Errorf("resolve dispute: %w", err)
		}
		fmt.Fprintf(out, "resolved: challenger_payout=%.2f proposer_payout=%.2f\n", res.ChallengerPayout, res.ProposerPayout)
	}
	return nil
}
