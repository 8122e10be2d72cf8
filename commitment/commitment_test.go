package commitment

import (
	"crypto/sha256"
	"testing"

	"github.com/MeaCulpitt/Dialectic-subnet/types"
	"github.com/stretchr/testify/require"
)

func node(id, claim string, children ...string) types.ReasoningNode {
	return types.ReasoningNode{ID: id, Claim: claim, Kind: types.NodePremise, Children: children}
}

func TestBuildAndVerifyRoundTrip(t *testing.T) {
	tree := &types.ReasoningTree{
		TaskID: "task-1",
		Root:   node("n0", "root claim", "n1", "n2"),
		Nodes: []types.ReasoningNode{
			node("n1", "supporting premise"),
			node("n2", "another premise"),
		},
	}

	e := New()
	built := e.Build(tree)
	require.NotEmpty(t, built.Root)

	for _, n := range tree.AllNodes() {
		proof := built.ProofFor(n.ID)
		require.True(t, Verify(n, proof, built.Root), "node %s should verify", n.ID)
	}
}

func TestVerifyFailsOnMutatedClaim(t *testing.T) {
	tree := &types.ReasoningTree{
		TaskID: "task-1",
		Root:   node("n0", "root claim", "n1", "n2"),
		Nodes: []types.ReasoningNode{
			node("n1", "supporting premise"),
			node("n2", "another premise"),
		},
	}

	e := New()
	built := e.Build(tree)
	proof := built.ProofFor("n1")

	mutated := node("n1", "a different claim entirely")
	require.False(t, Verify(mutated, proof, built.Root))
}

func TestBuildSingleNodeTree(t *testing.T) {
	tree := &types.ReasoningTree{
		TaskID: "task-1",
		Root:   node("n0", "only claim"),
	}

	e := New()
	built := e.Build(tree)
	require.True(t, Verify(tree.Root, built.ProofFor("n0"), built.Root))
	require.Empty(t, built.ProofFor("n0")) // a single-leaf tree's root IS the leaf hash
}

func TestBuildOddLeafCountDuplicatesLastElement(t *testing.T) {
	// Five leaves: root + four children, forcing an odd level during
	// tree construction (5 -> pad to 6 -> 3 -> pad to 4 -> 2 -> 1).
	tree := &types.ReasoningTree{
		TaskID: "task-1",
		Root:   node("n0", "root", "n1", "n2", "n3", "n4"),
		Nodes: []types.ReasoningNode{
			node("n1", "a"),
			node("n2", "b"),
			node("n3", "c"),
			node("n4", "d"),
		},
	}

	e := New()
	built := e.Build(tree)
	for _, n := range tree.AllNodes() {
		proof := built.ProofFor(n.ID)
		require.True(t, Verify(n, proof, built.Root), "node %s should verify", n.ID)
		// Every leaf's proof length must be small enough that no level
		// double-counted a duplicated sibling (at most one step per level
		// for a 5-leaf, 3-level tree).
		require.LessOrEqual(t, len(proof), 3)
	}
}

func TestBuildEmptyTreeHashesEmptyInput(t *testing.T) {
	tree := &types.ReasoningTree{TaskID: "task-1"}
	e := New()
	built := e.Build(tree)
	require.Empty(t, built.Proofs)
	require.Equal(t, hexOf(sha256.Sum256(nil)), built.Root)
}

func TestMutationChangesRoot(t *testing.T) {
	base := &types.ReasoningTree{
		TaskID: "task-1",
		Root:   node("n0", "root claim", "n1"),
		Nodes:  []types.ReasoningNode{node("n1", "a premise")},
	}
	mutated := &types.ReasoningTree{
		TaskID: "task-1",
		Root:   node("n0", "root claim", "n1"),
		Nodes:  []types.ReasoningNode{node("n1", "a mutated premise")},
	}

	e := New()
	require.NotEqual(t, e.Build(base).Root, e.Build(mutated).Root)
}

func TestVerifyRejectsMalformedProof(t *testing.T) {
	n := node("n0", "root claim")
	bad := []ProofStep{{Sibling: "not-hex", Side: SideLeft}}
	require.False(t, Verify(n, bad, "deadbeef"))

	badSide := []ProofStep{{Sibling: hexOf([32]byte{}), Side: "sideways"}}
	require.False(t, Verify(n, badSide, "deadbeef"))
}
