// Package commitment builds a cryptographic digest of a reasoning
// tree's node set and produces/verifies inclusion proofs against it
// (§4.1). It owns nothing but the tree it was built from: the root and
// every proof are pure functions of the node set, so the engine never
// needs to mutate anything after Build runs.
//
// Canonicalization and the SHA-256 concatenation scheme follow
// original_source/merkle.py's ReasoningMerkleTree byte-for-byte, and
// the canonical-JSON idiom follows the corpus's pkg/commitment package
// (certenIO-certen-validator, other_examples).
package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	logpkg "github.com/MeaCulpitt/Dialectic-subnet/log"
	"github.com/MeaCulpitt/Dialectic-subnet/types"
	"github.com/luxfi/log"
)

// Side declares which side of the current accumulator a proof's
// sibling hash sits on.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ProofStep is one (sibling, side) pair in an inclusion proof (§4.1).
type ProofStep struct {
	Sibling string
	Side    Side
}

// Engine builds and verifies Merkle commitments over reasoning trees.
// It holds no mutable state shared across calls: Build returns
// everything a caller needs (root, and a proof-by-id index) rather
// than mutating engine-owned fields, so a single Engine value is safe
// to share across goroutines without synchronization.
type Engine struct {
	log log.Logger
}

// New returns a Commitment Engine.
func New() *Engine {
	return &Engine{log: logpkg.New("commitment")}
}

// Built is the result of committing a tree: its root and a proof for
// every node identifier that was part of the node set.
type Built struct {
	Root   string
	Proofs map[string][]ProofStep
}

// canonicalNodeHash hashes a node's persistent fields (§4.1): keys in
// lexicographic order, no incidental whitespace. encoding/json already
// sorts map keys; we build an explicit ordered struct instead of a
// map so the field order is locked regardless of json package version.
func canonicalNodeHash(n types.ReasoningNode) [32]byte {
	type canonicalEvidence struct {
		Payload   string `json:"payload"`
		Source    string `json:"source"`
		Timestamp string `json:"timestamp,omitempty"`
		URL       string `json:"url,omitempty"`
	}
	type canonicalNode struct {
		Children []string           `json:"children"`
		Claim    string             `json:"claim"`
		Evidence *canonicalEvidence `json:"evidence,omitempty"`
		ID       string             `json:"id"`
		Kind     string             `json:"kind"`
	}

	children := make([]string, len(n.Children))
	copy(children, n.Children)

	cn := canonicalNode{
		Children: children,
		Claim:    n.Claim,
		ID:       n.ID,
		Kind:     string(n.Kind),
	}
	if n.Evidence != nil {
		ce := &canonicalEvidence{
			Payload: n.Evidence.Payload,
			Source:  n.Evidence.Source,
			URL:     n.Evidence.URL,
		}
		if !n.Evidence.Timestamp.IsZero() {
			ce.Timestamp = n.Evidence.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z")
		}
		cn.Evidence = ce
	}

	// json.Marshal on a struct preserves field declaration order, which
	// we have declared lexicographically above; separators are already
	// minimal (no HTML escaping concerns here since claims are plain
	// text fields, not rendered).
	raw, err := json.Marshal(cn)
	if err != nil {
		// Marshal of a plain-data struct cannot fail; a panic here
		// would indicate a serialization bug, not untrusted input.
		panic(err)
	}
	return sha256.Sum256(raw)
}

func combine(left, right [32]byte) [32]byte {
	leftHex := hex.EncodeToString(left[:])
	rightHex := hex.EncodeToString(right[:])
	return sha256.Sum256([]byte(leftHex + rightHex))
}

func hexOf(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// Build computes the tree's Merkle root and an inclusion proof for
// every node (root first, then non-root nodes in their listed order,
// per §4.1). An empty node set hashes to SHA-256 of the empty byte
// sequence; a tree whose root has no identifier and which has no other
// nodes is treated as that empty set.
func (e *Engine) Build(tree *types.ReasoningTree) Built {
	nodes := tree.AllNodes()
	if tree.Root.ID == "" && len(tree.Nodes) == 0 {
		nodes = nil
	}
	if len(nodes) == 0 {
		empty := sha256.Sum256(nil)
		return Built{Root: hexOf(empty), Proofs: map[string][]ProofStep{}}
	}

	leaves := make([][32]byte, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		leaves[i] = canonicalNodeHash(n)
		ids[i] = n.ID
	}

	root, proofs := buildLevels(leaves, ids)

	e.log.Debug("built commitment", "root", hexOf(root), "leaves", len(leaves))
	return Built{Root: hexOf(root), Proofs: proofs}
}

// buildLevels builds the tree bottom-up, duplicating the last element
// of an odd level before pairing (§4.1), and records each leaf's
// sibling path on the way up.
func buildLevels(leaves [][32]byte, ids []string) ([32]byte, map[string][]ProofStep) {
	proofs := make(map[string][]ProofStep, len(ids))
	for _, id := range ids {
		proofs[id] = nil
	}

	// level holds the current level's hashes; owners[i] lists which
	// leaf ids trace through position i at this level (a leaf's path
	// to the root touches exactly one position per level).
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	owners := make([][]string, len(leaves))
	for i, id := range ids {
		owners[i] = []string{id}
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
			// The duplicate is a copy of the last value for hashing
			// purposes only; it must not claim ownership of that
			// leaf's proof path too, or that leaf would receive two
			// proof steps at this level instead of one.
			owners = append(owners, nil)
		}

		next := make([][32]byte, len(level)/2)
		nextOwners := make([][]string, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			l, r := level[i], level[i+1]
			next[i/2] = combine(l, r)
			nextOwners[i/2] = append(append([]string{}, owners[i]...), owners[i+1]...)

			for _, id := range owners[i] {
				proofs[id] = append(proofs[id], ProofStep{Sibling: hexOf(r), Side: SideRight})
			}
			for _, id := range owners[i+1] {
				proofs[id] = append(proofs[id], ProofStep{Sibling: hexOf(l), Side: SideLeft})
			}
		}
		level = next
		owners = nextOwners
	}

	return level[0], proofs
}

// ProofFor returns the inclusion proof for a node identifier, or nil
// (an "absent" proof) if the identifier was not part of the committed
// set. Proof primitives never fail (§4.1 Failure modes); callers treat
// an empty proof as "absent".
func (b Built) ProofFor(nodeID string) []ProofStep {
	return b.Proofs[nodeID]
}

// Verify folds a proof from a node's canonical hash up to the root and
// reports whether it matches expectedRoot. It never returns an error;
// an invalid proof simply verifies false (§4.1 Verification).
func Verify(node types.ReasoningNode, proof []ProofStep, expectedRootHex string) bool {
	current := canonicalNodeHash(node)
	for _, step := range proof {
		sibling, err := hex.DecodeString(step.Sibling)
		if err != nil || len(sibling) != sha256.Size {
			return false
		}
		var siblingArr [32]byte
		copy(siblingArr[:], sibling)

		switch step.Side {
		case SideLeft:
			current = combine(siblingArr, current)
		case SideRight:
			current = combine(current, siblingArr)
		default:
			return false
		}
	}
	return hexOf(current) == expectedRootHex
}
