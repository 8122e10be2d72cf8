package types

import "time"

// NodeKind enumerates the role a reasoning node plays in the tree.
type NodeKind string

const (
	NodeConclusion NodeKind = "conclusion"
	NodePremise    NodeKind = "premise"
	NodeSubPremise NodeKind = "sub_premise"
	NodeRebuttal   NodeKind = "rebuttal"
	NodeQualifier  NodeKind = "qualifier"
)

// Evidence is the optional citation attached to a reasoning node, a
// challenge argument, or a defense.
type Evidence struct {
	Source    string
	Payload   string
	URL       string
	Timestamp time.Time
}

// HasURL reports whether the evidence carries an optional URL.
func (e *Evidence) HasURL() bool {
	return e != nil && e.URL != ""
}

// ReasoningNode is one claim in a proposer's reasoning tree.
//
// Child identifiers must resolve within the enclosing tree, the tree
// must be acyclic, and identifiers must be unique within a tree — the
// Commitment Engine does not itself enforce these invariants (they are
// established by whatever builds the tree); ReasoningTree.ValidateStructure
// (tree.go) is offered so a caller can check them before handing the
// tree in.
type ReasoningNode struct {
	ID       string
	Claim    string
	Kind     NodeKind
	Evidence *Evidence
	Children []string
}
