// Package types holds the data model shared by the commitment, dispute
// and consensus engines: reasoning nodes and trees, disputes, votes,
// validator state and the identifiers that tie them together.
package types

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

// ID is the 32-byte identifier the core derives for validator
// identities; task, node and dispute identifiers stay plain strings.
// External collaborators pass identities as opaque strings (per the
// public contract); DeriveID folds such a string into this fixed-width
// identifier.
type ID = ids.ID

// Empty is the zero-value ID, used to signal "no value" where a
// pointer would otherwise be required.
var Empty = ids.Empty

// DeriveID folds an opaque external identity string (a task name, a
// node id, a wallet address, a validator hotkey, ...) into an ID. The
// mapping is deterministic and collision-resistant, but it is not
// itself a cryptographic commitment. The Consensus Engine stores the
// result as ValidatorState.ID; its own maps stay keyed by the identity
// string.
func DeriveID(s string) ID {
	return ID(sha256.Sum256([]byte(s)))
}
