package nocode

import "github.com/svetoslav0421/nocode-claude-ai/id"

// ID is the primary identifier type for engine entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
