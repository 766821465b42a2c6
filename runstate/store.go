// Package runstate persists the status of every completed test so an
// interrupted run can be resumed.
//
// A store is a plain key-value layer keyed by test ID. It does not interpret
// statuses and never drops entries for tests missing from the current corpus.
// Update returns only once the entry would survive a process crash.
package runstate

import (
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

const (
	KindFile    = "file"
	KindLevelDB = "leveldb"
	KindSQLite  = "sqlite"
	KindMemory  = "memory"

	DefaultSpec = KindFile + ":run_state.json"
)

// Store is the durable backing store for run state entries.
type Store interface {
	// Entries returns a copy of all entries loaded or written so far.
	Entries() types.RunStateEntries
	// Update records the status for a test and returns once it is durable.
	Update(id string, status types.TestStatus) error
	Close() error
}

// Open opens the store described by spec, "kind:path". A spec without a known
// kind prefix is a path to a JSON file.
func Open(spec string) (Store, error) {
	kind, path := ParseSpec(spec)
	switch kind {
	case KindFile:
		return OpenFile(path)
	case KindLevelDB:
		return OpenLevelDB(path)
	case KindSQLite:
		return OpenSQLite(path)
	case KindMemory:
		return NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown run state store kind %q", kind)
	}
}

// ParseSpec splits a store spec into its kind and path.
func ParseSpec(spec string) (kind, path string) {
	if spec == "" {
		spec = DefaultSpec
	}
	k, p, ok := strings.Cut(spec, ":")
	if !ok {
		return KindFile, spec
	}
	switch k {
	case KindFile, KindLevelDB, KindSQLite, KindMemory:
		return k, p
	}
	return KindFile, spec
}
