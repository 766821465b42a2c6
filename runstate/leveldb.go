package runstate

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

const (
	levelDBStatusPrefix = "status/"
	levelDBOpenFiles    = 64
)

var _ Store = (*LevelDBStore)(nil)

// LevelDBStore keeps one key per test. Writes are synced before Update
// returns.
type LevelDBStore struct {
	db *leveldb.DB

	mu      sync.Mutex
	entries types.RunStateEntries
}

// statusRecord is the RLP form of a TestStatus. Diff holds either no element
// or exactly state, receipt and transaction comparisons in that order.
type statusRecord struct {
	Kind    string
	Message string
	Diff    []comparisonRecord
}

type comparisonRecord struct {
	Correct  bool
	Actual   common.Hash
	Expected common.Hash
}

// OpenLevelDB opens or creates a leveldb run state at dir.
func OpenLevelDB(dir string) (*LevelDBStore, error) {
	if dir == "" {
		return nil, errors.New("run state leveldb directory is required")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{OpenFilesCacheCapacity: levelDBOpenFiles})
	if err != nil {
		return nil, errors.Wrapf(err, "open run state leveldb %s", dir)
	}

	entries := make(types.RunStateEntries)
	it := db.NewIterator(util.BytesPrefix([]byte(levelDBStatusPrefix)), nil)
	for it.Next() {
		id := strings.TrimPrefix(string(it.Key()), levelDBStatusPrefix)
		status, err := decodeStatusRecord(it.Value())
		if err != nil {
			it.Release()
			db.Close()
			return nil, errors.Wrapf(err, "decode run state entry %s", id)
		}
		entries[id] = status
	}
	it.Release()
	if err := it.Error(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "iterate run state")
	}
	return &LevelDBStore{db: db, entries: entries}, nil
}

// Entries implements the Store interface
func (s *LevelDBStore) Entries() types.RunStateEntries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Clone()
}

// Update implements the Store interface
func (s *LevelDBStore) Update(id string, status types.TestStatus) error {
	value, err := encodeStatusRecord(status)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(levelDBStatusPrefix+id), value, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrapf(err, "persist status of %s", id)
	}
	s.entries[id] = status
	return nil
}

// Close implements the Store interface
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func encodeStatusRecord(status types.TestStatus) ([]byte, error) {
	if err := status.Validate(); err != nil {
		return nil, err
	}
	rec := statusRecord{Kind: string(status.Kind), Message: status.Message}
	if status.Diff != nil {
		for _, c := range []types.TrieComparisonResult{status.Diff.State, status.Diff.Receipt, status.Diff.Transaction} {
			rec.Diff = append(rec.Diff, comparisonRecord(c))
		}
	}
	data, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode status record")
	}
	return data, nil
}

func decodeStatusRecord(data []byte) (types.TestStatus, error) {
	var rec statusRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return types.TestStatus{}, errors.Wrap(err, "decode status record")
	}
	status := types.TestStatus{Kind: types.StatusKind(rec.Kind), Message: rec.Message}
	switch len(rec.Diff) {
	case 0:
	case 3:
		status.Diff = &types.TrieFinalStateDiff{
			State:       types.TrieComparisonResult(rec.Diff[0]),
			Receipt:     types.TrieComparisonResult(rec.Diff[1]),
			Transaction: types.TrieComparisonResult(rec.Diff[2]),
		}
	default:
		return types.TestStatus{}, errors.Errorf("status record has %d comparisons", len(rec.Diff))
	}
	if err := status.Validate(); err != nil {
		return types.TestStatus{}, err
	}
	return status, nil
}
