// Package corpus loads test vectors laid out as
// <dir>/<group>/<subgroup>/<test>.json into the ordered test hierarchy.
package corpus

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/golang/snappy"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

const vectorExt = ".json"

// Config holds configuration for loading a corpus
type Config struct {
	Dir       string
	Selection *Selection
	Log       log.Logger
	// Parallelism bounds the number of vectors parsed at once, GOMAXPROCS
	// when zero.
	Parallelism int
}

// vectorFile is the on-disk form of one test vector.
type vectorFile struct {
	GenerationInputs         json.RawMessage `json:"generation_inputs"`
	ExpectedStateRoot        *common.Hash    `json:"expected_state_root"`
	ExpectedReceiptsRoot     *common.Hash    `json:"expected_receipts_root,omitempty"`
	ExpectedTransactionsRoot *common.Hash    `json:"expected_transactions_root,omitempty"`
	Reference                json.RawMessage `json:"reference,omitempty"`
	ReferenceSnappy          string          `json:"reference_snappy,omitempty"`
}

// Load walks the corpus directory in sorted order. Vectors that cannot be
// parsed are skipped with a warning; groups and subgroups left without tests
// are dropped.
func Load(cfg Config) ([]*types.TestGroup, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Dir == "" {
		return nil, errors.New("corpus directory is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}

	groupDirs, err := subDirs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	var groups []*types.TestGroup
	skipped := 0
	for _, groupName := range groupDirs {
		group := &types.TestGroup{Name: groupName}
		subGroupDirs, err := subDirs(filepath.Join(cfg.Dir, groupName))
		if err != nil {
			return nil, fmt.Errorf("reading group %s: %w", groupName, err)
		}
		for _, subGroupName := range subGroupDirs {
			subGroup := &types.TestSubGroup{Name: subGroupName}
			dir := filepath.Join(cfg.Dir, groupName, subGroupName)
			files, err := vectorFiles(dir)
			if err != nil {
				return nil, fmt.Errorf("reading subgroup %s/%s: %w", groupName, subGroupName, err)
			}
			tests, n := loadSubGroup(cfg, dir, groupName, subGroupName, files)
			skipped += n
			subGroup.Tests = tests
			if len(subGroup.Tests) > 0 {
				group.SubGroups = append(group.SubGroups, subGroup)
			}
		}
		if len(group.SubGroups) > 0 {
			groups = append(groups, group)
		}
	}

	cfg.Log.Info("Loaded corpus", "dir", cfg.Dir, "groups", len(groups), "tests", types.CountTests(groups), "skipped", skipped)
	return groups, nil
}

// loadSubGroup parses the selected vectors of one subgroup concurrently and
// returns them in file order together with the number skipped.
func loadSubGroup(cfg Config, dir, groupName, subGroupName string, files []string) ([]*types.Test, int) {
	parsed := make([]*types.Test, len(files))
	selected := 0
	var g errgroup.Group
	g.SetLimit(cfg.Parallelism)
	for i, file := range files {
		name := strings.TrimSuffix(file, vectorExt)
		id := types.TestID(groupName, subGroupName, name)
		if !cfg.Selection.Selected(id) {
			continue
		}
		selected++
		g.Go(func() error {
			info, err := LoadVector(filepath.Join(dir, file))
			if err != nil {
				cfg.Log.Warn("Skipping unparseable test vector", "test", id, "err", err)
				return nil
			}
			parsed[i] = &types.Test{Name: name, Info: *info}
			return nil
		})
	}
	_ = g.Wait()

	var tests []*types.Test
	for _, t := range parsed {
		if t != nil {
			tests = append(tests, t)
		}
	}
	return tests, selected - len(tests)
}

// LoadVector parses a single vector file.
func LoadVector(file string) (*types.TestRunInfo, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return ParseVector(data)
}

// ParseVector decodes a vector document.
func ParseVector(data []byte) (*types.TestRunInfo, error) {
	var v vectorFile
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding vector: %w", err)
	}
	if len(v.GenerationInputs) == 0 || string(v.GenerationInputs) == "null" {
		return nil, errors.New("vector has no generation inputs")
	}
	if v.ExpectedStateRoot == nil {
		return nil, errors.New("vector has no expected state root")
	}

	info := &types.TestRunInfo{
		GenerationInputs:         []byte(v.GenerationInputs),
		ExpectedStateRoot:        *v.ExpectedStateRoot,
		ExpectedReceiptsRoot:     v.ExpectedReceiptsRoot,
		ExpectedTransactionsRoot: v.ExpectedTransactionsRoot,
	}
	switch {
	case len(v.Reference) > 0 && v.ReferenceSnappy != "":
		return nil, errors.New("vector has both reference and reference_snappy")
	case len(v.Reference) > 0 && string(v.Reference) != "null":
		info.ReferenceSnapshot = []byte(v.Reference)
	case v.ReferenceSnappy != "":
		compressed, err := base64.StdEncoding.DecodeString(v.ReferenceSnappy)
		if err != nil {
			return nil, fmt.Errorf("decoding reference_snappy: %w", err)
		}
		snapshot, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("decompressing reference_snappy: %w", err)
		}
		info.ReferenceSnapshot = snapshot
	}
	return info, nil
}

// EncodeReference compresses a reference snapshot into the reference_snappy
// form.
func EncodeReference(snapshot []byte) string {
	return base64.StdEncoding.EncodeToString(snappy.Encode(nil, snapshot))
}

func subDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func vectorFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), vectorExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
