package validation

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/goccy/go-json"
)

const (
	uncommittedDir  = "uncommitted"
	validationsDir  = "validations"
	parametersDir   = "evaluation_parameters"
	runIDLayout     = "20060102T150405.000000Z"
	expectationsDir = "expectations"
	resultFileExt   = ".json"
)

// NewRunID formats a run identifier from the run time.
func NewRunID(now time.Time) string {
	return now.UTC().Format(runIDLayout)
}

// Store keeps validation results and evaluation parameters below a project
// directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at the project directory.
func NewStore(projectDir string) *Store {
	return &Store{root: projectDir}
}

// Root returns the project directory.
func (s *Store) Root() string {
	return s.root
}

// ExpectationsDir returns the directory holding suite files.
func (s *Store) ExpectationsDir() string {
	return filepath.Join(s.root, expectationsDir)
}

func (s *Store) resultPath(kind, suite, runID string) string {
	return filepath.Join(s.root, uncommittedDir, kind, suite, runID+resultFileExt)
}

// SaveResult writes the result to uncommitted/validations/<suite>/<run_id>.json.
func (s *Store) SaveResult(r *ValidationResult) (string, error) {
	path := s.resultPath(validationsDir, r.Suite, r.RunID)
	return path, writeJSON(path, r)
}

// SaveParameters writes the evaluation parameters of a run.
func (s *Store) SaveParameters(suite, runID string, params map[string]interface{}) (string, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	path := s.resultPath(parametersDir, suite, runID)
	return path, writeJSON(path, params)
}

// LoadResult reads a stored validation result.
func (s *Store) LoadResult(suite, runID string) (*ValidationResult, error) {
	data, err := os.ReadFile(s.resultPath(validationsDir, suite, runID))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read validation result")
	}
	var r ValidationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid validation result")
	}
	return &r, nil
}

// ListResults returns every stored result, newest run first within a suite
// and suites in name order.
func (s *Store) ListResults() ([]*ValidationResult, error) {
	base := filepath.Join(s.root, uncommittedDir, validationsDir)
	paths, err := filepath.Glob(filepath.Join(base, "*", "*"+resultFileExt))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to list validation results")
	}
	sort.Slice(paths, func(i, j int) bool {
		si, sj := filepath.Base(filepath.Dir(paths[i])), filepath.Base(filepath.Dir(paths[j]))
		if si != sj {
			return si < sj
		}
		return paths[i] > paths[j]
	})

	results := make([]*ValidationResult, 0, len(paths))
	for _, p := range paths {
		suite := filepath.Base(filepath.Dir(p))
		runID := strings.TrimSuffix(filepath.Base(p), resultFileExt)
		r, err := s.LoadResult(suite, runID)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode validation output")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create validation store directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", path)
	}
	return nil
}
