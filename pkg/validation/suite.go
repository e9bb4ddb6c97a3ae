// Package validation checks frames against expectation suites stored as JSON
// files, keeps the results in a filesystem store and renders a static data
// docs page from them.
//
// A project directory is laid out as
//
//	<project>/expectations/<suite>.json
//	<project>/uncommitted/validations/<suite>/<run_id>.json
//	<project>/uncommitted/evaluation_parameters/<suite>/<run_id>.json
//	<project>/uncommitted/data_docs/local_site/index.html
package validation

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/goccy/go-json"
)

// Suite is a named list of expectations.
type Suite struct {
	Name         string                 `json:"expectation_suite_name"`
	Expectations []Expectation          `json:"expectations"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
}

// Expectation is one check: a type name and its keyword arguments.
type Expectation struct {
	Type   string                 `json:"expectation_type"`
	Kwargs map[string]interface{} `json:"kwargs"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// LoadSuite reads a suite file. A suite without a name is named after the file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read expectation suite")
	}
	var suite Suite
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "invalid expectation suite %s", path)
	}
	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := checkSuiteName(suite.Name); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "invalid expectation suite %s", path)
	}
	return &suite, nil
}

// checkSuiteName requires a single path segment, since results are stored
// under uncommitted/<kind>/<suite>.
func checkSuiteName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.Newf(errors.ErrorTypeConfig, "suite name %q must be a single path segment", name)
	}
	return nil
}

// LoadSuites reads every *.json suite in dir, sorted by file name.
func LoadSuites(dir string) ([]*Suite, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid expectations path")
	}
	sort.Strings(paths)

	suites := make([]*Suite, 0, len(paths))
	for _, p := range paths {
		s, err := LoadSuite(p)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// Save writes the suite as indented JSON.
func (s *Suite) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode expectation suite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create expectations directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write expectation suite")
	}
	return nil
}
