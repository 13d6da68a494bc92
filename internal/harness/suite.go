package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverScenarios returns the scenario files under path. A file path is
// returned as is; a directory is searched recursively for .yaml and .yml
// files. The result is sorted so suites run in a stable order.
func DiscoverScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// SuiteResult is the outcome of one scenario file in a suite run.
type SuiteResult struct {
	Path   string
	Result *Result
	Err    error
}

// Passed reports whether the scenario loaded, ran and passed.
func (s SuiteResult) Passed() bool {
	return s.Err == nil && s.Result != nil && s.Result.Pass
}

// RunSuite loads and runs every scenario file, continuing past failures.
func RunSuite(paths []string) []SuiteResult {
	results := make([]SuiteResult, 0, len(paths))
	for _, p := range paths {
		sr := SuiteResult{Path: p}
		scenario, err := LoadScenario(p)
		if err != nil {
			sr.Err = err
			results = append(results, sr)
			continue
		}
		sr.Result, sr.Err = Run(scenario)
		results = append(results, sr)
	}
	return results
}
