package plugin

import (
	"os"
	"path/filepath"
)

// manifestFilenames are the recognized manifest file names at the
// root of a candidate plugin directory.
var manifestFilenames = []string{"plugin.yaml", "plugin.yml"}

// Candidate is one discovered plugin directory, valid or not (§4.5).
type Candidate struct {
	Dir      string
	Manifest *Manifest
	IsValid  bool
	Errors   []string
}

// DiscoveryOptions controls the directory walk (§4.5).
type DiscoveryOptions struct {
	MaxDepth     int
	AllowInvalid bool
}

// defaultMaxDepth matches §4.5's stated default.
const defaultMaxDepth = 2

// Discover walks root up to opts.MaxDepth, treating any directory
// that contains a manifest file as a candidate (§4.5).
func Discover(root string, opts DiscoveryOptions) ([]Candidate, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	var candidates []Candidate
	err := walk(root, 0, maxDepth, func(dir string) error {
		manifestPath := findManifest(dir)
		if manifestPath == "" {
			return nil
		}
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			candidates = append(candidates, Candidate{Dir: dir, IsValid: false, Errors: []string{err.Error()}})
			return nil
		}
		m, err := ParseManifest(raw)
		if err != nil {
			candidates = append(candidates, Candidate{Dir: dir, IsValid: false, Errors: []string{err.Error()}})
			return nil
		}
		if verr := m.Validate(); verr != nil {
			candidates = append(candidates, Candidate{Dir: dir, Manifest: m, IsValid: false, Errors: verr.Reasons})
			return nil
		}
		candidates = append(candidates, Candidate{Dir: dir, Manifest: m, IsValid: true})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.AllowInvalid {
		return candidates, nil
	}
	var valid []Candidate
	for _, c := range candidates {
		if c.IsValid {
			valid = append(valid, c)
		}
	}
	return valid, nil
}

func findManifest(dir string) string {
	for _, name := range manifestFilenames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// walk visits dir and its subdirectories up to maxDepth, invoking fn
// for every directory visited (including dir itself).
func walk(dir string, depth, maxDepth int, fn func(dir string) error) error {
	if err := fn(dir); err != nil {
		return err
	}
	if depth >= maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := walk(filepath.Join(dir, e.Name()), depth+1, maxDepth, fn); err != nil {
			return err
		}
	}
	return nil
}
