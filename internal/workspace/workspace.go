// Package workspace owns the on-disk layout of a run:
//
//	<root>/executor/<package_a>_<package_b>/v<version>/<file>
//	<root>/flow/flow.yml
//
// Version directories are written once. The repair loop always writes the next
// version instead of touching an existing one.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/microchain/internal/artifact"
	"gopkg.in/yaml.v3"
)

const (
	executorDir = "executor"
	flowDir     = "flow"
)

// Workspace resolves and writes run paths below Root.
type Workspace struct {
	Root string
}

// New returns a workspace rooted at root ("." when empty).
func New(root string) *Workspace {
	if root == "" {
		root = "."
	}
	return &Workspace{Root: root}
}

var separators = strings.NewReplacer("/", "-", `\`, "-")

// CandidateKey joins a package candidate into its directory name. The key is
// always a single path element below executor/; an empty or dot-only key is
// prefixed with "_".
func CandidateKey(packages []string) string {
	parts := make([]string, 0, len(packages))
	for _, p := range packages {
		parts = append(parts, separators.Replace(strings.TrimSpace(p)))
	}
	key := strings.Join(parts, "_")
	if strings.Trim(key, ".") == "" {
		key = "_" + key
	}
	return key
}

// ExecutorRoot is the directory holding every candidate of a run.
func (w *Workspace) ExecutorRoot() string {
	return filepath.Join(w.Root, executorDir)
}

// ExecutorPath is the directory of one version of one candidate.
func (w *Workspace) ExecutorPath(packages []string, version int) string {
	return filepath.Join(w.Root, executorDir, CandidateKey(packages), fmt.Sprintf("v%d", version))
}

// FlowPath is the directory holding the flow descriptor.
func (w *Workspace) FlowPath() string {
	return filepath.Join(w.Root, flowDir)
}

// RecreateFolder removes path and creates it again, empty.
func RecreateFolder(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// PersistFile writes content to path, creating parent directories and overwriting.
func PersistFile(content, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadFiles reads every regular file directly inside dir.
func LoadFiles(dir string) (artifact.Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read executor directory: %w", err)
	}

	files := artifact.Set{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		files[entry.Name()] = string(data)
	}
	return files, nil
}

// WriteSet writes files into a freshly recreated dir.
func WriteSet(dir string, files artifact.Set) error {
	if err := RecreateFolder(dir); err != nil {
		return err
	}
	for _, name := range files.Names() {
		if err := PersistFile(files[name], filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// UnitConfig is the executor's config.yml. It only carries static metadata.
type UnitConfig struct {
	JType     string   `yaml:"jtype"`
	PyModules []string `yaml:"py_modules"`
	Metas     struct {
		Name string `yaml:"name"`
	} `yaml:"metas"`
}

// WriteConfig writes config.yml for the executor called name into dir.
func WriteConfig(name, dir string) error {
	cfg := UnitConfig{
		JType:     name,
		PyModules: []string{artifact.ExecutorFile},
	}
	cfg.Metas.Name = name

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", artifact.ConfigFile, err)
	}
	return PersistFile(string(data), filepath.Join(dir, artifact.ConfigFile))
}

// ReadConfig reads config.yml from dir.
func ReadConfig(dir string) (*UnitConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifact.ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", artifact.ConfigFile, err)
	}

	var cfg UnitConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", artifact.ConfigFile, err)
	}
	if cfg.Metas.Name == "" {
		cfg.Metas.Name = cfg.JType
	}
	if cfg.Metas.Name == "" {
		return nil, fmt.Errorf("%s in %s has no executor name", artifact.ConfigFile, dir)
	}
	return &cfg, nil
}
