// Package artifact defines the file set that makes up one generated executor version.
package artifact

import (
	"sort"
	"strings"

	"github.com/dyluth/microchain/internal/extract"
)

// File names of an executor version. ConfigFile is written by microchain itself
// and never produced by the model.
const (
	ExecutorFile     = "executor.py"
	TestExecutorFile = "test_executor.py"
	RequirementsFile = "requirements.txt"
	DockerFile       = "Dockerfile"
	ConfigFile       = "config.yml"
	PlaygroundFile   = "app.py"
)

// FileTag pairs a file name with the fence tag used when the file is embedded in a prompt.
type FileTag struct {
	Name string
	Tag  string
}

// ExpectedFiles are the model-generated members of every version, in generation order.
// The repair loop only looks for these labels in a repair response.
var ExpectedFiles = []FileTag{
	{Name: ExecutorFile, Tag: "python"},
	{Name: TestExecutorFile, Tag: "python"},
	{Name: RequirementsFile, Tag: ""},
	{Name: DockerFile, Tag: "dockerfile"},
}

// TagFor returns the fence tag registered for name, or "" for unknown files.
func TagFor(name string) string {
	for _, ft := range ExpectedFiles {
		if ft.Name == name {
			return ft.Tag
		}
	}
	if strings.HasSuffix(name, ".py") {
		return "python"
	}
	if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
		return "yaml"
	}
	return ""
}

// Set maps file name to file content for one version of an executor.
type Set map[string]string

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for name, content := range s {
		out[name] = content
	}
	return out
}

// Merge overwrites the files present in updates and returns the names that changed.
// Files missing from updates are carried over untouched.
func (s Set) Merge(updates Set) []string {
	var changed []string
	for name, content := range updates {
		if old, ok := s[name]; ok && old == content {
			continue
		}
		s[name] = content
		changed = append(changed, name)
	}
	sort.Strings(changed)
	return changed
}

// Names returns the file names in s, sorted.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the expected files that are absent or empty in s.
func (s Set) Missing() []string {
	var missing []string
	for _, ft := range ExpectedFiles {
		if strings.TrimSpace(s[ft.Name]) == "" {
			missing = append(missing, ft.Name)
		}
	}
	return missing
}

// String renders every file as a labeled block, in name order.
func (s Set) String() string {
	var b strings.Builder
	for _, name := range s.Names() {
		b.WriteString(extract.Wrap(s[name], name, TagFor(name)))
	}
	return b.String()
}
