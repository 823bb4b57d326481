package artifact

import (
	"testing"

	"github.com/dyluth/microchain/internal/extract"
	"github.com/stretchr/testify/assert"
)

func TestSet_Merge(t *testing.T) {
	t.Run("carries unreturned files forward", func(t *testing.T) {
		set := Set{
			ExecutorFile:     "old executor",
			TestExecutorFile: "old test",
			RequirementsFile: "old reqs",
			DockerFile:       "old docker",
		}

		changed := set.Merge(Set{RequirementsFile: "new reqs"})

		assert.Equal(t, []string{RequirementsFile}, changed)
		assert.Equal(t, Set{
			ExecutorFile:     "old executor",
			TestExecutorFile: "old test",
			RequirementsFile: "new reqs",
			DockerFile:       "old docker",
		}, set)
	})

	t.Run("identical content is not reported as changed", func(t *testing.T) {
		set := Set{DockerFile: "same"}
		assert.Empty(t, set.Merge(Set{DockerFile: "same"}))
	})
}

func TestSet_Clone(t *testing.T) {
	orig := Set{ExecutorFile: "a"}
	clone := orig.Clone()
	clone[ExecutorFile] = "b"
	assert.Equal(t, "a", orig[ExecutorFile])
}

func TestSet_Missing(t *testing.T) {
	set := Set{ExecutorFile: "x", TestExecutorFile: "  ", DockerFile: "y"}
	assert.Equal(t, []string{TestExecutorFile, RequirementsFile}, set.Missing())
}

func TestSet_String(t *testing.T) {
	set := Set{ExecutorFile: "E", RequirementsFile: "R"}
	rendered := set.String()

	assert.Equal(t, extract.Wrap("E", ExecutorFile, "python")+extract.Wrap("R", RequirementsFile, ""), rendered)

	got, ok := extract.Extract(rendered, RequirementsFile)
	assert.True(t, ok)
	assert.Equal(t, "R", got)
}

func TestTagFor(t *testing.T) {
	assert.Equal(t, "python", TagFor(ExecutorFile))
	assert.Equal(t, "dockerfile", TagFor(DockerFile))
	assert.Equal(t, "", TagFor(RequirementsFile))
	assert.Equal(t, "yaml", TagFor(ConfigFile))
	assert.Equal(t, "python", TagFor(PlaygroundFile))
	assert.Equal(t, "", TagFor("notes"))
}
