package llmtest

import (
	"testing"

	"github.com/dyluth/microchain/internal/extract"
	"github.com/dyluth/microchain/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestedFile(t *testing.T) {
	name, tag, ok := RequestedFile("write it\n**executor.py**\n```python\n...code...\n```\n")
	require.True(t, ok)
	assert.Equal(t, "executor.py", name)
	assert.Equal(t, "python", tag)

	_, _, ok = RequestedFile("Use the exact same syntax:\n**...**\n```...\n...code...\n```")
	assert.False(t, ok)

	_, _, ok = RequestedFile("no file here")
	assert.False(t, ok)
}

func TestFileResponder(t *testing.T) {
	respond := FileResponder(map[string]string{"Dockerfile": "FROM python"})

	reply, err := respond([]llm.Message{{Role: llm.RoleUser, Content: "**Dockerfile**\n```dockerfile\n...code...\n```"}})
	require.NoError(t, err)
	got, ok := extract.Extract(reply, "Dockerfile")
	require.True(t, ok)
	assert.Equal(t, "FROM python", got)

	reply, err = respond([]llm.Message{{Role: llm.RoleUser, Content: "**app.py**\n```python\n...code...\n```"}})
	require.NoError(t, err)
	got, ok = extract.Extract(reply, "app.py")
	require.True(t, ok)
	assert.Equal(t, "# generated app.py", got)
}
