package deploy

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	dockerpkg "github.com/dyluth/microchain/internal/docker"
	"github.com/dyluth/microchain/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBuilder struct {
	output  string
	err     error
	files   map[string]string
	options types.ImageBuildOptions
}

func (f *fakeBuilder) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	f.options = options
	f.files = map[string]string{}

	tr := tar.NewReader(buildContext)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.ImageBuildResponse{}, err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return types.ImageBuildResponse{}, err
		}
		f.files[hdr.Name] = string(data)
	}

	if f.err != nil {
		return types.ImageBuildResponse{}, f.err
	}
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.output))}, nil
}

func writeExecutorVersion(t *testing.T, name string) string {
	t.Helper()
	ws := workspace.New(t.TempDir())
	dir := ws.ExecutorPath([]string{"requests", "beautifulsoup4"}, 2)

	require.NoError(t, workspace.RecreateFolder(dir))
	require.NoError(t, workspace.PersistFile("class X: pass", filepath.Join(dir, "executor.py")))
	require.NoError(t, workspace.PersistFile("FROM python:3.9", filepath.Join(dir, "Dockerfile")))
	require.NoError(t, workspace.PersistFile("secret", filepath.Join(dir, ".env")))
	require.NoError(t, workspace.WriteConfig(name, dir))
	return dir
}

func TestDockerDeployer_Push(t *testing.T) {
	ctx := context.Background()

	t.Run("builds tagged image from version directory", func(t *testing.T) {
		dir := writeExecutorVersion(t, "MicroChainExecutor42")
		builder := &fakeBuilder{output: `{"stream":"Step 1/1 : FROM python:3.9\n"}
{"stream":"Successfully built 1b2c\n"}
`}
		d := &DockerDeployer{Client: builder, RunID: "run-1", Workspace: "/ws", Logger: zaptest.NewLogger(t)}

		log, err := d.Push(ctx, dir)
		require.NoError(t, err)
		assert.Equal(t, "Step 1/1 : FROM python:3.9\nSuccessfully built 1b2c\n", log)

		assert.ElementsMatch(t, []string{
			"microchainexecutor42:requests_beautifulsoup4-v2",
			"microchainexecutor42:latest",
		}, builder.options.Tags)
		assert.Equal(t, "Dockerfile", builder.options.Dockerfile)
		assert.Equal(t, "requests_beautifulsoup4", builder.options.Labels[dockerpkg.LabelCandidate])
		assert.Equal(t, "v2", builder.options.Labels[dockerpkg.LabelVersion])
		assert.Equal(t, dockerpkg.ComponentExecutor, builder.options.Labels[dockerpkg.LabelComponent])

		assert.Contains(t, builder.files, "executor.py")
		assert.Contains(t, builder.files, "Dockerfile")
		assert.Contains(t, builder.files, "config.yml")
		assert.NotContains(t, builder.files, ".env")
	})

	t.Run("error details become error lines", func(t *testing.T) {
		dir := writeExecutorVersion(t, "MicroChainExecutor1")
		builder := &fakeBuilder{output: `{"stream":"Step 2/2 : RUN pytest\n"}
{"errorDetail":{"code":1,"message":"The command '/bin/sh -c pytest' returned a non-zero code: 1"},"error":"The command '/bin/sh -c pytest' returned a non-zero code: 1"}
`}
		d := &DockerDeployer{Client: builder}

		log, err := d.Push(ctx, dir)
		require.NoError(t, err)

		msg, failed := ProcessErrorMessage(log)
		assert.True(t, failed)
		assert.Contains(t, msg, BuildErrorPrefix+"The command '/bin/sh -c pytest' returned a non-zero code: 1")
	})

	t.Run("daemon failure is returned as error", func(t *testing.T) {
		dir := writeExecutorVersion(t, "MicroChainExecutor1")
		d := &DockerDeployer{Client: &fakeBuilder{err: errors.New("daemon unavailable")}}

		_, err := d.Push(ctx, dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daemon unavailable")
	})

	t.Run("missing config is an error", func(t *testing.T) {
		d := &DockerDeployer{Client: &fakeBuilder{}}
		_, err := d.Push(ctx, t.TempDir())
		assert.Error(t, err)
	})
}
