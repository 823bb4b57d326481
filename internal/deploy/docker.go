package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/jsonmessage"
	dockerpkg "github.com/dyluth/microchain/internal/docker"
	"github.com/dyluth/microchain/internal/naming"
	"github.com/dyluth/microchain/internal/workspace"
	"go.uber.org/zap"
)

// ImageBuilder is the subset of the Docker API used to build executors.
type ImageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// DockerDeployer builds an executor version with the local Docker daemon.
// The Dockerfile runs the executor's tests, so a clean build is a passing executor.
type DockerDeployer struct {
	Client    ImageBuilder
	RunID     string
	Workspace string
	Platform  string // optional, e.g. linux/amd64
	Logger    *zap.Logger
}

// Push builds the image for artifactPath and returns the build log.
// Images are tagged <executor>:<candidate>-v<N> and <executor>:latest.
func (d *DockerDeployer) Push(ctx context.Context, artifactPath string) (string, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("deploy")

	cfg, err := workspace.ReadConfig(artifactPath)
	if err != nil {
		return "", err
	}

	version := filepath.Base(artifactPath)
	candidate := filepath.Base(filepath.Dir(artifactPath))
	image := naming.ImageName(cfg.Metas.Name)

	buildContext, err := createBuildContext(artifactPath)
	if err != nil {
		return "", err
	}

	labels := dockerpkg.BuildLabels(cfg.Metas.Name, d.RunID, d.Workspace, dockerpkg.ComponentExecutor)
	labels[dockerpkg.LabelCandidate] = candidate
	labels[dockerpkg.LabelVersion] = version

	tags := []string{
		dockerpkg.ImageRef(image, dockerpkg.VersionTag(candidate, version)),
		dockerpkg.ImageRef(image, "latest"),
	}

	logger.Info("Building executor image", zap.String("path", artifactPath), zap.Strings("tags", tags))

	resp, err := d.Client.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        tags,
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		Labels:      labels,
		Platform:    d.Platform,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	log, err := readBuildLog(resp.Body)
	if err != nil {
		return log, fmt.Errorf("error reading build output: %w", err)
	}
	return log, nil
}

// readBuildLog flattens the daemon's JSON message stream into plain text.
// Error entries become BuildErrorPrefix lines.
func readBuildLog(r io.Reader) (string, error) {
	var b strings.Builder
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}

		switch {
		case msg.Error != nil:
			fmt.Fprintf(&b, "%s%s\n", BuildErrorPrefix, msg.Error.Message)
		case msg.ErrorMessage != "":
			fmt.Fprintf(&b, "%s%s\n", BuildErrorPrefix, msg.ErrorMessage)
		case msg.Stream != "":
			b.WriteString(msg.Stream)
		case msg.Status != "":
			b.WriteString(msg.Status)
			b.WriteString("\n")
		}
	}
}
