package deploy

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	dockerpkg "github.com/dyluth/microchain/internal/docker"
	"github.com/dyluth/microchain/internal/naming"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// FlowFile is the flow definition written next to the playground.
	FlowFile = "flow.yml"

	// Port range for flow containers (allows 100 concurrent flows)
	startPort = 54321
	endPort   = 54420

	containerPort = "8080/tcp"
)

// ContainerAPI is the subset of the Docker API used to run flows.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerFlowDeployer serves built executor versions as gRPC flows on localhost,
// one container per candidate.
type DockerFlowDeployer struct {
	Client    ContainerAPI
	RunID     string
	Workspace string
	Logger    *zap.Logger

	// PortFree reports whether a host port can be bound. Defaults to a bind check.
	PortFree func(port int) bool
}

type flowSpec struct {
	JType     string         `yaml:"jtype"`
	With      flowWith       `yaml:"with"`
	Executors []flowExecutor `yaml:"executors"`
}

type flowWith struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
}

type flowExecutor struct {
	Name string `yaml:"name"`
	Uses string `yaml:"uses"`
}

// DeployFlow writes flow.yml into flowDir, replaces any running flow for the
// same executor and candidate, and serves the image built from executorPath.
// It returns the host, e.g. grpc://127.0.0.1:54321.
func (d *DockerFlowDeployer) DeployFlow(ctx context.Context, executorName, executorPath, flowDir string) (string, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("flow")

	version := filepath.Base(executorPath)
	candidate := filepath.Base(filepath.Dir(executorPath))
	image := naming.ImageName(executorName)
	imageRef := dockerpkg.ImageRef(image, dockerpkg.VersionTag(candidate, version))
	containerName := dockerpkg.FlowContainerName(image, candidate)

	if err := d.removeExisting(ctx, containerName); err != nil {
		return "", err
	}

	port, err := d.findPort(ctx)
	if err != nil {
		return "", err
	}

	if err := writeFlowFile(flowDir, executorName, imageRef, port); err != nil {
		return "", err
	}

	labels := dockerpkg.BuildLabels(executorName, d.RunID, d.Workspace, dockerpkg.ComponentFlow)
	labels[dockerpkg.LabelFlowPort] = strconv.Itoa(port)
	labels[dockerpkg.LabelCandidate] = candidate
	labels[dockerpkg.LabelVersion] = version

	containerConfig := &container.Config{
		Image:        imageRef,
		Cmd:          []string{"--port", "8080"},
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
		Labels:       labels,
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(port)}},
		},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}

	resp, err := d.Client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create flow container: %w", err)
	}

	if err := d.Client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Cleanup on start failure
		_ = d.Client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start flow container: %w", err)
	}

	host := fmt.Sprintf("grpc://127.0.0.1:%d", port)
	logger.Info("Flow started", zap.String("container", containerName), zap.String("host", host))
	return host, nil
}

func (d *DockerFlowDeployer) removeExisting(ctx context.Context, containerName string) error {
	filter := filters.NewArgs()
	filter.Add("name", containerName)

	containers, err := d.Client.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		return fmt.Errorf("failed to query Docker containers: %w", err)
	}

	for _, c := range containers {
		if !hasName(c.Names, containerName) {
			continue
		}
		if err := d.Client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("failed to remove previous flow %s: %w", containerName, err)
		}
	}
	return nil
}

// findPort returns the first port in range that no flow container claims and
// that is bindable on the host.
func (d *DockerFlowDeployer) findPort(ctx context.Context) (int, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelComponent, dockerpkg.ComponentFlow))

	containers, err := d.Client.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		return 0, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	usedPorts := make(map[int]bool)
	for _, c := range containers {
		if portStr, ok := c.Labels[dockerpkg.LabelFlowPort]; ok {
			if port, err := strconv.Atoi(portStr); err == nil {
				usedPorts[port] = true
			}
		}
	}

	free := d.PortFree
	if free == nil {
		free = isPortBindable
	}

	for port := startPort; port <= endPort; port++ {
		if usedPorts[port] {
			continue
		}
		if free(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available flow ports (range %d-%d exhausted)", startPort, endPort)
}

func writeFlowFile(flowDir, executorName, imageRef string, port int) error {
	spec := flowSpec{
		JType: "Flow",
		With:  flowWith{Name: "nowTest", Port: port, Protocol: "grpc"},
		Executors: []flowExecutor{{
			Name: naming.ImageName(executorName),
			Uses: "docker://" + imageRef,
		}},
	}

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	if err := os.MkdirAll(flowDir, 0o755); err != nil {
		return fmt.Errorf("failed to create flow directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(flowDir, FlowFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", FlowFile, err)
	}
	return nil
}

func hasName(names []string, want string) bool {
	for _, n := range names {
		if n == want || n == "/"+want {
			return true
		}
	}
	return false
}

// isPortBindable checks if a port can be bound on localhost.
func isPortBindable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
