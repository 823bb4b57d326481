package docker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Label keys used for microchain resources
const (
	LabelProject      = "microchain.project"
	LabelExecutorName = "microchain.executor.name"
	LabelRunID        = "microchain.run_id"
	LabelWorkspace    = "microchain.workspace.path"
	LabelComponent    = "microchain.component"
	LabelCandidate    = "microchain.candidate"
	LabelVersion      = "microchain.version"
	LabelFlowPort     = "microchain.flow.port"
)

// Component values
const (
	ComponentExecutor = "executor"
	ComponentFlow     = "flow"
)

// BuildLabels creates the standard label set for all microchain resources.
// All parameters are required except component (which is resource-specific).
func BuildLabels(executorName, runID, workspacePath, component string) map[string]string {
	labels := map[string]string{
		LabelProject:      "true",
		LabelExecutorName: executorName,
		LabelRunID:        runID,
		LabelWorkspace:    workspacePath,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for a generation run.
func GenerateRunID() string {
	return uuid.New().String()
}

var invalidTagChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// maxTagLength is the Docker limit for image tags.
const maxTagLength = 128

// VersionTag builds the image tag for one version of one candidate, e.g. requests_bs4-v3.
func VersionTag(candidateKey, version string) string {
	tag := invalidTagChars.ReplaceAllString(candidateKey+"-"+version, "-")
	tag = strings.TrimLeft(tag, ".-")
	if len(tag) > maxTagLength {
		tag = tag[len(tag)-maxTagLength:]
		tag = strings.TrimLeft(tag, ".-")
	}
	if tag == "" {
		return "latest"
	}
	return tag
}

// ImageRef joins an image repository and tag.
func ImageRef(image, tag string) string {
	return fmt.Sprintf("%s:%s", image, tag)
}

// FlowContainerName returns the container name of the flow serving one
// candidate of image, e.g. microchain-flow-microchainexecutor7-requests_bs4.
func FlowContainerName(image, candidateKey string) string {
	candidate := strings.Trim(invalidTagChars.ReplaceAllString(candidateKey, "-"), ".-")
	if candidate == "" {
		return fmt.Sprintf("microchain-flow-%s", image)
	}
	return fmt.Sprintf("microchain-flow-%s-%s", image, candidate)
}
