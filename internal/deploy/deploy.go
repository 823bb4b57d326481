// Package deploy builds executor versions into container images and serves
// successful ones as flows.
package deploy

import (
	"context"
)

// Deployer publishes one executor version. The returned log is raw build output;
// classify it with ProcessErrorMessage. A non-nil error means the backend itself
// failed, not the executor.
type Deployer interface {
	Push(ctx context.Context, artifactPath string) (string, error)
}

// FlowDeployer serves a built executor and returns the host clients connect to.
type FlowDeployer interface {
	// executorPath is the version directory that was built, e.g.
	// executor/requests_bs4/v2. Each candidate is served independently.
	DeployFlow(ctx context.Context, executorName, executorPath, flowDir string) (string, error)
}
