// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package rawstorage

import (
	"os"

	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
)

// Resource is the shared filesystem collaborator: a root directory under
// which every run gets its own runs/{runId}/raw_data(_dlq)/ tree. One
// Resource is built by a registry constructor and shared across services;
// each service receives its own Writer via GetWrappedResource.
type Resource struct {
	rootDir string
}

// New creates the Resource rooted at rootDir, creating it if absent.
func New(rootDir string) (*Resource, error) {
	if rootDir == "" {
		rootDir = "./run-data"
	}
	if err := os.MkdirAll(rootDir, 0o750); err != nil {
		return nil, perr.Wrap(perr.InvalidConfig, "rawstorage: create root directory", err)
	}
	return &Resource{rootDir: rootDir}, nil
}

// GetWrappedResource returns a fresh Writer scoped to ctx. Writers are never
// shared across services even though the root directory is.
func (r *Resource) GetWrappedResource(ctx resource.ResourceContext) (any, error) {
	return &Writer{
		Base:    resource.NewBase(),
		rootDir: r.rootDir,
	}, nil
}

// Close is a no-op: the filesystem itself owns no handle to release.
func (r *Resource) Close() error {
	return nil
}
