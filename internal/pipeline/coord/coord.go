// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coord implements coordinate linearization: a pure function
// mapping a multi-dimensional environment coordinate to a single sortable
// uint64 key, and its inverse. Used only at the persistence boundary
// (EnvironmentDataWriter/OrganismDataWriter) — nothing upstream of that
// boundary should ever need a linearized key.
package coord

import (
	"github.com/evochora/streamline/internal/pipeline/perr"
)

// Shape describes an environment's extent along each dimension, e.g.
// [100, 100] for a 100x100 grid.
type Shape []int

// Linearize maps coords (one value per dimension, 0-indexed) to a single
// mixed-radix key, most-significant dimension last. The encoding is stable
// for a fixed shape: the same coords always produce the same key, and keys
// sort consistently with row-major iteration order.
func Linearize(shape Shape, coords []int) (uint64, error) {
	if len(shape) != len(coords) {
		return 0, perr.New(perr.ContractViolation, "coord: shape and coords length mismatch")
	}
	var key uint64
	var stride uint64 = 1
	for i, c := range coords {
		if c < 0 || c >= shape[i] {
			return 0, perr.New(perr.ContractViolation, "coord: coordinate out of bounds for shape")
		}
		key += uint64(c) * stride
		stride *= uint64(shape[i])
	}
	return key, nil
}

// Delinearize recovers the coordinate that Linearize(shape, coords)
// produced key from.
func Delinearize(shape Shape, key uint64) ([]int, error) {
	coords := make([]int, len(shape))
	remaining := key
	for i, extent := range shape {
		if extent <= 0 {
			return nil, perr.New(perr.ContractViolation, "coord: shape dimension must be positive")
		}
		coords[i] = int(remaining % uint64(extent))
		remaining /= uint64(extent)
	}
	if remaining != 0 {
		return nil, perr.New(perr.ContractViolation, "coord: key out of range for shape")
	}
	return coords, nil
}
