// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"
)

// splitCapabilityRef parses a "<capability>:<resourceName>" service.resources
// entry into its resource name.
func splitCapabilityRef(ref string) (resourceName string, err error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("resource reference %q must be \"<capability>:<resourceName>\"", ref)
	}
	return parts[1], nil
}

// CapabilityOf returns the capability half of a "<capability>:<resourceName>"
// reference, used by the orchestrator to select which interface to
// type-check the wrapper against.
func CapabilityOf(ref string) string {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// Split parses a service.resources entry into its capability and resource
// name halves, used by the orchestrator when resolving the resources map at
// build time.
func Split(ref string) (capability, resourceName string, err error) {
	resourceName, err = splitCapabilityRef(ref)
	if err != nil {
		return "", "", err
	}
	return CapabilityOf(ref), resourceName, nil
}

func errUndefinedChannel(name string) error {
	return fmt.Errorf("references undefined channel %q", name)
}

func errUndefinedResource(name string) error {
	return fmt.Errorf("references undefined resource %q", name)
}
