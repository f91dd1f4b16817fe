// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

// EnvPrefix namespaces environment overrides for a pipeline file, giving
// environment variables precedence over the file, which in turn overrides
// the built-in defaults.
const EnvPrefix = "STREAMLINE_"

// Load resolves a pipeline topology from path, layering a YAML file with
// STREAMLINE_-prefixed environment overrides, then validates the result.
// Returns a perr.InvalidConfig error on any load, decode, or validation
// failure so orchestrator.Build can treat it uniformly.
func Load(path string) (*PipelineConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, perr.Wrap(perr.InvalidConfig, "config: pipeline file not found", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, perr.Wrap(perr.InvalidConfig, "config: parse pipeline file", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, perr.Wrap(perr.InvalidConfig, "config: load environment overrides", err)
	}

	cfg := &PipelineConfig{Metrics: DefaultMetricsConfig()}
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				stringOrSliceToPortAttachmentHook,
			),
		},
	}
	if err := k.UnmarshalWithConf("", cfg, unmarshalConf); err != nil {
		return nil, perr.Wrap(perr.InvalidConfig, "config: decode pipeline tree", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringOrSliceToPortAttachmentHook normalizes an inputs/outputs entry that
// YAML may express as a bare string ("chanA") or a list (["chanA", "chanB"])
// into the single PortAttachment shape the orchestrator consumes.
func stringOrSliceToPortAttachmentHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(PortAttachment{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return PortAttachment{v}, nil
	case []string:
		return PortAttachment(v), nil
	case []any:
		out := make(PortAttachment, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("port attachment entries must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return data, nil
	}
}

// envTransformFunc strips the STREAMLINE_ prefix and lowercases the
// remainder so STREAMLINE_METRICS_ENABLED maps to metrics.enabled. Only the
// top-level scalars (metrics.*) are realistically overridden this way; the
// channels/resources/services trees are expected to come from the file.
func envTransformFunc(key string) string {
	trimmed := strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(trimmed), "_", ".")
}
