// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

// OptionsView is the typed options tree a channel, resource, or service
// constructor receives, rooted at that component's own "options" subtree.
// It is backed by koanf, the same library internal/config uses to resolve
// the pipeline file itself, so a component that wants the raw tree for a
// nested Unmarshal has it available via Koanf.
type OptionsView struct {
	k *koanf.Koanf
}

// NewOptionsView builds a view over options, which may be nil for a
// component declared with no options subtree at all.
func NewOptionsView(options map[string]any) (*OptionsView, error) {
	k := koanf.New(".")
	if options != nil {
		if err := k.Load(confmap.Provider(options, "."), nil); err != nil {
			return nil, perr.Wrap(perr.InvalidConfig, "orchestrator: load options", err)
		}
	}
	return &OptionsView{k: k}, nil
}

// Koanf exposes the underlying tree for constructors that want to
// Unmarshal a nested struct directly rather than read scalars one at a time.
func (o *OptionsView) Koanf() *koanf.Koanf { return o.k }

// GetString returns path's value, or def if absent.
func (o *OptionsView) GetString(path, def string) string {
	if !o.k.Exists(path) {
		return def
	}
	return o.k.String(path)
}

// GetInt returns path's value, or def if absent.
func (o *OptionsView) GetInt(path string, def int) int {
	if !o.k.Exists(path) {
		return def
	}
	return o.k.Int(path)
}

// GetBool returns path's value, or def if absent.
func (o *OptionsView) GetBool(path string, def bool) bool {
	if !o.k.Exists(path) {
		return def
	}
	return o.k.Bool(path)
}

// GetDuration returns path's value, or def if absent. Durations may be
// expressed in YAML as a plain integer (milliseconds, by convention for
// this runtime's *Ms-suffixed option names) or a Go duration string.
func (o *OptionsView) GetDuration(path string, def time.Duration) time.Duration {
	if !o.k.Exists(path) {
		return def
	}
	return o.k.Duration(path)
}

// GetStringSlice returns path's value, or def if absent.
func (o *OptionsView) GetStringSlice(path string, def []string) []string {
	if !o.k.Exists(path) {
		return def
	}
	return o.k.Strings(path)
}
