// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/service"
)

// BindingStatus is one binding's reported state.
type BindingStatus struct {
	Port              string
	Attached          string
	Direction         binding.Direction
	State             binding.State
	MessagesPerSecond float64
}

// ServiceStatus is one service's reported state.
type ServiceStatus struct {
	Name     string
	State    service.State
	Bindings []BindingStatus
}

// GetPipelineStatus returns every service's current state and binding
// snapshot, in startup-sequence order. messagesPerSecond is sourced from
// the metrics collector's latest window; a service started before the
// collector's first tick reports 0 until the first window completes.
func (o *Orchestrator) GetPipelineStatus() []ServiceStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]ServiceStatus, 0, len(o.startOrder))
	for _, name := range o.startOrder {
		svc := o.services[name]
		st := ServiceStatus{
			Name:  name,
			State: svc.runner.Lifecycle().State(),
		}
		for _, b := range svc.bindings {
			rate, _ := o.collector.RateFor(b.ServiceName(), b.Port(), b.Attached(), b.Direction())
			st.Bindings = append(st.Bindings, BindingStatus{
				Port:              b.Port(),
				Attached:          b.Attached(),
				Direction:         b.Direction(),
				State:             b.State(),
				MessagesPerSecond: rate.MessagesPerSecond,
			})
		}
		out = append(out, st)
	}
	return out
}
