// File: control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime gauge probes for internal inspection. Components register
// snapshot functions; operators dump the collected state or stream it
// through a structured logger.

package control

import (
	"log/slog"
	"sort"
	"sync"
)

// GaugeProbe reports one component's integer gauges: queue depths, member
// volumes, live counts. Invoked from the dumping goroutine, so it must be
// safe to call concurrently with the component's own work.
type GaugeProbe func() map[string]int

// DebugProbes is a registry of per-component gauge probes.
type DebugProbes struct {
	mu     sync.RWMutex
	gauges map[string]GaugeProbe
}

// NewDebugProbes creates an empty registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{gauges: make(map[string]GaugeProbe)}
}

// RegisterGauges installs the probe for component, replacing any previous
// registration under the same name.
func (dp *DebugProbes) RegisterGauges(component string, fn GaugeProbe) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.gauges[component] = fn
}

// Dump snapshots every registered component.
func (dp *DebugProbes) Dump() map[string]map[string]int {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]map[string]int, len(dp.gauges))
	for component, fn := range dp.gauges {
		out[component] = fn()
	}
	return out
}

// Log emits one debug-level record per component, gauges as sorted attrs.
func (dp *DebugProbes) Log(l *slog.Logger) {
	for component, gauges := range dp.Dump() {
		keys := make([]string, 0, len(gauges))
		for k := range gauges {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			attrs = append(attrs, k, gauges[k])
		}
		l.Debug("probe "+component, attrs...)
	}
}
