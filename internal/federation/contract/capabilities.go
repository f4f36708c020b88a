package contract

import (
	"sort"
	"strings"

	"github.com/R3E-Network/module_federation/internal/federation/monitor"
)

// Capabilities is a module exposed as named functions and values. It is the
// shape used by modules assembled at runtime rather than as a Go type.
type Capabilities map[string]any

// Names returns the capability names, sorted.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func returns the named capability when it is a function of type F.
func Func[F any](c Capabilities, name string) (F, bool) {
	fn, ok := c[name].(F)
	return fn, ok
}

// IsInternal reports whether a capability name is private to the module.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, "_")
}

// Instrument returns a copy of c with every function wrapped by mon.
// Internal names and lifecycle hooks are copied unwrapped.
func (c Capabilities) Instrument(mon *monitor.Monitor, moduleID string) Capabilities {
	out := make(Capabilities, len(c))
	for name, v := range c {
		if IsInternal(name) || name == HookInitialize || name == HookDestroy {
			out[name] = v
			continue
		}
		out[name] = mon.WrapMethod(moduleID, name, v)
	}
	return out
}
