// Package contract defines the capability contracts modules are checked
// against, the instrumenting decorators for known contracts, and the
// lifecycle hooks a module may implement.
//
// A contract is either an Interface contract, backed by a Go interface type
// and checked with the type system, or a Methods contract, a list of method
// names looked up at runtime on the instance or its Capabilities map.
// Validation is advisory: a violation is reported, never enforced.
package contract

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/R3E-Network/module_federation/internal/federation/monitor"
)

// Well-known contract names.
const (
	NameScheduling = "scheduling"
	NameShopFloor  = "shop-floor"
	NameQuality    = "quality"
	NameInventory  = "inventory"
)

// ErrContractViolation is wrapped by ContractViolation.
var ErrContractViolation = errors.New("contract violation")

// ContractViolation lists the methods an instance is missing.
type ContractViolation struct {
	ModuleID string
	Contract string
	Missing  []string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("module %s does not satisfy contract %s: missing %s",
		e.ModuleID, e.Contract, strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrContractViolation.
func (e *ContractViolation) Unwrap() error {
	return ErrContractViolation
}

// Kind distinguishes how a contract is checked.
type Kind int

const (
	KindInterface Kind = iota
	KindMethods
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindMethods:
		return "methods"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Decorator returns an instrumented instance with the same surface.
type Decorator func(mon *monitor.Monitor, moduleID string, instance any) any

// Contract is a named capability surface.
type Contract struct {
	Name     string
	Kind     Kind
	iface    reflect.Type
	methods  []string
	decorate Decorator
}

// Interface creates a contract backed by interface T. decorate may be nil.
func Interface[T any](name string, decorate func(mon *monitor.Monitor, moduleID string, impl T) T) Contract {
	iface := reflect.TypeOf((*T)(nil)).Elem()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("contract %s: %s is not an interface", name, iface))
	}

	methods := make([]string, 0, iface.NumMethod())
	for i := 0; i < iface.NumMethod(); i++ {
		methods = append(methods, iface.Method(i).Name)
	}

	c := Contract{Name: name, Kind: KindInterface, iface: iface, methods: methods}
	if decorate != nil {
		c.decorate = func(mon *monitor.Monitor, moduleID string, instance any) any {
			impl, ok := instance.(T)
			if !ok {
				return instance
			}
			return decorate(mon, moduleID, impl)
		}
	}
	return c
}

// Methods creates a contract defined by method names.
func Methods(name string, methods ...string) Contract {
	return Contract{Name: name, Kind: KindMethods, methods: append([]string(nil), methods...)}
}

// RequiredMethods returns the method names of the contract.
func (c Contract) RequiredMethods() []string {
	return append([]string(nil), c.methods...)
}

// Missing returns the required methods instance does not provide, sorted.
func (c Contract) Missing(instance any) []string {
	if instance == nil {
		return c.RequiredMethods()
	}
	if c.Kind == KindInterface && reflect.TypeOf(instance).Implements(c.iface) {
		return nil
	}

	var missing []string
	for _, name := range c.methods {
		if !hasMethod(instance, name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func hasMethod(instance any, name string) bool {
	if caps, ok := instance.(Capabilities); ok {
		v, ok := caps[name]
		return ok && v != nil && reflect.TypeOf(v).Kind() == reflect.Func
	}
	_, ok := reflect.TypeOf(instance).MethodByName(name)
	return ok
}

// Table maps contract names to contracts.
type Table struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

// NewTable creates a table holding contracts.
func NewTable(contracts ...Contract) *Table {
	t := &Table{contracts: make(map[string]Contract, len(contracts))}
	for _, c := range contracts {
		t.contracts[c.Name] = c
	}
	return t
}

// DefaultTable returns the manufacturing contracts.
func DefaultTable() *Table {
	return NewTable(
		Interface[Scheduler](NameScheduling, DecorateScheduler),
		Interface[ShopFloor](NameShopFloor, DecorateShopFloor),
		Interface[QualityControl](NameQuality, DecorateQuality),
		Methods(NameInventory, "Reserve", "Release", "StockLevel"),
	)
}

// Register adds or replaces a contract.
func (t *Table) Register(c Contract) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contracts[c.Name] = c
}

// Lookup returns the contract registered under name.
func (t *Table) Lookup(name string) (Contract, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contracts[name]
	return c, ok
}

// Names returns the registered contract names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.contracts))
	for name := range t.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks instance against the named contract. Unknown or empty
// contract names always pass.
func (t *Table) Validate(moduleID, name string, instance any) error {
	if name == "" {
		return nil
	}
	c, ok := t.Lookup(name)
	if !ok {
		return nil
	}
	if missing := c.Missing(instance); len(missing) > 0 {
		return &ContractViolation{ModuleID: moduleID, Contract: name, Missing: missing}
	}
	return nil
}

// Instrument returns instance with every exposed call recorded by mon. A
// known interface contract uses its decorator; a Capabilities map has each
// function wrapped. Other instances are returned unchanged and the boolean
// is false.
func (t *Table) Instrument(mon *monitor.Monitor, moduleID, name string, instance any) (any, bool) {
	if c, ok := t.Lookup(name); ok && c.decorate != nil && c.Kind == KindInterface &&
		instance != nil && reflect.TypeOf(instance).Implements(c.iface) {
		return c.decorate(mon, moduleID, instance), true
	}
	if caps, ok := instance.(Capabilities); ok {
		return caps.Instrument(mon, moduleID), true
	}
	return instance, false
}
