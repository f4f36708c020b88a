package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/contract"
	"github.com/R3E-Network/module_federation/internal/federation/events"
	"github.com/R3E-Network/module_federation/internal/federation/registry"
	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// manifest lists the modules of the manufacturing planner.
func manifest() []registry.Registration {
	return []registry.Registration{
		{
			Metadata: registry.Metadata{
				ID: "core-data", Name: "Core Data", Version: "1.0.0",
				Priority: state.PriorityHigh, Cacheable: true,
			},
			Factory: registry.FromFunc(newCoreData),
		},
		{
			Metadata: registry.Metadata{
				ID: "shop-floor", Name: "Shop Floor", Version: "1.2.0",
				Dependencies: []string{"core-data"},
				Contract:     contract.NameShopFloor,
				Priority:     state.PriorityHigh,
			},
			Factory: registry.FromFunc(newShopFloor),
		},
		{
			Metadata: registry.Metadata{
				ID: "scheduling", Name: "Production Scheduling", Version: "2.0.1",
				Dependencies: []string{"core-data", "shop-floor"},
				Contract:     contract.NameScheduling,
				Priority:     state.PriorityNormal,
			},
			Factory: registry.FromFunc(newScheduler),
		},
		{
			Metadata: registry.Metadata{
				ID: "quality", Name: "Quality Control", Version: "1.0.3",
				Dependencies: []string{"core-data"},
				Contract:     contract.NameQuality,
				Priority:     state.PriorityNormal,
			},
			Factory: registry.FromFunc(newQuality),
		},
		{
			Metadata: registry.Metadata{
				ID: "inventory", Name: "Inventory", Version: "0.9.0",
				Dependencies: []string{"core-data"},
				Contract:     contract.NameInventory,
				Priority:     state.PriorityNormal,
			},
			Factory: registry.FromFunc(newInventory),
		},
		{
			Metadata: registry.Metadata{
				ID: "analytics", Name: "Analytics", Version: "0.3.0",
				Dependencies: []string{"scheduling", "quality"},
				Priority:     state.PriorityLow,
				Preload:      true,
			},
			Factory: registry.FromFunc(newAnalytics),
		},
	}
}

// coreData holds the shared master data other modules read.
type coreData struct {
	lines    []string
	products map[string]time.Duration // cycle time per unit
}

func newCoreData() *coreData {
	return &coreData{
		lines: []string{"L1", "L2", "L3"},
		products: map[string]time.Duration{
			"bracket": 40 * time.Second,
			"housing": 95 * time.Second,
			"shaft":   70 * time.Second,
		},
	}
}

func (c *coreData) Initialize(_ context.Context, ic contract.InitContext) error {
	ic.Bus.SetSharedState("lines", append([]string(nil), c.lines...))
	return nil
}

type shopFloor struct {
	mu     sync.Mutex
	output map[string]int
	bus    contract.Coordinator
}

func newShopFloor() *shopFloor {
	return &shopFloor{output: make(map[string]int)}
}

func (s *shopFloor) Initialize(_ context.Context, ic contract.InitContext) error {
	s.bus = ic.Bus
	return nil
}

func (s *shopFloor) LineStatus(_ context.Context, line string) (contract.LineStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contract.LineStatus{
		Line:      line,
		Running:   true,
		Output:    s.output[line],
		UpdatedAt: time.Now(),
	}, nil
}

func (s *shopFloor) ReportOutput(_ context.Context, line string, units int) error {
	if units < 0 {
		return fmt.Errorf("negative output %d for line %s", units, line)
	}
	s.mu.Lock()
	s.output[line] += units
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Emit("line:output", map[string]any{"line": line, "units": units}, "")
	}
	return nil
}

func (s *shopFloor) Destroy(context.Context) error {
	s.mu.Lock()
	s.output = make(map[string]int)
	s.mu.Unlock()
	return nil
}

type scheduler struct {
	mu      sync.Mutex
	data    *coreData
	floor   contract.ShopFloor
	booked  map[string]time.Time // next free time per line
	jobs    map[string]contract.Slot
	horizon time.Duration
}

func newScheduler() *scheduler {
	return &scheduler{
		horizon: 24 * time.Hour,
		booked:  make(map[string]time.Time),
		jobs:    make(map[string]contract.Slot),
	}
}

func (s *scheduler) Initialize(_ context.Context, ic contract.InitContext) error {
	data, ok := ic.Dependencies["core-data"].(*coreData)
	if !ok {
		return fmt.Errorf("core-data dependency unavailable")
	}
	s.data = data
	s.floor, _ = ic.Dependencies["shop-floor"].(contract.ShopFloor)
	if hours, ok := ic.Config["horizon_hours"].(int); ok && hours > 0 {
		s.horizon = time.Duration(hours) * time.Hour
	}
	return nil
}

func (s *scheduler) ScheduleJob(ctx context.Context, job contract.Job) (contract.Slot, error) {
	cycle, ok := s.data.products[job.Product]
	if !ok {
		return contract.Slot{}, fmt.Errorf("unknown product %q", job.Product)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	best := ""
	var bestStart time.Time
	for _, line := range s.data.lines {
		start := s.booked[line]
		if start.Before(now) {
			start = now
		}
		if best == "" || start.Before(bestStart) {
			best, bestStart = line, start
		}
	}

	slot := contract.Slot{
		JobID: job.ID,
		Line:  best,
		Start: bestStart,
		End:   bestStart.Add(time.Duration(job.Quantity) * cycle),
	}
	if !job.Due.IsZero() && slot.End.After(job.Due) {
		return contract.Slot{}, fmt.Errorf("job %s cannot finish before %s", job.ID, job.Due.Format(time.RFC3339))
	}
	s.booked[best] = slot.End
	s.jobs[job.ID] = slot

	if s.floor != nil {
		if err := s.floor.ReportOutput(ctx, best, 0); err != nil {
			return contract.Slot{}, err
		}
	}
	return slot, nil
}

func (s *scheduler) CancelJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job %s not scheduled", jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *scheduler) Capacity(_ context.Context, line string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	busy := time.Until(s.booked[line])
	if busy <= 0 {
		return 1, nil
	}
	if busy >= s.horizon {
		return 0, nil
	}
	return 1 - float64(busy)/float64(s.horizon), nil
}

type quality struct {
	unsubscribe func()
}

func newQuality() *quality { return &quality{} }

// Initialize answers inspection requests sent to the quality module.
func (q *quality) Initialize(_ context.Context, ic contract.InitContext) error {
	bus := ic.Bus
	q.unsubscribe = bus.SubscribeTarget(ic.ModuleID, func(e events.Event) {
		msg, ok := e.Payload.(events.Message)
		if !ok {
			return
		}
		lot, _ := msg.Body.(string)
		result, err := q.Inspect(context.Background(), lot)
		if err != nil {
			bus.Respond(msg, map[string]any{"error": err.Error()})
			return
		}
		bus.Respond(msg, result)
	})
	return nil
}

func (q *quality) Inspect(_ context.Context, lot string) (contract.Inspection, error) {
	if lot == "" {
		return contract.Inspection{}, fmt.Errorf("empty lot")
	}
	return contract.Inspection{Lot: lot, Passed: true}, nil
}

func (q *quality) DefectRate(context.Context, string) (float64, error) {
	return 0.012, nil
}

func (q *quality) Destroy(context.Context) error {
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
	return nil
}

// newInventory builds the inventory module from plain functions.
func newInventory() contract.Capabilities {
	var mu sync.Mutex
	stock := map[string]int{"bracket": 1200, "housing": 300, "shaft": 640}
	reserved := make(map[string]int)

	return contract.Capabilities{
		"Reserve": func(product string, qty int) error {
			mu.Lock()
			defer mu.Unlock()
			if stock[product]-reserved[product] < qty {
				return fmt.Errorf("insufficient stock of %s", product)
			}
			reserved[product] += qty
			return nil
		},
		"Release": func(product string, qty int) {
			mu.Lock()
			defer mu.Unlock()
			reserved[product] = max(reserved[product]-qty, 0)
		},
		"StockLevel": func(product string) int {
			mu.Lock()
			defer mu.Unlock()
			return stock[product] - reserved[product]
		},
		"_snapshot": func() map[string]int {
			mu.Lock()
			defer mu.Unlock()
			out := make(map[string]int, len(stock))
			for k, v := range stock {
				out[k] = v - reserved[k]
			}
			return out
		},
	}
}

type analytics struct {
	mu      sync.Mutex
	outputs int
	stop    func()
}

func newAnalytics() *analytics { return &analytics{} }

func (a *analytics) Initialize(_ context.Context, ic contract.InitContext) error {
	a.stop = ic.Bus.Subscribe("line:output", func(events.Event) {
		a.mu.Lock()
		a.outputs++
		a.mu.Unlock()
	})
	return nil
}

// Outputs returns how many line output reports were observed.
func (a *analytics) Outputs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outputs
}

func (a *analytics) Destroy(context.Context) error {
	if a.stop != nil {
		a.stop()
	}
	return nil
}
