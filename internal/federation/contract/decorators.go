package contract

import (
	"context"

	"github.com/R3E-Network/module_federation/internal/federation/monitor"
)

type instrumentedScheduler struct {
	next     Scheduler
	mon      *monitor.Monitor
	moduleID string
}

// DecorateScheduler records every Scheduler call against moduleID.
func DecorateScheduler(mon *monitor.Monitor, moduleID string, next Scheduler) Scheduler {
	return &instrumentedScheduler{next: next, mon: mon, moduleID: moduleID}
}

func (s *instrumentedScheduler) ScheduleJob(ctx context.Context, job Job) (Slot, error) {
	return monitor.Call(s.mon, s.moduleID, "ScheduleJob", func() (Slot, error) {
		return s.next.ScheduleJob(ctx, job)
	})
}

func (s *instrumentedScheduler) CancelJob(ctx context.Context, jobID string) error {
	return s.mon.Track(s.moduleID, "CancelJob", func() error {
		return s.next.CancelJob(ctx, jobID)
	})
}

func (s *instrumentedScheduler) Capacity(ctx context.Context, line string) (float64, error) {
	return monitor.Call(s.mon, s.moduleID, "Capacity", func() (float64, error) {
		return s.next.Capacity(ctx, line)
	})
}

// Unwrap returns the undecorated scheduler.
func (s *instrumentedScheduler) Unwrap() any { return s.next }

type instrumentedShopFloor struct {
	next     ShopFloor
	mon      *monitor.Monitor
	moduleID string
}

// DecorateShopFloor records every ShopFloor call against moduleID.
func DecorateShopFloor(mon *monitor.Monitor, moduleID string, next ShopFloor) ShopFloor {
	return &instrumentedShopFloor{next: next, mon: mon, moduleID: moduleID}
}

func (s *instrumentedShopFloor) LineStatus(ctx context.Context, line string) (LineStatus, error) {
	return monitor.Call(s.mon, s.moduleID, "LineStatus", func() (LineStatus, error) {
		return s.next.LineStatus(ctx, line)
	})
}

func (s *instrumentedShopFloor) ReportOutput(ctx context.Context, line string, units int) error {
	return s.mon.Track(s.moduleID, "ReportOutput", func() error {
		return s.next.ReportOutput(ctx, line, units)
	})
}

// Unwrap returns the undecorated shop floor.
func (s *instrumentedShopFloor) Unwrap() any { return s.next }

type instrumentedQuality struct {
	next     QualityControl
	mon      *monitor.Monitor
	moduleID string
}

// DecorateQuality records every QualityControl call against moduleID.
func DecorateQuality(mon *monitor.Monitor, moduleID string, next QualityControl) QualityControl {
	return &instrumentedQuality{next: next, mon: mon, moduleID: moduleID}
}

func (q *instrumentedQuality) Inspect(ctx context.Context, lot string) (Inspection, error) {
	return monitor.Call(q.mon, q.moduleID, "Inspect", func() (Inspection, error) {
		return q.next.Inspect(ctx, lot)
	})
}

func (q *instrumentedQuality) DefectRate(ctx context.Context, product string) (float64, error) {
	return monitor.Call(q.mon, q.moduleID, "DefectRate", func() (float64, error) {
		return q.next.DefectRate(ctx, product)
	})
}

// Unwrap returns the undecorated quality module.
func (q *instrumentedQuality) Unwrap() any { return q.next }

// Unwrap returns the instance beneath any instrumentation decorators.
func Unwrap(instance any) any {
	for {
		u, ok := instance.(interface{ Unwrap() any })
		if !ok {
			return instance
		}
		instance = u.Unwrap()
	}
}
