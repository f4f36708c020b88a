package monitor

// SetBudget overrides the budget of a module.
func (m *Monitor) SetBudget(id string, b Budget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[id] = b
}

// BudgetFor returns the budget applied to id: the override when set, else the
// core or default budget.
func (m *Monitor) BudgetFor(id string) Budget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budgetForLocked(id)
}

func (m *Monitor) budgetForLocked(id string) Budget {
	if b, ok := m.budgets[id]; ok {
		return b
	}
	if IsCoreModule(id) {
		return m.config.CoreBudget
	}
	return m.config.DefaultBudget
}

// CheckBudget compares the live metrics of id against its budget. Init time
// and memory are checked independently, so zero, one or two violations are
// returned. It has no side effects, so reports may poll it freely.
func (m *Monitor) CheckBudget(id string) []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkBudgetLocked(id)
}

func (m *Monitor) checkBudgetLocked(id string) []Violation {
	mt, ok := m.metrics[id]
	if !ok {
		return nil
	}
	b := m.budgetForLocked(id)

	var violations []Violation
	initMs := float64(mt.InitializationTime.Microseconds()) / 1000
	budgetMs := float64(b.MaxInitTime.Microseconds()) / 1000
	if sev, ok := classify(initMs, budgetMs, b.WarningThreshold); ok {
		violations = append(violations, Violation{
			ModuleID: id,
			Metric:   MetricInitializationTime,
			Actual:   initMs,
			Budget:   budgetMs,
			Severity: sev,
		})
	}
	if sev, ok := classify(float64(mt.MemoryUsage), float64(b.MaxMemoryUsage), b.WarningThreshold); ok {
		violations = append(violations, Violation{
			ModuleID: id,
			Metric:   MetricMemoryUsage,
			Actual:   float64(mt.MemoryUsage),
			Budget:   float64(b.MaxMemoryUsage),
			Severity: sev,
		})
	}
	return violations
}

// classify returns the severity of actual against limit. A zero limit is
// unbounded.
func classify(actual, limit, threshold float64) (Severity, bool) {
	if limit <= 0 {
		return "", false
	}
	if actual >= limit {
		return SeverityError, true
	}
	if threshold > 0 && threshold < 1 && actual > limit*threshold {
		return SeverityWarning, true
	}
	return "", false
}
