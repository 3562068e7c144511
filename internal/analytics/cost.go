package analytics

// EffectiveRate resolves the hourly rate for a task: task override, then the
// assignee's rate, then the project default. Nil and zero rates are skipped.
func EffectiveRate(t Task) float64 {
	if r := t.HourlyRateOverride; r != nil && *r != 0 {
		return *r
	}
	if t.Assignee != nil {
		if r := t.Assignee.HourlyRate; r != nil && *r != 0 {
			return *r
		}
	}
	if r := t.Project.DefaultHourlyRate; r != nil && *r != 0 {
		return *r
	}
	return 0
}

// TaskCost is the monetary cost of a task. A cost override wins outright;
// otherwise hours are priced at the effective rate.
func TaskCost(t Task) float64 {
	if t.CostOverride != nil {
		return *t.CostOverride
	}
	return costHours(t) * EffectiveRate(t)
}

// PlannedCost prices the estimate at the effective rate.
func PlannedCost(t Task) float64 {
	return valueOr(t.EstimateHours, 0) * EffectiveRate(t)
}

// costHours prefers actual hours only when they are positive, so a recorded
// zero falls back to the estimate.
func costHours(t Task) float64 {
	if t.ActualHours != nil && *t.ActualHours > 0 {
		return *t.ActualHours
	}
	return valueOr(t.EstimateHours, 0)
}
