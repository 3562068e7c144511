// Package analytics reduces task snapshots into productivity, cost, time,
// quality and activity reports. Every function here is pure: callers load the
// tenant-scoped task set and hand it over; nothing is cached between calls.
package analytics

import (
	"math"
	"time"

	"sprintlens/internal/domain"
)

// Task is one task joined with the relations the reports need.
type Task struct {
	ID                 string
	Status             domain.TaskStatus
	EstimateHours      *float64
	ActualHours        *float64
	HourlyRateOverride *float64
	CostOverride       *float64
	Assignee           *AssigneeRef
	Sprint             *SprintRef
	Project            ProjectRef
	CreatedAt          time.Time
	StartDate          *time.Time
	DueDate            *time.Time
}

type AssigneeRef struct {
	ID         string
	Name       string
	HourlyRate *float64
}

type SprintRef struct {
	ID   string
	Name string
}

type ProjectRef struct {
	ID                string
	Name              string
	DefaultHourlyRate *float64
}

func (t Task) done() bool { return t.Status == domain.StatusDone }

// Round2 rounds half away from zero at the second decimal.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return Round2(part / whole * 100)
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// loggedHours is actual hours, else estimate, else zero. Unlike costHours an
// explicit zero actual is kept.
func loggedHours(t Task) float64 {
	if t.ActualHours != nil {
		return *t.ActualHours
	}
	return valueOr(t.EstimateHours, 0)
}

// groups keeps per-key accumulators in first-seen order.
type groups[A any] struct {
	order []string
	items map[string]*A
}

func newGroups[A any]() *groups[A] {
	return &groups[A]{items: map[string]*A{}}
}

func (g *groups[A]) get(key string, init func() A) *A {
	if acc, ok := g.items[key]; ok {
		return acc
	}
	acc := init()
	g.items[key] = &acc
	g.order = append(g.order, key)
	return &acc
}

func (g *groups[A]) each(fn func(acc *A)) {
	for _, key := range g.order {
		fn(g.items[key])
	}
}
