package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintlens/internal/domain"
)

func f(v float64) *float64 { return &v }

func ts(v string) *time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		panic(err)
	}
	return &t
}

var (
	alice   = &AssigneeRef{ID: "u-alice", Name: "Alice", HourlyRate: f(50)}
	bob     = &AssigneeRef{ID: "u-bob", Name: "Bob"}
	sprint1 = &SprintRef{ID: "s-1", Name: "Sprint 1"}
	sprint2 = &SprintRef{ID: "s-2", Name: "Sprint 2"}
	apollo  = ProjectRef{ID: "p-apollo", Name: "Apollo", DefaultHourlyRate: f(20)}
	gemini  = ProjectRef{ID: "p-gemini", Name: "Gemini"}
)

func TestEffectiveRatePrecedence(t *testing.T) {
	task := Task{
		HourlyRateOverride: f(90),
		Assignee:           &AssigneeRef{ID: "u", HourlyRate: f(60)},
		Project:            ProjectRef{ID: "p", DefaultHourlyRate: f(30)},
	}
	assert.Equal(t, 90.0, EffectiveRate(task))

	task.HourlyRateOverride = nil
	assert.Equal(t, 60.0, EffectiveRate(task))

	task.Assignee.HourlyRate = nil
	assert.Equal(t, 30.0, EffectiveRate(task))

	task.Project.DefaultHourlyRate = nil
	assert.Equal(t, 0.0, EffectiveRate(task))
}

func TestEffectiveRateSkipsZeroRates(t *testing.T) {
	task := Task{
		HourlyRateOverride: f(0),
		Assignee:           &AssigneeRef{ID: "u", HourlyRate: f(0)},
		Project:            ProjectRef{ID: "p", DefaultHourlyRate: f(25)},
	}
	assert.Equal(t, 25.0, EffectiveRate(task))
}

func TestTaskCostOverrideBypassesRate(t *testing.T) {
	task := Task{CostOverride: f(1234.5), ActualHours: f(10), EstimateHours: f(4), HourlyRateOverride: f(100)}
	assert.Equal(t, 1234.5, TaskCost(task))

	noRate := Task{CostOverride: f(77), ActualHours: f(10)}
	assert.Equal(t, 0.0, EffectiveRate(noRate))
	assert.Equal(t, 77.0, TaskCost(noRate))
}

func TestTaskCostHoursFallback(t *testing.T) {
	task := Task{ActualHours: f(0), EstimateHours: f(5), HourlyRateOverride: f(10)}
	assert.Equal(t, 50.0, TaskCost(task), "zero actual hours fall back to the estimate")

	task.ActualHours = f(3)
	assert.Equal(t, 30.0, TaskCost(task))

	task.ActualHours = nil
	task.EstimateHours = nil
	assert.Equal(t, 0.0, TaskCost(task))
}

func TestProductivityEmpty(t *testing.T) {
	report := Productivity(nil)
	assert.Equal(t, ProductivityGeneral{}, report.General)
	require.NotNil(t, report.ByMember)
	require.NotNil(t, report.BySprint)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"general": {"totalTasks":0,"completedTasks":0,"totalPlannedHours":0,"totalActualHours":0,"completionRate":0,"efficiency":0},
		"byMember": [],
		"bySprint": []
	}`, string(data))
}

func TestProductivityCompletionRateRounding(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, Project: apollo},
		{ID: "2", Status: domain.StatusTodo, Project: apollo},
		{ID: "3", Status: domain.StatusBlocked, Project: apollo},
	}
	report := Productivity(tasks)
	assert.Equal(t, 3, report.General.TotalTasks)
	assert.Equal(t, 1, report.General.CompletedTasks)
	assert.Equal(t, 33.33, report.General.CompletionRate)
}

func TestProductivityGroups(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, EstimateHours: f(4), ActualHours: f(5), Assignee: alice, Sprint: sprint1, Project: apollo},
		{ID: "2", Status: domain.StatusDone, EstimateHours: f(3), Assignee: alice, Sprint: sprint2, Project: apollo},
		{ID: "3", Status: domain.StatusInProgress, EstimateHours: f(2), ActualHours: f(1), Assignee: bob, Sprint: sprint1, Project: apollo},
		{ID: "4", Status: domain.StatusDone, EstimateHours: f(8), ActualHours: f(0), Assignee: bob, Project: apollo},
		{ID: "5", Status: domain.StatusTodo, EstimateHours: f(1), Project: apollo},
	}
	report := Productivity(tasks)

	assert.Equal(t, ProductivityGeneral{
		TotalTasks:        5,
		CompletedTasks:    3,
		TotalPlannedHours: 18,
		TotalActualHours:  6,
		CompletionRate:    60,
		Efficiency:        33.33,
	}, report.General)

	require.Len(t, report.ByMember, 2)
	assert.Equal(t, MemberProductivity{
		MemberID: "u-alice", MemberName: "Alice",
		TotalTasks: 2, CompletedTasks: 2,
		PlannedHours: 7, ActualHours: 5,
		Velocity:       8, // 5 actual + 3 estimate fallback
		CompletionRate: 100,
	}, report.ByMember[0])
	assert.Equal(t, MemberProductivity{
		MemberID: "u-bob", MemberName: "Bob",
		TotalTasks: 2, CompletedTasks: 1,
		PlannedHours: 10, ActualHours: 1,
		Velocity:       0, // explicit zero actual is kept
		CompletionRate: 50,
	}, report.ByMember[1])

	require.Len(t, report.BySprint, 2)
	assert.Equal(t, "s-1", report.BySprint[0].SprintID)
	assert.Equal(t, 2, report.BySprint[0].TotalTasks)
	assert.Equal(t, 1, report.BySprint[0].CompletedTasks)
	assert.Equal(t, 5.0, report.BySprint[0].Velocity)
	assert.Equal(t, "Sprint 2", report.BySprint[1].SprintName)
}

func TestUnassignedAndUnsprintedOnlyInTotals(t *testing.T) {
	tasks := []Task{{ID: "orphan", Status: domain.StatusDone, EstimateHours: f(2), Project: apollo}}
	prod := Productivity(tasks)
	assert.Equal(t, 1, prod.General.TotalTasks)
	assert.Empty(t, prod.ByMember)
	assert.Empty(t, prod.BySprint)

	costs := Costs(tasks)
	assert.Len(t, costs.ByProject, 1)
	assert.Empty(t, costs.ByMember)

	quality := Quality(tasks)
	assert.Equal(t, 1, quality.General.TotalTasks)
	assert.Empty(t, quality.BySprint)
}

func TestCostsVarianceSign(t *testing.T) {
	overrun := Task{ID: "o", EstimateHours: f(10), ActualHours: f(15), HourlyRateOverride: f(10), Assignee: bob, Project: gemini}
	report := Costs([]Task{overrun})
	assert.Equal(t, CostTotals{Planned: 100, Actual: 150, Variance: 50}, report.Total)

	underrun := Task{ID: "u", EstimateHours: f(15), ActualHours: f(10), HourlyRateOverride: f(10), Project: gemini}
	report = Costs([]Task{underrun})
	assert.Equal(t, CostTotals{Planned: 150, Actual: 100, Variance: -50}, report.Total)
}

func TestCostsGroups(t *testing.T) {
	tasks := []Task{
		{ID: "1", EstimateHours: f(2), ActualHours: f(3), Assignee: alice, Project: apollo},     // rate 50: 100 / 150
		{ID: "2", EstimateHours: f(4), Project: apollo},                                         // rate 20: 80 / 80
		{ID: "3", EstimateHours: f(1), CostOverride: f(500), Assignee: alice, Project: gemini}, // rate 50: 50 / 500
		{ID: "4", EstimateHours: f(6), Assignee: bob, Project: gemini},                          // rate 0
	}
	report := Costs(tasks)
	assert.Equal(t, CostTotals{Planned: 230, Actual: 730, Variance: 500}, report.Total)

	require.Len(t, report.ByProject, 2)
	assert.Equal(t, ProjectCost{ProjectID: "p-apollo", ProjectName: "Apollo", Planned: 180, Actual: 230, Variance: 50}, report.ByProject[0])
	assert.Equal(t, ProjectCost{ProjectID: "p-gemini", ProjectName: "Gemini", Planned: 50, Actual: 500, Variance: 450}, report.ByProject[1])

	require.Len(t, report.ByMember, 2)
	assert.Equal(t, MemberCost{MemberID: "u-alice", MemberName: "Alice", Planned: 150, Actual: 650, Variance: 500}, report.ByMember[0])
	assert.Equal(t, MemberCost{MemberID: "u-bob", MemberName: "Bob"}, report.ByMember[1])
}

func TestCostViewsAgree(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, EstimateHours: f(2.5), ActualHours: f(3.25), Assignee: alice, Project: apollo},
		{ID: "2", Status: domain.StatusTodo, EstimateHours: f(1.333), Project: apollo},
		{ID: "3", Status: domain.StatusBlocked, CostOverride: f(42.42), Project: apollo},
	}
	costs := Costs(tasks)
	summary := Summarize(apollo, tasks)
	assert.Equal(t, costs.Total.Planned, summary.PlannedCost)
	assert.Equal(t, costs.Total.Actual, summary.ActualCost)
	assert.Equal(t, costs.Total.Variance, summary.Variance)
}

func TestTimingPredicate(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, ActualHours: f(6), Assignee: alice, Project: apollo,
			StartDate: ts("2024-01-01T00:00:00Z"), DueDate: ts("2024-01-03T00:00:00Z")},
		{ID: "2", Status: domain.StatusDone, EstimateHours: f(4), Assignee: alice, Project: apollo,
			StartDate: ts("2024-01-01T00:00:00Z"), DueDate: ts("2024-01-04T01:00:00Z")},
		{ID: "3", Status: domain.StatusDone, ActualHours: f(9), Assignee: alice, Project: apollo,
			StartDate: ts("2024-01-01T00:00:00Z")},
		{ID: "4", Status: domain.StatusInProgress, Assignee: bob, Project: apollo,
			StartDate: ts("2024-01-01T00:00:00Z"), DueDate: ts("2024-01-09T00:00:00Z")},
		{ID: "5", Status: domain.StatusDone, Project: apollo,
			StartDate: ts("2024-01-01T00:00:00Z"), DueDate: ts("2024-01-01T12:00:00Z")},
	}
	report := Timing(tasks)

	require.Len(t, report.ByStatus, 1)
	// 2 + 4 + 1 days over three qualifying tasks.
	assert.Equal(t, StatusTime{Status: domain.StatusDone, AvgDays: 2.33, Count: 3}, report.ByStatus[0])

	require.Len(t, report.ByMember, 1)
	assert.Equal(t, MemberTime{MemberID: "u-alice", MemberName: "Alice", AvgDays: 3, Count: 2, TotalHours: 10}, report.ByMember[0])
}

func TestTimingKeepsNegativeSpans(t *testing.T) {
	task := Task{ID: "inv", Status: domain.StatusDone, Project: apollo,
		StartDate: ts("2024-01-05T00:00:00Z"), DueDate: ts("2024-01-03T12:00:00Z")}
	days, ok := ElapsedDays(task)
	require.True(t, ok)
	assert.Equal(t, -1.0, days)

	report := Timing([]Task{task})
	require.Len(t, report.ByStatus, 1)
	assert.Equal(t, -1.0, report.ByStatus[0].AvgDays)
}

func TestTimingEmpty(t *testing.T) {
	report := Timing(nil)
	assert.NotNil(t, report.ByStatus)
	assert.NotNil(t, report.ByMember)
	assert.Empty(t, report.ByStatus)
}

func TestQuality(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, Sprint: sprint1, Project: apollo},
		{ID: "2", Status: domain.StatusBlocked, Sprint: sprint1, Project: apollo},
		{ID: "3", Status: domain.StatusBlocked, Sprint: sprint2, Project: apollo},
		{ID: "4", Status: domain.StatusReview, Project: apollo},
	}
	report := Quality(tasks)
	assert.Equal(t, QualityGeneral{TotalTasks: 4, CompletedTasks: 1, BlockedTasks: 2, CompletionRate: 25, BlockRate: 50}, report.General)
	require.Len(t, report.BySprint, 2)
	assert.Equal(t, SprintQuality{SprintID: "s-1", SprintName: "Sprint 1", TotalTasks: 2, CompletedTasks: 1, BlockedTasks: 1, CompletionRate: 50}, report.BySprint[0])
	assert.Equal(t, SprintQuality{SprintID: "s-2", SprintName: "Sprint 2", TotalTasks: 1, BlockedTasks: 1}, report.BySprint[1])

	empty := Quality(nil)
	assert.Equal(t, QualityGeneral{}, empty.General)
	assert.NotNil(t, empty.BySprint)
}

func TestHeatmap(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, CreatedAt: *ts("2024-02-02T23:30:00-02:00")}, // 2024-02-03 UTC
		{ID: "2", Status: domain.StatusReview, CreatedAt: *ts("2024-02-01T10:00:00Z")},
		{ID: "3", Status: domain.StatusInProgress, CreatedAt: *ts("2024-02-01T11:00:00Z")},
		{ID: "4", Status: domain.StatusTodo, CreatedAt: *ts("2024-02-01T12:00:00Z")},
	}
	report := Heatmap(tasks)
	assert.Equal(t, []HeatmapDay{
		{Date: "2024-02-01", Created: 3, InProgress: 2},
		{Date: "2024-02-03", Created: 1, Completed: 1},
	}, report.Heatmap)

	assert.NotNil(t, Heatmap(nil).Heatmap)
}

func TestCompareProjectsIncludesIdleProjects(t *testing.T) {
	tasks := []Task{
		{ID: "1", Status: domain.StatusDone, EstimateHours: f(2), ActualHours: f(2), Project: apollo},
		{ID: "2", Status: domain.StatusBlocked, EstimateHours: f(1), Project: apollo},
	}
	report := CompareProjects([]ProjectRef{gemini, apollo}, tasks)
	require.Len(t, report.Comparison, 2)

	idle := report.Comparison[0]
	assert.Equal(t, "p-gemini", idle.ProjectID)
	assert.Equal(t, 0, idle.TotalTasks)
	assert.Equal(t, 0.0, idle.CompletionRate)
	assert.Len(t, idle.StatusCounts, len(domain.TaskStatuses))

	busy := report.Comparison[1]
	assert.Equal(t, 2, busy.TotalTasks)
	assert.Equal(t, 1, busy.BlockedTasks)
	assert.Equal(t, 50.0, busy.CompletionRate)
	assert.Equal(t, 60.0, busy.PlannedCost)
	assert.Equal(t, 60.0, busy.ActualCost)
	assert.Equal(t, 0.0, busy.Variance)
	assert.Equal(t, 1, busy.StatusCounts[domain.StatusDone])
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, Round2(100.0/3))
	assert.Equal(t, 66.67, Round2(200.0/3))
	assert.Equal(t, -2.5, Round2(-2.5))
	assert.Equal(t, 0.3, Round2(0.1+0.2))
}
