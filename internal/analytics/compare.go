package analytics

import "sprintlens/internal/domain"

type ProjectSummary struct {
	ProjectID      string                    `json:"projectId"`
	ProjectName    string                    `json:"projectName"`
	TotalTasks     int                       `json:"totalTasks"`
	CompletedTasks int                       `json:"completedTasks"`
	BlockedTasks   int                       `json:"blockedTasks"`
	CompletionRate float64                   `json:"completionRate"`
	PlannedHours   float64                   `json:"plannedHours"`
	ActualHours    float64                   `json:"actualHours"`
	PlannedCost    float64                   `json:"plannedCost"`
	ActualCost     float64                   `json:"actualCost"`
	Variance       float64                   `json:"variance"`
	StatusCounts   map[domain.TaskStatus]int `json:"statusCounts"`
}

type ComparisonReport struct {
	Comparison []ProjectSummary `json:"comparison"`
}

type projectTally struct {
	ref          ProjectRef
	outcome      outcome
	plannedHours float64
	actualHours  float64
	plannedCost  float64
	actualCost   float64
	statuses     map[domain.TaskStatus]int
}

func newProjectTally(ref ProjectRef) projectTally {
	statuses := make(map[domain.TaskStatus]int, len(domain.TaskStatuses))
	for _, s := range domain.TaskStatuses {
		statuses[s] = 0
	}
	return projectTally{ref: ref, statuses: statuses}
}

func (p *projectTally) add(t Task) {
	p.outcome.add(t)
	p.statuses[t.Status]++
	p.plannedHours += valueOr(t.EstimateHours, 0)
	p.actualHours += valueOr(t.ActualHours, 0)
	p.plannedCost += PlannedCost(t)
	p.actualCost += TaskCost(t)
}

func (p *projectTally) summary() ProjectSummary {
	return ProjectSummary{
		ProjectID:      p.ref.ID,
		ProjectName:    p.ref.Name,
		TotalTasks:     p.outcome.total,
		CompletedTasks: p.outcome.completed,
		BlockedTasks:   p.outcome.blocked,
		CompletionRate: percent(float64(p.outcome.completed), float64(p.outcome.total)),
		PlannedHours:   Round2(p.plannedHours),
		ActualHours:    Round2(p.actualHours),
		PlannedCost:    Round2(p.plannedCost),
		ActualCost:     Round2(p.actualCost),
		Variance:       Round2(p.actualCost - p.plannedCost),
		StatusCounts:   p.statuses,
	}
}

// Summarize rolls up the tasks of a single project. Tasks belonging to other
// projects are ignored.
func Summarize(project ProjectRef, tasks []Task) ProjectSummary {
	tally := newProjectTally(project)
	for _, t := range tasks {
		if t.Project.ID != project.ID {
			continue
		}
		tally.add(t)
	}
	return tally.summary()
}

// CompareProjects summarizes every listed project, in the given order,
// including projects without tasks.
func CompareProjects(projects []ProjectRef, tasks []Task) ComparisonReport {
	tallies := make(map[string]*projectTally, len(projects))
	for _, p := range projects {
		tally := newProjectTally(p)
		tallies[p.ID] = &tally
	}
	for _, t := range tasks {
		if tally, ok := tallies[t.Project.ID]; ok {
			tally.add(t)
		}
	}
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, tallies[p.ID].summary())
	}
	return ComparisonReport{Comparison: out}
}
