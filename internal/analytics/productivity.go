package analytics

type ProductivityGeneral struct {
	TotalTasks        int     `json:"totalTasks"`
	CompletedTasks    int     `json:"completedTasks"`
	TotalPlannedHours float64 `json:"totalPlannedHours"`
	TotalActualHours  float64 `json:"totalActualHours"`
	CompletionRate    float64 `json:"completionRate"`
	Efficiency        float64 `json:"efficiency"`
}

type MemberProductivity struct {
	MemberID       string  `json:"memberId"`
	MemberName     string  `json:"memberName"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	PlannedHours   float64 `json:"plannedHours"`
	ActualHours    float64 `json:"actualHours"`
	Velocity       float64 `json:"velocity"`
	CompletionRate float64 `json:"completionRate"`
}

type SprintProductivity struct {
	SprintID       string  `json:"sprintId"`
	SprintName     string  `json:"sprintName"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	PlannedHours   float64 `json:"plannedHours"`
	ActualHours    float64 `json:"actualHours"`
	Velocity       float64 `json:"velocity"`
	CompletionRate float64 `json:"completionRate"`
}

type ProductivityReport struct {
	General  ProductivityGeneral  `json:"general"`
	ByMember []MemberProductivity `json:"byMember"`
	BySprint []SprintProductivity `json:"bySprint"`
}

// throughput is the shared accumulator behind member and sprint rows.
type throughput struct {
	id, name  string
	total     int
	completed int
	planned   float64
	actual    float64
	velocity  float64
}

func (a *throughput) add(t Task) {
	a.total++
	a.planned += valueOr(t.EstimateHours, 0)
	a.actual += valueOr(t.ActualHours, 0)
	if t.done() {
		a.completed++
		a.velocity += loggedHours(t)
	}
}

// Productivity computes completion and effort totals, broken down per
// assignee and per sprint.
func Productivity(tasks []Task) ProductivityReport {
	var (
		general   ProductivityGeneral
		byMember  = newGroups[throughput]()
		bySprint  = newGroups[throughput]()
		planned   float64
		actual    float64
		completed int
	)
	for _, t := range tasks {
		planned += valueOr(t.EstimateHours, 0)
		actual += valueOr(t.ActualHours, 0)
		if t.done() {
			completed++
		}
		if a := t.Assignee; a != nil {
			byMember.get(a.ID, func() throughput { return throughput{id: a.ID, name: a.Name} }).add(t)
		}
		if s := t.Sprint; s != nil {
			bySprint.get(s.ID, func() throughput { return throughput{id: s.ID, name: s.Name} }).add(t)
		}
	}

	general.TotalTasks = len(tasks)
	general.CompletedTasks = completed
	general.TotalPlannedHours = Round2(planned)
	general.TotalActualHours = Round2(actual)
	general.CompletionRate = percent(float64(completed), float64(len(tasks)))
	general.Efficiency = percent(actual, planned)

	report := ProductivityReport{
		General:  general,
		ByMember: make([]MemberProductivity, 0, len(byMember.order)),
		BySprint: make([]SprintProductivity, 0, len(bySprint.order)),
	}
	byMember.each(func(a *throughput) {
		report.ByMember = append(report.ByMember, MemberProductivity{
			MemberID:       a.id,
			MemberName:     a.name,
			TotalTasks:     a.total,
			CompletedTasks: a.completed,
			PlannedHours:   Round2(a.planned),
			ActualHours:    Round2(a.actual),
			Velocity:       Round2(a.velocity),
			CompletionRate: percent(float64(a.completed), float64(a.total)),
		})
	})
	bySprint.each(func(a *throughput) {
		report.BySprint = append(report.BySprint, SprintProductivity{
			SprintID:       a.id,
			SprintName:     a.name,
			TotalTasks:     a.total,
			CompletedTasks: a.completed,
			PlannedHours:   Round2(a.planned),
			ActualHours:    Round2(a.actual),
			Velocity:       Round2(a.velocity),
			CompletionRate: percent(float64(a.completed), float64(a.total)),
		})
	})
	return report
}
