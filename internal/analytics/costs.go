package analytics

type CostTotals struct {
	Planned  float64 `json:"planned"`
	Actual   float64 `json:"actual"`
	Variance float64 `json:"variance"`
}

type ProjectCost struct {
	ProjectID   string  `json:"projectId"`
	ProjectName string  `json:"projectName"`
	Planned     float64 `json:"planned"`
	Actual      float64 `json:"actual"`
	Variance    float64 `json:"variance"`
}

type MemberCost struct {
	MemberID   string  `json:"memberId"`
	MemberName string  `json:"memberName"`
	Planned    float64 `json:"planned"`
	Actual     float64 `json:"actual"`
	Variance   float64 `json:"variance"`
}

// CostReport carries planned vs actual spend. Variance is actual minus
// planned: positive means an overrun.
type CostReport struct {
	Total     CostTotals    `json:"total"`
	ByProject []ProjectCost `json:"byProject"`
	ByMember  []MemberCost  `json:"byMember"`
}

type spend struct {
	id, name string
	planned  float64
	actual   float64
}

func Costs(tasks []Task) CostReport {
	var (
		planned   float64
		actual    float64
		byProject = newGroups[spend]()
		byMember  = newGroups[spend]()
	)
	for _, t := range tasks {
		p := PlannedCost(t)
		a := TaskCost(t)
		planned += p
		actual += a

		proj := t.Project
		acc := byProject.get(proj.ID, func() spend { return spend{id: proj.ID, name: proj.Name} })
		acc.planned += p
		acc.actual += a

		if m := t.Assignee; m != nil {
			acc := byMember.get(m.ID, func() spend { return spend{id: m.ID, name: m.Name} })
			acc.planned += p
			acc.actual += a
		}
	}

	report := CostReport{
		Total: CostTotals{
			Planned:  Round2(planned),
			Actual:   Round2(actual),
			Variance: Round2(actual - planned),
		},
		ByProject: make([]ProjectCost, 0, len(byProject.order)),
		ByMember:  make([]MemberCost, 0, len(byMember.order)),
	}
	byProject.each(func(s *spend) {
		report.ByProject = append(report.ByProject, ProjectCost{
			ProjectID:   s.id,
			ProjectName: s.name,
			Planned:     Round2(s.planned),
			Actual:      Round2(s.actual),
			Variance:    Round2(s.actual - s.planned),
		})
	})
	byMember.each(func(s *spend) {
		report.ByMember = append(report.ByMember, MemberCost{
			MemberID:   s.id,
			MemberName: s.name,
			Planned:    Round2(s.planned),
			Actual:     Round2(s.actual),
			Variance:   Round2(s.actual - s.planned),
		})
	})
	return report
}
