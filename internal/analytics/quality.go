package analytics

import "sprintlens/internal/domain"

type QualityGeneral struct {
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	BlockedTasks   int     `json:"blockedTasks"`
	CompletionRate float64 `json:"completionRate"`
	BlockRate      float64 `json:"blockRate"`
}

type SprintQuality struct {
	SprintID       string  `json:"sprintId"`
	SprintName     string  `json:"sprintName"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	BlockedTasks   int     `json:"blockedTasks"`
	CompletionRate float64 `json:"completionRate"`
}

type QualityReport struct {
	General  QualityGeneral  `json:"general"`
	BySprint []SprintQuality `json:"bySprint"`
}

type outcome struct {
	id, name  string
	total     int
	completed int
	blocked   int
}

func (o *outcome) add(t Task) {
	o.total++
	switch t.Status {
	case domain.StatusDone:
		o.completed++
	case domain.StatusBlocked:
		o.blocked++
	}
}

func Quality(tasks []Task) QualityReport {
	var all outcome
	bySprint := newGroups[outcome]()
	for _, t := range tasks {
		all.add(t)
		if s := t.Sprint; s != nil {
			bySprint.get(s.ID, func() outcome { return outcome{id: s.ID, name: s.Name} }).add(t)
		}
	}
	report := QualityReport{
		General: QualityGeneral{
			TotalTasks:     all.total,
			CompletedTasks: all.completed,
			BlockedTasks:   all.blocked,
			CompletionRate: percent(float64(all.completed), float64(all.total)),
			BlockRate:      percent(float64(all.blocked), float64(all.total)),
		},
		BySprint: make([]SprintQuality, 0, len(bySprint.order)),
	}
	bySprint.each(func(o *outcome) {
		report.BySprint = append(report.BySprint, SprintQuality{
			SprintID:       o.id,
			SprintName:     o.name,
			TotalTasks:     o.total,
			CompletedTasks: o.completed,
			BlockedTasks:   o.blocked,
			CompletionRate: percent(float64(o.completed), float64(o.total)),
		})
	})
	return report
}
