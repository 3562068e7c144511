package analytics

import (
	"math"

	"sprintlens/internal/domain"
)

const msPerDay = 86_400_000

type StatusTime struct {
	Status  domain.TaskStatus `json:"status"`
	AvgDays float64           `json:"avgDays"`
	Count   int               `json:"count"`
}

type MemberTime struct {
	MemberID   string  `json:"memberId"`
	MemberName string  `json:"memberName"`
	AvgDays    float64 `json:"avgDays"`
	Count      int     `json:"count"`
	TotalHours float64 `json:"totalHours"`
}

type TimeReport struct {
	ByStatus []StatusTime `json:"byStatus"`
	ByMember []MemberTime `json:"byMember"`
}

// ElapsedDays is the start-to-due span in whole days, rounded up. An inverted
// range yields a negative count and is reported as is.
func ElapsedDays(t Task) (float64, bool) {
	if t.StartDate == nil || t.DueDate == nil {
		return 0, false
	}
	ms := t.DueDate.Sub(*t.StartDate).Milliseconds()
	return math.Ceil(float64(ms) / msPerDay), true
}

type duration struct {
	id, name string
	sumDays  float64
	count    int
	hours    float64
}

// Timing averages elapsed days over completed tasks that carry both a start
// and a due date. Other tasks contribute nothing.
func Timing(tasks []Task) TimeReport {
	byStatus := newGroups[duration]()
	byMember := newGroups[duration]()
	for _, t := range tasks {
		if !t.done() {
			continue
		}
		days, ok := ElapsedDays(t)
		if !ok {
			continue
		}
		status := string(t.Status)
		acc := byStatus.get(status, func() duration { return duration{id: status} })
		acc.sumDays += days
		acc.count++

		if m := t.Assignee; m != nil {
			acc := byMember.get(m.ID, func() duration { return duration{id: m.ID, name: m.Name} })
			acc.sumDays += days
			acc.count++
			acc.hours += loggedHours(t)
		}
	}

	report := TimeReport{
		ByStatus: make([]StatusTime, 0, len(byStatus.order)),
		ByMember: make([]MemberTime, 0, len(byMember.order)),
	}
	byStatus.each(func(d *duration) {
		report.ByStatus = append(report.ByStatus, StatusTime{
			Status:  domain.TaskStatus(d.id),
			AvgDays: Round2(d.sumDays / float64(d.count)),
			Count:   d.count,
		})
	})
	byMember.each(func(d *duration) {
		report.ByMember = append(report.ByMember, MemberTime{
			MemberID:   d.id,
			MemberName: d.name,
			AvgDays:    Round2(d.sumDays / float64(d.count)),
			Count:      d.count,
			TotalHours: Round2(d.hours),
		})
	})
	return report
}
