package analytics

import (
	"sort"

	"sprintlens/internal/domain"
)

type HeatmapDay struct {
	Date       string `json:"date"`
	Created    int    `json:"created"`
	Completed  int    `json:"completed"`
	InProgress int    `json:"inProgress"`
}

type HeatmapReport struct {
	Heatmap []HeatmapDay `json:"heatmap"`
}

// Heatmap buckets tasks by the UTC calendar day they were created on.
func Heatmap(tasks []Task) HeatmapReport {
	days := map[string]*HeatmapDay{}
	for _, t := range tasks {
		date := t.CreatedAt.UTC().Format("2006-01-02")
		day, ok := days[date]
		if !ok {
			day = &HeatmapDay{Date: date}
			days[date] = day
		}
		day.Created++
		switch t.Status {
		case domain.StatusDone:
			day.Completed++
		case domain.StatusInProgress, domain.StatusReview:
			day.InProgress++
		}
	}
	out := make([]HeatmapDay, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return HeatmapReport{Heatmap: out}
}
