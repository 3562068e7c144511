package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintlens/internal/analytics"
	"sprintlens/internal/domain"
	"sprintlens/internal/engine"
)

func analyticsCmd() *cobra.Command {
	an := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"an"},
		Short:   "Compute analytics views as --user in --company",
	}
	an.AddCommand(viewCmd("productivity", "Completion, velocity and efficiency", func(ctx context.Context, e engine.Engine, a engine.Actor, q engine.AnalyticsQuery) error {
		r, err := e.Productivity(ctx, a, q)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(r)
		}
		renderProductivity(r)
		return nil
	}))
	an.AddCommand(viewCmd("costs", "Planned vs actual spend", func(ctx context.Context, e engine.Engine, a engine.Actor, q engine.AnalyticsQuery) error {
		r, err := e.Costs(ctx, a, q)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(r)
		}
		renderCosts(r)
		return nil
	}))
	an.AddCommand(viewCmd("time", "Elapsed days by status and member", func(ctx context.Context, e engine.Engine, a engine.Actor, q engine.AnalyticsQuery) error {
		r, err := e.Timing(ctx, a, q)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(r)
		}
		renderTime(r)
		return nil
	}))
	an.AddCommand(viewCmd("quality", "Completion and block rates", func(ctx context.Context, e engine.Engine, a engine.Actor, q engine.AnalyticsQuery) error {
		r, err := e.Quality(ctx, a, q)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(r)
		}
		renderQuality(r)
		return nil
	}))
	an.AddCommand(heatmapCmd())
	an.AddCommand(compareCmd())
	an.AddCommand(summaryCmd())
	return an
}

type viewFunc func(ctx context.Context, e engine.Engine, a engine.Actor, q engine.AnalyticsQuery) error

// viewCmd builds a subcommand taking the common --project/--start/--end refinements.
func viewCmd(use, short string, run viewFunc) *cobra.Command {
	var q engine.AnalyticsQuery
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return run(ctx, e, currentActor(), q)
			})
		},
	}
	cmd.Flags().StringVar(&q.ProjectID, "project", "", "limit to one project")
	cmd.Flags().StringVar(&q.StartDate, "start", "", "tasks created on or after (ISO date)")
	cmd.Flags().StringVar(&q.EndDate, "end", "", "tasks created on or before (ISO date)")
	return cmd
}

func heatmapCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Tasks created, completed and in progress per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.Heatmap(ctx, currentActor(), projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				tw := newTable("Date", "Created", "Completed", "In progress")
				for _, d := range r.Heatmap {
					tw.AppendRow(table.Row{d.Date, d.Created, d.Completed, d.InProgress})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "limit to one project")
	return cmd
}

func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare",
		Short: "Side-by-side summary of every project in the company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.CompareProjects(ctx, currentActor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				renderSummaries(r.Comparison)
				return nil
			})
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <project-id>",
		Short: "Summary of one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ProjectSummary(ctx, currentActor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				renderSummaries([]analytics.ProjectSummary{s})
				tw := newTable("Status", "Tasks")
				tw.SetTitle("Status counts")
				for _, st := range domain.TaskStatuses {
					tw.AppendRow(table.Row{st, s.StatusCounts[st]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

func renderProductivity(r analytics.ProductivityReport) {
	g := r.General
	tw := newTable("Tasks", "Completed", "Planned h", "Actual h", "Completion", "Efficiency")
	tw.SetTitle("Productivity")
	tw.AppendRow(table.Row{g.TotalTasks, g.CompletedTasks, money(g.TotalPlannedHours), money(g.TotalActualHours), pct(g.CompletionRate), pct(g.Efficiency)})
	tw.Render()

	members := newTable("Member", "Tasks", "Completed", "Planned h", "Actual h", "Velocity", "Completion")
	members.SetTitle("By member")
	for _, m := range r.ByMember {
		members.AppendRow(table.Row{m.MemberName, m.TotalTasks, m.CompletedTasks, money(m.PlannedHours), money(m.ActualHours), money(m.Velocity), pct(m.CompletionRate)})
	}
	members.Render()

	sprints := newTable("Sprint", "Tasks", "Completed", "Planned h", "Actual h", "Velocity", "Completion")
	sprints.SetTitle("By sprint")
	for _, s := range r.BySprint {
		sprints.AppendRow(table.Row{s.SprintName, s.TotalTasks, s.CompletedTasks, money(s.PlannedHours), money(s.ActualHours), money(s.Velocity), pct(s.CompletionRate)})
	}
	sprints.Render()
}

func renderCosts(r analytics.CostReport) {
	tw := newTable("Planned", "Actual", "Variance")
	tw.SetTitle("Costs")
	tw.AppendRow(table.Row{money(r.Total.Planned), money(r.Total.Actual), money(r.Total.Variance)})
	tw.Render()

	projects := newTable("Project", "Planned", "Actual", "Variance")
	projects.SetTitle("By project")
	for _, p := range r.ByProject {
		projects.AppendRow(table.Row{p.ProjectName, money(p.Planned), money(p.Actual), money(p.Variance)})
	}
	projects.Render()

	members := newTable("Member", "Planned", "Actual", "Variance")
	members.SetTitle("By member")
	for _, m := range r.ByMember {
		members.AppendRow(table.Row{m.MemberName, money(m.Planned), money(m.Actual), money(m.Variance)})
	}
	members.Render()
}

func renderTime(r analytics.TimeReport) {
	statuses := newTable("Status", "Avg days", "Tasks")
	statuses.SetTitle("By status")
	for _, s := range r.ByStatus {
		statuses.AppendRow(table.Row{s.Status, money(s.AvgDays), s.Count})
	}
	statuses.Render()

	members := newTable("Member", "Avg days", "Tasks", "Hours")
	members.SetTitle("By member")
	for _, m := range r.ByMember {
		members.AppendRow(table.Row{m.MemberName, money(m.AvgDays), m.Count, money(m.TotalHours)})
	}
	members.Render()
}

func renderQuality(r analytics.QualityReport) {
	g := r.General
	tw := newTable("Tasks", "Completed", "Blocked", "Completion", "Block rate")
	tw.SetTitle("Quality")
	tw.AppendRow(table.Row{g.TotalTasks, g.CompletedTasks, g.BlockedTasks, pct(g.CompletionRate), pct(g.BlockRate)})
	tw.Render()

	sprints := newTable("Sprint", "Tasks", "Completed", "Blocked", "Completion")
	sprints.SetTitle("By sprint")
	for _, s := range r.BySprint {
		sprints.AppendRow(table.Row{s.SprintName, s.TotalTasks, s.CompletedTasks, s.BlockedTasks, pct(s.CompletionRate)})
	}
	sprints.Render()
}

func renderSummaries(items []analytics.ProjectSummary) {
	tw := newTable("Project", "Tasks", "Done", "Blocked", "Completion", "Planned h", "Actual h", "Planned", "Actual", "Variance")
	for _, s := range items {
		tw.AppendRow(table.Row{
			s.ProjectName, s.TotalTasks, s.CompletedTasks, s.BlockedTasks, pct(s.CompletionRate),
			money(s.PlannedHours), money(s.ActualHours), money(s.PlannedCost), money(s.ActualCost), money(s.Variance),
		})
	}
	tw.Render()
}
