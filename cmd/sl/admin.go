package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintlens/internal/app"
	"sprintlens/internal/domain"
	"sprintlens/internal/engine"
	"sprintlens/internal/repo"
)

// --- companies ---

func companyCmd() *cobra.Command {
	cmp := &cobra.Command{Use: "company", Short: "Manage companies and their members"}
	cmp.AddCommand(companyCreateCmd())
	cmp.AddCommand(companyListCmd())
	cmp.AddCommand(companyUseCmd())
	cmp.AddCommand(companyAddMemberCmd())
	cmp.AddCommand(companyMembersCmd())
	return cmp
}

func companyCreateCmd() *cobra.Command {
	var id, name, owner string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCompany(ctx, engine.CompanyCreateOptions{
					ID: id, Name: name, OwnerID: owner, ActorID: viper.GetString("user"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "company id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&owner, "owner", "", "user id to make owner")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func companyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCompanies(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Created")
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func companyUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <company-id>",
		Short: "Set the active company in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCompany(ctx, args[0])
				if err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				if err := app.SetEnvValue(workspace, "SPRINTLENS_COMPANY", c.ID); err != nil {
					return err
				}
				fmt.Printf("Active company: %s (%s)\n", c.ID, app.EnvPath(workspace))
				return nil
			})
		},
	}
}

func companyAddMemberCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Add a user to the active company or change their role",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddCompanyMember(ctx, engine.CompanyMemberOptions{
					CompanyID: company, UserID: userID, Role: strings.ToLower(role), ActorID: viper.GetString("user"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "member", "", "user id")
	cmd.Flags().StringVar(&role, "role", domain.RoleMember, "owner|admin|manager|member|viewer")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func companyMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List members of the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCompanyMembers(ctx, company)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("User", "Role")
				for _, m := range items {
					tw.AppendRow(table.Row{m.UserID, m.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- users ---

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	var id, name, email string
	var rate float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.UserCreateOptions{ID: id, Name: name, Email: email, ActorID: viper.GetString("user")}
			if cmd.Flags().Changed("rate") {
				opts.HourlyRate = &rate
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "user id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "email")
	create.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	_ = create.MarkFlagRequired("name")
	usr.AddCommand(create)
	return usr
}

// --- projects ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectAddMemberCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc, owner string
	var rate float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project in the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany()
			if err != nil {
				return err
			}
			opts := engine.ProjectCreateOptions{
				ID: id, CompanyID: company, Name: name, Description: desc, OwnerID: owner, ActorID: viper.GetString("user"),
			}
			if cmd.Flags().Changed("rate") {
				opts.DefaultHourlyRate = &rate
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	cmd.Flags().Float64Var(&rate, "rate", 0, "default hourly rate")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var member string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects of the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{CompanyID: company, MemberID: member})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Rate", "Created")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, floatOrDash(p.DefaultHourlyRate), p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "only projects this user belongs to")
	return cmd
}

func projectAddMemberCmd() *cobra.Command {
	var projectID, userID, role string
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Add a company member to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddProjectMember(ctx, engine.ProjectMemberOptions{
					ProjectID: projectID, UserID: userID, Role: strings.ToLower(role), ActorID: viper.GetString("user"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&userID, "member", "", "user id")
	cmd.Flags().StringVar(&role, "role", domain.ProjectRoleMember, "owner|member")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

// --- sprints ---

func sprintCmd() *cobra.Command {
	spr := &cobra.Command{Use: "sprint", Short: "Manage sprints"}
	var id, projectID, name, start, end string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSprint(ctx, engine.SprintCreateOptions{
					ID: id, ProjectID: projectID, Name: name, StartDate: start, EndDate: end, ActorID: viper.GetString("user"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "sprint id (generated when empty)")
	create.Flags().StringVar(&projectID, "project", "", "project id")
	create.Flags().StringVar(&name, "name", "", "sprint name")
	create.Flags().StringVar(&start, "start", "", "start date (ISO)")
	create.Flags().StringVar(&end, "end", "", "end date (ISO)")
	_ = create.MarkFlagRequired("project")
	_ = create.MarkFlagRequired("name")
	spr.AddCommand(create)
	return spr
}

// --- tasks ---

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	tsk.AddCommand(taskCreateCmd())
	tsk.AddCommand(taskUpdateCmd())
	tsk.AddCommand(taskListCmd())
	tsk.AddCommand(taskImportCmd())
	return tsk
}

// taskFlags are shared by create and update; hour and money flags only apply
// when given on the command line.
type taskFlags struct {
	title, desc, status, sprintID, assignee, start, due string
	estimate, actual, rate, cost                        float64
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "title")
	cmd.Flags().StringVar(&f.desc, "description", "", "description")
	cmd.Flags().StringVar(&f.status, "status", "", "backlog|todo|in_progress|review|done|blocked")
	cmd.Flags().StringVar(&f.sprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&f.start, "start", "", "start date (ISO)")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (ISO)")
	cmd.Flags().Float64Var(&f.estimate, "estimate", 0, "estimated hours")
	cmd.Flags().Float64Var(&f.actual, "actual", 0, "actual hours")
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "hourly rate override")
	cmd.Flags().Float64Var(&f.cost, "cost", 0, "fixed cost override")
}

func changedFloat(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedString(cmd *cobra.Command, name string, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func taskCreateCmd() *cobra.Command {
	var id, projectID string
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskCreateOptions{
				ID:                 id,
				ProjectID:          projectID,
				SprintID:           f.sprintID,
				AssigneeID:         f.assignee,
				Title:              f.title,
				Description:        f.desc,
				Status:             f.status,
				EstimateHours:      changedFloat(cmd, "estimate", f.estimate),
				ActualHours:        changedFloat(cmd, "actual", f.actual),
				HourlyRateOverride: changedFloat(cmd, "rate", f.rate),
				CostOverride:       changedFloat(cmd, "cost", f.cost),
				StartDate:          f.start,
				DueDate:            f.due,
				ActorID:            viper.GetString("user"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var f taskFlags
	var clear []string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ID:                 args[0],
				Title:              changedString(cmd, "title", f.title),
				Description:        changedString(cmd, "description", f.desc),
				Status:             changedString(cmd, "status", f.status),
				SprintID:           changedString(cmd, "sprint", f.sprintID),
				AssigneeID:         changedString(cmd, "assignee", f.assignee),
				StartDate:          changedString(cmd, "start", f.start),
				DueDate:            changedString(cmd, "due", f.due),
				EstimateHours:      changedFloat(cmd, "estimate", f.estimate),
				ActualHours:        changedFloat(cmd, "actual", f.actual),
				HourlyRateOverride: changedFloat(cmd, "rate", f.rate),
				CostOverride:       changedFloat(cmd, "cost", f.cost),
				Clear:              clear,
				ActorID:            viper.GetString("user"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringSliceVar(&clear, "clear", nil, "numeric fields to reset (estimate_hours, actual_hours, hourly_rate_override, cost_override)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var projectID, sprintID, assignee, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := repo.TaskFilters{ProjectID: projectID, SprintID: sprintID, AssigneeID: assignee, Limit: limit}
			if status != "" {
				s, err := domain.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				filters.Status = string(s)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTasks(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Status", "Title", "Assignee", "Sprint", "Est", "Actual")
				for _, t := range items {
					tw.AppendRow(table.Row{
						t.ID, t.Status, t.Title, stringOrDash(t.AssigneeID), stringOrDash(t.SprintID),
						floatOrDash(t.EstimateHours), floatOrDash(t.ActualHours),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&sprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func taskImportCmd() *cobra.Command {
	var projectID, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tasks from a CSV file",
		Long: `Import tasks from CSV. The header row names the columns; title is required, the rest
(status, sprint_id, assignee_id, estimate_hours, actual_hours, hourly_rate_override,
cost_override, start_date, due_date, description) are optional. Nothing is written
unless every row is valid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ImportTasks(ctx, projectID, f, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d tasks into %s\n", res.Created, res.ProjectID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&file, "file", "", "CSV file")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- api keys ---

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var userID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the plain key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, userID, name, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "user_id": key.UserID, "name": key.Name, "key": plain})
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, key.UserID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&userID, "member", "", "user id the key acts as")
	create.Flags().StringVar(&name, "name", "", "label")
	_ = create.MarkFlagRequired("member")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "User", "Name", "Created")
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&userID, "member", "", "user id")

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	}
	keys.AddCommand(create, list, revoke)
	return keys
}
