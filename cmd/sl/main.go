package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintlens/internal/app"
	"sprintlens/internal/config"
	"sprintlens/internal/db"
	"sprintlens/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Sprintlens CLI",
	Long: `Sprintlens turns task data into agile analytics for every company it hosts.
- Company: the tenant. Every report is scoped to exactly one company (--company or SPRINTLENS_COMPANY).
- Members: users join a company with a role (owner, admin, manager, member, viewer); owners, admins and
  managers read the company-wide views, everyone else sees the projects they belong to.
- Projects, sprints, tasks: the raw data. Tasks carry estimate/actual hours and optional rate or cost overrides.
- Views: productivity, costs, time, quality, heatmap, compare and per-project summary.
- Workspace: the .sprintlens directory holding the database, plus sprintlens.yml and .env next to it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return app.LoadEnv(workspace)
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "acting user id")
	rootCmd.PersistentFlags().String("company", "", "active company id")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides sprintlens.yml)")
	for _, name := range []string{"workspace", "json", "user", "company", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default sprintlens.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events of the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				company := viper.GetString("company")
				latest, err := e.Repo.LatestEventID(ctx, company)
				if err != nil {
					return err
				}
				cursor := latest - int64(n)
				if cursor < 0 {
					cursor = 0
				}
				events, err := e.Repo.EventsAfter(ctx, n, cursor, company)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	logc.AddCommand(tail)
	return logc
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		LogLevel:  viper.GetString("log-level"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

// currentActor is the user and company selected by flags or environment.
func currentActor() engine.Actor {
	return engine.Actor{
		UserID:    strings.TrimSpace(viper.GetString("user")),
		CompanyID: strings.TrimSpace(viper.GetString("company")),
	}
}

func requireCompany() (string, error) {
	company := strings.TrimSpace(viper.GetString("company"))
	if company == "" {
		return "", fmt.Errorf("--company required (or run sl company use <id>)")
	}
	return company, nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stringOrDash(ptr *string) string {
	if ptr == nil || *ptr == "" {
		return "-"
	}
	return *ptr
}

func floatOrDash(ptr *float64) string {
	if ptr == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *ptr)
}
