package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trennkal/internal/api"
	"trennkal/internal/attendance"
	"trennkal/internal/config"
	"trennkal/internal/export"
	"trennkal/internal/feed"
	appLog "trennkal/internal/log"
	"trennkal/internal/model"
	"trennkal/internal/recurrence"
	"trennkal/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "trennkal",
		Short:         "Dance-class schedule and attendance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")

	root.AddCommand(newPreviewCmd(&configPath))
	root.AddCommand(newGenerateCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newFeedCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	return root
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "trennkal", "config.yaml")
	}
	return "config.yaml"
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newAPIClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.Timeout(), cfg.CacheDir)
}

func resolveGroup(cfg *config.Config, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if cfg.GroupID != "" {
		return cfg.GroupID, nil
	}
	return "", errors.New("no group: set group_id in config or pass --group")
}

// specFlags binds the recurrence spec fields to command flags.
type specFlags struct {
	start     string
	end       string
	weekday   int
	startTime string
	endTime   string
	title     string
	location  string
}

func (f *specFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "First date of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last date of the range, inclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.weekday, "weekday", 1, "Weekday, 0=Sunday..6=Saturday")
	cmd.Flags().StringVar(&f.startTime, "start-time", "", "Session start time (HH:MM)")
	cmd.Flags().StringVar(&f.endTime, "end-time", "", "Session end time (HH:MM)")
	cmd.Flags().StringVar(&f.title, "title", "Tantsutrenn", "Session title")
	cmd.Flags().StringVar(&f.location, "location", "", "Session location (optional)")
}

func (f *specFlags) spec() recurrence.Spec {
	return recurrence.Spec{
		StartDate: f.start,
		EndDate:   f.end,
		Weekday:   f.weekday,
		StartTime: f.startTime,
		EndTime:   f.endTime,
		Title:     f.title,
		Location:  f.location,
	}
}

func newPreviewCmd(configPath *string) *cobra.Command {
	var flags specFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the weekly sessions a recurrence spec would create",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cal, err := cfg.Calendar()
			if err != nil {
				return err
			}

			sessions, err := recurrence.Generate(flags.spec(), cal)
			if err != nil {
				return err
			}
			printSessions(cmd, sessions)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		flags   specFlags
		groupID string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the weekly series and persist it via the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cal, err := cfg.Calendar()
			if err != nil {
				return err
			}
			group, err := resolveGroup(cfg, groupID)
			if err != nil {
				return err
			}

			// Preview first: validation failures stop here, and an
			// empty range is not worth a backend round trip.
			sessions, err := recurrence.Generate(flags.spec(), cal)
			if err != nil {
				return err
			}
			printSessions(cmd, sessions)
			if len(sessions) == 0 {
				return nil
			}

			client := newAPIClient(cfg)
			created, err := client.GenerateBulk(cmd.Context(), api.BulkRequest{
				GroupID:   group,
				StartDate: flags.start,
				EndDate:   flags.end,
				DayOfWeek: flags.weekday,
				StartTime: flags.startTime,
				EndTime:   flags.endTime,
				Location:  flags.location,
				Title:     flags.title,
			})
			if err != nil {
				return err
			}
			cmd.Printf("Persisted %d sessions for group %s\n", len(created), group)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&groupID, "group", "", "Group ID (defaults to config group_id)")
	return cmd
}

func printSessions(cmd *cobra.Command, sessions []model.Session) {
	if len(sessions) == 0 {
		cmd.Println("No sessions in range")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tDAY\tTIME\tTITLE\tLOCATION")
	for _, s := range sessions {
		location := s.Location
		if location == "" {
			location = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s - %s\t%s\t%s\n",
			s.DisplayDate, s.DayName, s.StartTime, s.EndTime, s.Title, location)
	}
	_ = w.Flush()
	cmd.Printf("%d sessions\n", len(sessions))
}

func newExportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write CSV reports",
	}
	cmd.AddCommand(newExportAttendanceCmd(configPath))
	cmd.AddCommand(newExportRosterCmd(configPath))
	return cmd
}

func newExportAttendanceCmd(configPath *string) *cobra.Command {
	var (
		groupID string
		month   string
		outDir  string
	)

	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Export the monthly attendance report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			group, err := resolveGroup(cfg, groupID)
			if err != nil {
				return err
			}
			if month == "" {
				month = time.Now().In(cfg.Location()).Format("2006-01")
			}
			startDate, endDate, err := attendance.MonthRange(month)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client := newAPIClient(cfg)
			roster, err := client.Group(ctx, group)
			if err != nil {
				return err
			}
			sessions, err := client.Schedules(ctx, group, startDate, endDate)
			if err != nil {
				return err
			}

			store := attendance.NewStore(client)
			if err := store.Load(ctx, group, month); err != nil {
				return err
			}

			body, filename, err := export.AttendanceCSV(roster.Students, sessions, store, month)
			if err != nil {
				return err
			}
			return writeFile(cmd, outDir, filename, body)
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "Group ID (defaults to config group_id)")
	cmd.Flags().StringVar(&month, "month", "", "Month to export (YYYY-MM, defaults to current)")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to write the CSV into")
	return cmd
}

func newExportRosterCmd(configPath *string) *cobra.Command {
	var (
		groupID string
		outDir  string
	)

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Export the group roster with parent contacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			group, err := resolveGroup(cfg, groupID)
			if err != nil {
				return err
			}

			client := newAPIClient(cfg)
			roster, err := client.Group(cmd.Context(), group)
			if err != nil {
				return err
			}

			body, filename, err := export.RosterCSV(roster.Name, roster.Students)
			if err != nil {
				return err
			}
			return writeFile(cmd, outDir, filename, body)
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "Group ID (defaults to config group_id)")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to write the CSV into")
	return cmd
}

func writeFile(cmd *cobra.Command, dir, filename string, body []byte) error {
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	cmd.Printf("Wrote %s (%d bytes)\n", path, len(body))
	return nil
}

func newFeedCmd(configPath *string) *cobra.Command {
	var (
		groupID string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Render upcoming sessions as an iCalendar feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			group, err := resolveGroup(cfg, groupID)
			if err != nil {
				return err
			}

			loc := cfg.Location()
			now := time.Now().In(loc)
			start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
			end := now.AddDate(0, 0, cfg.FeedHorizonDays)

			ctx := cmd.Context()
			client := newAPIClient(cfg)
			roster, err := client.Group(ctx, group)
			if err != nil {
				return err
			}
			sessions, err := client.Schedules(ctx, group,
				start.Format("2006-01-02"), end.Format("2006-01-02"))
			if err != nil {
				return err
			}

			body, err := feed.Build(group, roster.Name, sessions, loc)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				cmd.Print(body)
				return nil
			}
			if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "Group ID (defaults to config group_id)")
	cmd.Flags().StringVar(&out, "out", "-", "Output file, or - for stdout")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only attendance API and calendar feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if _, err := resolveGroup(cfg, ""); err != nil {
				return err
			}

			appLog.Info("trennkal serving",
				"listen", cfg.Listen,
				"group", cfg.GroupID,
				"timezone", cfg.Timezone,
				"refresh", cfg.RefreshCron,
			)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			}()

			client := newAPIClient(cfg)
			store := attendance.NewStore(client)
			return web.StartServer(ctx, cfg, client, store)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
