package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/repository"
	"github.com/noah-isme/attendance-dashboard-api/internal/seed"
	"github.com/noah-isme/attendance-dashboard-api/internal/service"
	"github.com/noah-isme/attendance-dashboard-api/pkg/config"
	"github.com/noah-isme/attendance-dashboard-api/pkg/database"
)

// LogLister renders one page of a viewer's attendance logs.
type LogLister interface {
	ListLogs(ctx context.Context, viewer models.Viewer, query models.LogQuery) (*service.LogListing, error)
}

type logSource interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.LogRecord, error)
	ListForEducator(ctx context.Context, educatorID string) ([]models.LogRecord, error)
}

// demoLogSource serves the seed batches regardless of user id.
type demoLogSource struct{}

func (demoLogSource) ListForStudent(ctx context.Context, _ string) ([]models.LogRecord, error) {
	return seed.StudentLogs(), ctx.Err()
}

func (demoLogSource) ListForEducator(ctx context.Context, _ string) ([]models.LogRecord, error) {
	return seed.EducatorLogs(), ctx.Err()
}

// NewLogsCommand creates the 'logs' subcommand.
// Usage: dashboardctl logs --user <id> --role educator [--from 2025-03-01] [--to 2025-03-05] [--sort latest-date] [--page 1]
func NewLogsCommand() *cobra.Command {
	var (
		userID string
		role   string
		demo   bool
		query  models.LogQuery
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print one page of a user's attendance logs",
		Long: `Print the attendance log page a user would see on the dashboard.

The same filter, sort and pagination rules as the API apply. Empty --from,
--to and --sort fall back to the configured defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer := models.Viewer{UserID: userID, Role: models.UserRole(role)}
			if !viewer.Role.Valid() {
				return fmt.Errorf("unknown role %q: want student or educator", role)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var repo logSource = demoLogSource{}
			if !demo {
				db, err := database.NewPostgres(cmd.Context(), cfg.Database)
				if err != nil {
					return fmt.Errorf("connect database: %w", err)
				}
				defer db.Close()
				repo = repository.NewAttendanceLogRepository(db)
			}

			svc := service.NewAttendanceLogService(repo, nil, nil, zap.NewNop(), service.AttendanceLogConfig{
				PageSize:    cfg.Attendance.PageSize,
				DefaultFrom: cfg.Attendance.DefaultFrom,
				DefaultTo:   cfg.Attendance.DefaultTo,
				DefaultSort: cfg.Attendance.DefaultSort,
			})
			return RunLogs(cmd.Context(), svc, viewer, query, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id whose logs to print")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleStudent), "Viewer role: student or educator")
	cmd.Flags().StringVar(&query.From, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&query.To, "to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&query.Sort, "sort", "s", "", "latest-date, oldest-date, class-name, name or student-name")
	cmd.Flags().IntVar(&query.Page, "page", 1, "Page number")
	cmd.Flags().BoolVar(&demo, "demo", false, "Read the built-in demo batches instead of the database")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// RunLogs fetches one page through lister and writes it as a table.
func RunLogs(ctx context.Context, lister LogLister, viewer models.Viewer, query models.LogQuery, out io.Writer) error {
	listing, err := lister.ListLogs(ctx, viewer, query)
	if err != nil {
		return err
	}
	snap := listing.Snapshot

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if snap.Role == models.RoleEducator {
		fmt.Fprintln(tw, "ID\tSTUDENT\tCLASS\tDATE\tTIME")
	} else {
		fmt.Fprintln(tw, "ID\tCLASS\tDATE\tTIME")
	}
	for _, row := range snap.Rows {
		if snap.Role == models.RoleEducator {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.ID, deref(row.StudentName), row.ClassName, row.Date, row.Time)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.ID, row.ClassName, row.Date, row.Time)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "page %d of %d (%d records, sort %s, range %s)\n",
		snap.Page, snap.TotalPages, snap.TotalCount, snap.Sort, snap.DateRange)
	if listing.DataErrors > 0 {
		fmt.Fprintf(out, "%d records skipped: malformed date\n", listing.DataErrors)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
