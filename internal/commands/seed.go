// Package commands implements the dashboardctl operator commands.
package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/repository"
	"github.com/noah-isme/attendance-dashboard-api/internal/seed"
	"github.com/noah-isme/attendance-dashboard-api/pkg/config"
	"github.com/noah-isme/attendance-dashboard-api/pkg/database"
)

// SeedStore is the persistence the seed command writes through.
type SeedStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error
	CreateClass(ctx context.Context, class *models.Class) error
	AddMembers(ctx context.Context, classID string, userIDs []string) (int, error)
	CreateLog(ctx context.Context, log *models.AttendanceLog) error
}

type seedAccount struct {
	Key       string
	Email     string
	FirstName string
	LastName  string
	Role      models.UserRole
}

type seedClass struct {
	Key   string
	Owner string
	Name  string
}

type seedLog struct {
	Class   string
	Student string
	Date    string
	Time    string
}

// SeedPlan is the sample data set loaded by the seed command.
type SeedPlan struct {
	Accounts []seedAccount
	Classes  []seedClass
	Logs     []seedLog
}

// DefaultSeedPlan stores the demo batches: fifteen logs for the demo student and
// twenty-five logs spread over the three demo students of the demo educator.
func DefaultSeedPlan() SeedPlan {
	plan := SeedPlan{
		Accounts: []seedAccount{
			{Key: "educator", Email: "educator@example.com", FirstName: "Grace", LastName: "Hopper", Role: models.RoleEducator},
			{Key: "mentor", Email: "mentor@example.com", FirstName: "Alan", LastName: "Turing", Role: models.RoleEducator},
			{Key: "student", Email: "student@example.com", FirstName: "Ada", LastName: "Lovelace", Role: models.RoleStudent},
		},
	}
	for _, s := range seed.Students {
		plan.Accounts = append(plan.Accounts, seedAccount{
			Key:       s.ID,
			Email:     strings.ToLower(s.FirstName) + "@example.com",
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Role:      models.RoleStudent,
		})
	}

	// The demo student's classes belong to a second educator so the educator view stays at 25 rows.
	names := seed.ClassNames()
	for _, owner := range []string{"educator", "mentor"} {
		for _, name := range names {
			plan.Classes = append(plan.Classes, seedClass{Key: owner + "/" + name, Owner: owner, Name: name})
		}
	}

	for _, rec := range seed.StudentLogs() {
		plan.Logs = append(plan.Logs, seedLog{Class: "mentor/" + rec.ClassName, Student: "student", Date: rec.Date, Time: rec.Time})
	}
	for _, e := range seed.Entries() {
		plan.Logs = append(plan.Logs, seedLog{
			Class:   "educator/" + names[e.ClassIndex],
			Student: seed.Students[e.StudentIndex].ID,
			Date:    e.Date,
			Time:    e.Time,
		})
	}
	return plan
}

// SeedResult counts what a seed run inserted.
type SeedResult struct {
	Users   int
	Classes int
	Members int
	Logs    int
	Skipped bool
}

// RunSeed writes plan through store. An existing first account means the data set is already present.
func RunSeed(ctx context.Context, store SeedStore, plan SeedPlan, password string) (*SeedResult, error) {
	if len(plan.Accounts) == 0 {
		return &SeedResult{}, nil
	}
	if _, err := store.FindByEmail(ctx, plan.Accounts[0].Email); err == nil {
		return &SeedResult{Skipped: true}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check existing seed: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	result := &SeedResult{}
	userIDs := make(map[string]string, len(plan.Accounts))
	for _, acc := range plan.Accounts {
		user := &models.User{Email: acc.Email, PasswordHash: string(hash), Active: true}
		profile := &models.Profile{FirstName: acc.FirstName, LastName: acc.LastName, Role: acc.Role}
		if err := store.CreateWithProfile(ctx, user, profile); err != nil {
			return nil, fmt.Errorf("seed account %s: %w", acc.Email, err)
		}
		userIDs[acc.Key] = user.ID
		result.Users++
	}

	classIDs := make(map[string]string, len(plan.Classes))
	for _, cls := range plan.Classes {
		class := &models.Class{EducatorID: userIDs[cls.Owner], Name: cls.Name}
		if err := store.CreateClass(ctx, class); err != nil {
			return nil, fmt.Errorf("seed class %s: %w", cls.Key, err)
		}
		classIDs[cls.Key] = class.ID
		result.Classes++
	}

	members := make(map[string][]string)
	seen := make(map[string]struct{})
	for _, l := range plan.Logs {
		key := l.Class + "|" + l.Student
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		members[l.Class] = append(members[l.Class], userIDs[l.Student])
	}
	for _, cls := range plan.Classes {
		n, err := store.AddMembers(ctx, classIDs[cls.Key], members[cls.Key])
		if err != nil {
			return nil, fmt.Errorf("seed members of %s: %w", cls.Key, err)
		}
		result.Members += n
	}

	for _, l := range plan.Logs {
		day, err := time.Parse("2006-01-02", l.Date)
		if err != nil {
			return nil, fmt.Errorf("seed log date %q: %w", l.Date, err)
		}
		entry := &models.AttendanceLog{ClassID: classIDs[l.Class], StudentID: userIDs[l.Student], OccurredOn: day, OccurredTime: l.Time}
		if err := store.CreateLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("seed attendance log: %w", err)
		}
		result.Logs++
	}
	return result, nil
}

type repositorySeedStore struct {
	*repository.UserRepository
	classes *repository.ClassRepository
	members *repository.ClassMemberRepository
	logs    *repository.AttendanceLogRepository
}

func (s repositorySeedStore) CreateClass(ctx context.Context, class *models.Class) error {
	return s.classes.Create(ctx, class)
}

func (s repositorySeedStore) AddMembers(ctx context.Context, classID string, userIDs []string) (int, error) {
	return s.members.InsertBatch(ctx, classID, userIDs)
}

func (s repositorySeedStore) CreateLog(ctx context.Context, log *models.AttendanceLog) error {
	return s.logs.Create(ctx, log)
}

// NewSeedCommand creates the 'seed' subcommand.
// Usage: dashboardctl seed [--password secret]
func NewSeedCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample attendance data set",
		Long: `Insert demo accounts, classes, memberships and attendance logs.

Accounts (all sharing --password):
  educator@example.com  educator owning the classes of Alice, Bob and Charlie (25 logs)
  student@example.com   student with 15 logs
  mentor@example.com    educator owning the demo student's classes

Running seed twice is a no-op.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			store := repositorySeedStore{
				UserRepository: repository.NewUserRepository(db),
				classes:        repository.NewClassRepository(db),
				members:        repository.NewClassMemberRepository(db),
				logs:           repository.NewAttendanceLogRepository(db),
			}
			result, err := RunSeed(cmd.Context(), store, DefaultSeedPlan(), password)
			if err != nil {
				return err
			}
			printSeedResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "password123", "Password for every seeded account")
	return cmd
}

func printSeedResult(w io.Writer, result *SeedResult) {
	if result.Skipped {
		fmt.Fprintln(w, "sample data already present, nothing to do")
		return
	}
	fmt.Fprintf(w, "seeded %d users, %d classes, %d memberships, %d attendance logs\n",
		result.Users, result.Classes, result.Members, result.Logs)
}
