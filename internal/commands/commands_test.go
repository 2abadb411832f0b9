package commands

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/attendance-dashboard-api/internal/logview"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/service"
)

type memorySeedStore struct {
	users    map[string]*models.User
	profiles map[string]*models.Profile
	classes  []*models.Class
	members  map[string][]string
	logs     []*models.AttendanceLog
}

func newMemorySeedStore() *memorySeedStore {
	return &memorySeedStore{
		users:    map[string]*models.User{},
		profiles: map[string]*models.Profile{},
		members:  map[string][]string{},
	}
}

func (s *memorySeedStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memorySeedStore) CreateWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error {
	user.ID = fmt.Sprintf("user-%d", len(s.users)+1)
	s.users[user.Email] = user
	s.profiles[user.ID] = profile
	return nil
}

func (s *memorySeedStore) CreateClass(ctx context.Context, class *models.Class) error {
	class.ID = fmt.Sprintf("class-%d", len(s.classes)+1)
	s.classes = append(s.classes, class)
	return nil
}

func (s *memorySeedStore) AddMembers(ctx context.Context, classID string, userIDs []string) (int, error) {
	s.members[classID] = append(s.members[classID], userIDs...)
	return len(userIDs), nil
}

func (s *memorySeedStore) CreateLog(ctx context.Context, log *models.AttendanceLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func TestDefaultSeedPlanMatchesSampleData(t *testing.T) {
	plan := DefaultSeedPlan()

	perStudent := map[string]int{}
	for _, l := range plan.Logs {
		perStudent[l.Student]++
	}
	assert.Equal(t, 15, perStudent["student"])
	assert.Equal(t, 25, perStudent["S001"]+perStudent["S002"]+perStudent["S003"])
	assert.Equal(t, 9, perStudent["S001"])
	assert.Equal(t, seedLog{Class: "educator/Advanced Vue", Student: "S002", Date: "2025-03-05", Time: "10:00 AM"}, plan.Logs[16])
	assert.Equal(t, "alice@example.com", plan.Accounts[3].Email)
}

func TestRunSeedInsertsOnce(t *testing.T) {
	store := newMemorySeedStore()
	plan := DefaultSeedPlan()

	result, err := RunSeed(context.Background(), store, plan, "password123")
	require.NoError(t, err)
	assert.Equal(t, 6, result.Users)
	assert.Equal(t, 6, result.Classes)
	assert.Equal(t, 40, result.Logs)
	assert.Equal(t, 6, result.Members)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.users["student@example.com"].PasswordHash), []byte("password123")))
	assert.Equal(t, models.RoleEducator, store.profiles[store.users["educator@example.com"].ID].Role)

	for _, class := range store.classes {
		assert.NotEmpty(t, class.EducatorID)
	}

	again, err := RunSeed(context.Background(), store, plan, "password123")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Len(t, store.logs, 40)

	var out bytes.Buffer
	printSeedResult(&out, again)
	assert.Contains(t, out.String(), "already present")
}

type stubLister struct {
	listing *service.LogListing
}

func (s stubLister) ListLogs(ctx context.Context, viewer models.Viewer, query models.LogQuery) (*service.LogListing, error) {
	return s.listing, nil
}

func TestRunLogsPrintsEducatorColumns(t *testing.T) {
	name := "Alice Johnson"
	from, _ := logview.ParseDate("2025-03-01")
	to, _ := logview.ParseDate("2025-03-05")
	lister := stubLister{listing: &service.LogListing{
		Snapshot: logview.Snapshot{
			Role:       models.RoleEducator,
			Rows:       []logview.Row{{ID: "1", ClassName: "Intro to React", Date: "2025-03-01", Time: "09:00 AM", StudentName: &name}},
			Page:       1,
			TotalPages: 4,
			TotalCount: 25,
			DateRange:  logview.DateRange{From: from, To: to},
			Sort:       logview.SortLatestDate,
		},
		DataErrors: 2,
	}}

	var out bytes.Buffer
	require.NoError(t, RunLogs(context.Background(), lister, models.Viewer{UserID: "edu", Role: models.RoleEducator}, models.LogQuery{}, &out))

	text := out.String()
	assert.Contains(t, text, "STUDENT")
	assert.Contains(t, text, "Alice Johnson")
	assert.Contains(t, text, "page 1 of 4 (25 records, sort latest-date, range 2025-03-01..2025-03-05)")
	assert.Contains(t, text, "2 records skipped")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["seed"])
	assert.True(t, names["logs"])

	logs := NewLogsCommand()
	for _, flag := range []string{"user", "role", "from", "to", "sort", "page", "demo"} {
		assert.NotNil(t, logs.Flags().Lookup(flag), flag)
	}
}

func TestLogsCommandDemoBatch(t *testing.T) {
	cmd := NewLogsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user", "edu-1", "--role", "educator", "--demo", "--sort", "student-name", "--from", "2025-03-01", "--to", "2025-03-05"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	text := out.String()
	assert.Contains(t, text, "page 1 of 4 (25 records, sort student-name")
	assert.Contains(t, text, "Alice Johnson")
	assert.NotContains(t, text, "Charlie Brown")
}

func TestLogsCommandRejectsUnknownRole(t *testing.T) {
	cmd := NewLogsCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--user", "u", "--role", "admin", "--demo"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
