package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-dashboard-api/internal/logview"
	"github.com/noah-isme/attendance-dashboard-api/internal/middleware"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/internal/service"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withUser(c *gin.Context, id string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, Role: role})
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type authServiceStub struct {
	signInReq  models.SignInRequest
	signOutFor string
	err        error
}

func (s *authServiceStub) SignUp(ctx context.Context, req models.SignUpRequest) (*models.SessionResponse, error) {
	return &models.SessionResponse{AccessToken: "a", User: models.UserInfo{Email: req.Email, Role: models.RoleStudent}}, s.err
}

func (s *authServiceStub) SignIn(ctx context.Context, req models.SignInRequest) (*models.SessionResponse, error) {
	s.signInReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.SessionResponse{AccessToken: "a", RefreshToken: "r"}, nil
}

func (s *authServiceStub) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.SessionResponse, error) {
	return &models.SessionResponse{AccessToken: "b"}, s.err
}

func (s *authServiceStub) SignOut(ctx context.Context, userID string, req models.SignOutRequest, ip, userAgent string) error {
	s.signOutFor = userID
	return s.err
}

func (s *authServiceStub) UpdateUser(ctx context.Context, userID string, req models.UpdateUserRequest) (*models.Session, error) {
	return &models.Session{User: models.User{ID: userID}}, s.err
}

type sessionStub map[string]*models.Session

func (s sessionStub) Get(ctx context.Context, userID string) (*models.Session, error) {
	session, ok := s[userID]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	return session, nil
}

func TestAuthHandlerSignIn(t *testing.T) {
	svc := &authServiceStub{}
	h := NewAuthHandler(svc, sessionStub{})

	c, w := newGinContext(http.MethodPost, "/auth/sign-in", []byte(`{"email":"ada@example.com","password":"secret"}`))
	c.Request.Header.Set("User-Agent", "test-agent")
	h.SignIn(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", svc.signInReq.Email)
	assert.Equal(t, "test-agent", svc.signInReq.UserAgent)

	c, w = newGinContext(http.MethodPost, "/auth/sign-in", []byte(`{`))
	h.SignIn(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.ErrInvalidCredentials
	c, w = newGinContext(http.MethodPost, "/auth/sign-in", []byte(`{"email":"ada@example.com","password":"nope"}`))
	h.SignIn(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w).Error.Code)
}

func TestAuthHandlerSignUpAndSignOut(t *testing.T) {
	svc := &authServiceStub{}
	h := NewAuthHandler(svc, sessionStub{})

	c, w := newGinContext(http.MethodPost, "/auth/sign-up", []byte(`{"email":"new@example.com","password":"secret1","first_name":"N","last_name":"U"}`))
	h.SignUp(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/sign-out", []byte(`{"refresh_token":"r"}`))
	h.SignOut(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/sign-out", []byte(`{"refresh_token":"r"}`))
	withUser(c, "user-1", models.RoleStudent)
	h.SignOut(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", svc.signOutFor)
}

func TestAuthHandlerSessionUsesStore(t *testing.T) {
	h := NewAuthHandler(&authServiceStub{}, sessionStub{
		"user-1": {User: models.User{ID: "user-1", Email: "ada@example.com"}, Profile: &models.Profile{FirstName: "Ada"}},
	})

	c, w := newGinContext(http.MethodGet, "/auth/session", nil)
	withUser(c, "user-1", models.RoleStudent)
	h.Session(c)
	require.Equal(t, http.StatusOK, w.Code)

	var session models.Session
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &session))
	assert.Equal(t, "Ada", session.Profile.FirstName)

	c, w = newGinContext(http.MethodGet, "/auth/session", nil)
	withUser(c, "ghost", models.RoleStudent)
	h.Session(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type profileServiceStub struct {
	updated models.UpdateProfileRequest
}

func (s *profileServiceStub) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return &models.Profile{ID: id, FirstName: "Ada"}, nil
}

func (s *profileServiceStub) UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.Profile, error) {
	s.updated = req
	return &models.Profile{ID: id, FirstName: req.FirstName, LastName: req.LastName}, nil
}

func TestProfileHandler(t *testing.T) {
	svc := &profileServiceStub{}
	h := NewProfileHandler(svc)

	c, w := newGinContext(http.MethodGet, "/profile", nil)
	withUser(c, "user-1", models.RoleStudent)
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodPut, "/profile", []byte(`{"first_name":"Grace","last_name":"Hopper"}`))
	withUser(c, "user-1", models.RoleStudent)
	h.Update(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Grace", svc.updated.FirstName)
}

type classServiceStub struct {
	actor     models.Viewer
	filter    models.MemberFilter
	removed   int64
	exclude   []string
	term      string
	inviteErr error
}

func (s *classServiceStub) CreateClass(ctx context.Context, actor models.Viewer, req models.CreateClassRequest) (*models.Class, error) {
	s.actor = actor
	if actor.Role != models.RoleEducator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only educators can create classes")
	}
	return &models.Class{ID: "class-1", Name: req.Name, EducatorID: actor.UserID}, nil
}

func (s *classServiceStub) GetClass(ctx context.Context, actor models.Viewer, id string) (*models.Class, error) {
	return &models.Class{ID: id}, nil
}

func (s *classServiceStub) UpdateClass(ctx context.Context, actor models.Viewer, id string, req models.UpdateClassRequest) (*models.Class, error) {
	return &models.Class{ID: id, Name: req.Name}, nil
}

func (s *classServiceStub) ListClasses(ctx context.Context, actor models.Viewer) ([]models.Class, error) {
	return []models.Class{{ID: "class-1"}}, nil
}

func (s *classServiceStub) ListMembers(ctx context.Context, actor models.Viewer, classID string, filter models.MemberFilter) ([]models.ClassMember, *models.Pagination, error) {
	s.filter = filter
	return []models.ClassMember{{ID: 1, ClassID: classID}}, models.NewPagination(filter.Page, filter.PageSize, 1), nil
}

func (s *classServiceStub) InviteMembers(ctx context.Context, actor models.Viewer, classID string, req models.InviteMembersRequest) (int, error) {
	return len(req.UserIDs), s.inviteErr
}

func (s *classServiceStub) RemoveMember(ctx context.Context, actor models.Viewer, classID string, memberID int64) error {
	s.removed = memberID
	return nil
}

func (s *classServiceStub) SearchUsers(ctx context.Context, term string, excludeIDs []string, limit int) ([]models.UserSearchResult, error) {
	s.term = term
	s.exclude = excludeIDs
	return []models.UserSearchResult{}, nil
}

func (s *classServiceStub) SearchCandidates(ctx context.Context, actor models.Viewer, classID, term string, limit int) ([]models.UserSearchResult, error) {
	s.term = term
	return []models.UserSearchResult{{ID: "stu-2"}}, nil
}

func TestClassHandlerCreate(t *testing.T) {
	svc := &classServiceStub{}
	h := NewClassHandler(svc)

	c, w := newGinContext(http.MethodPost, "/classes", []byte(`{"name":"Intro to React"}`))
	withUser(c, "edu-1", models.RoleEducator)
	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "edu-1", svc.actor.UserID)

	c, w = newGinContext(http.MethodPost, "/classes", []byte(`{"name":"Intro to React"}`))
	withUser(c, "stu-1", models.RoleStudent)
	h.Create(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClassHandlerMembers(t *testing.T) {
	svc := &classServiceStub{}
	h := NewClassHandler(svc)

	c, w := newGinContext(http.MethodGet, "/classes/class-1/members?page=2&limit=5", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	withUser(c, "edu-1", models.RoleEducator)
	h.Members(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.MemberFilter{Page: 2, PageSize: 5}, svc.filter)
	assert.NotNil(t, decode(t, w).Pagination)

	c, w = newGinContext(http.MethodPost, "/classes/class-1/members", []byte(`{"user_ids":["a","b"]}`))
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	withUser(c, "edu-1", models.RoleEducator)
	h.Invite(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"added":2}`, string(decode(t, w).Data))

	c, w = newGinContext(http.MethodDelete, "/classes/class-1/members/x", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}, {Key: "memberId", Value: "x"}}
	withUser(c, "edu-1", models.RoleEducator)
	h.RemoveMember(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodDelete, "/classes/class-1/members/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}, {Key: "memberId", Value: "7"}}
	withUser(c, "edu-1", models.RoleEducator)
	h.RemoveMember(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), svc.removed)
}

func TestClassHandlerSearchUsersParsesExclusions(t *testing.T) {
	svc := &classServiceStub{}
	h := NewClassHandler(svc)

	c, w := newGinContext(http.MethodGet, "/users/search?q=%20ali%20&exclude=a,,b", nil)
	withUser(c, "edu-1", models.RoleEducator)
	h.SearchUsers(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ali", svc.term)
	assert.Equal(t, []string{"a", "b"}, svc.exclude)
}

type logServiceStub struct {
	query models.LogQuery
	err   error
}

func (s *logServiceStub) ListLogs(ctx context.Context, viewer models.Viewer, query models.LogQuery) (*service.LogListing, error) {
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	from, _ := logview.ParseDate("2025-03-01")
	to, _ := logview.ParseDate("2025-03-05")
	return &service.LogListing{
		Snapshot: logview.Snapshot{
			Role:       viewer.Role,
			Rows:       []logview.Row{{ID: "101", ClassName: "Intro to React", Date: "2025-03-05", Time: "09:00 AM"}},
			Page:       1,
			PageSize:   8,
			TotalPages: 2,
			TotalCount: 9,
			DateRange:  logview.DateRange{From: from, To: to},
			Sort:       logview.SortLatestDate,
		},
		Pagination: models.NewPagination(1, 8, 9),
		DataErrors: 1,
	}, nil
}

func (s *logServiceStub) SortOptions(role models.UserRole) []models.SortOptionInfo {
	return logview.OptionInfos(role)
}

func (s *logServiceStub) DefaultSort() string { return "latest-date" }

type trendServiceStub struct{}

func (trendServiceStub) Series(ctx context.Context, viewer models.Viewer, rng models.TrendRange) (*models.TrendSeries, bool, error) {
	return &models.TrendSeries{Range: rng, Role: viewer.Role}, true, nil
}

func TestAttendanceHandlerLogs(t *testing.T) {
	svc := &logServiceStub{}
	h := NewAttendanceHandler(svc, trendServiceStub{})

	c, w := newGinContext(http.MethodGet, "/attendance/logs?from=2025-03-01&to=2025-03-05&sort=latest-date&page=1", nil)
	withUser(c, "stu-1", models.RoleStudent)
	h.Logs(c)
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	assert.Equal(t, models.LogQuery{From: "2025-03-01", To: "2025-03-05", Sort: "latest-date", Page: 1}, svc.query)
	assert.EqualValues(t, 2, env.Meta["total_pages"])
	assert.Equal(t, "2025-03-01", env.Meta["from"])
	assert.Equal(t, "student", env.Meta["role"])
	assert.EqualValues(t, 1, env.Meta["data_errors"])
	assert.NotContains(t, string(env.Data), "studentName")

	c, w = newGinContext(http.MethodGet, "/attendance/logs?page=abc", nil)
	withUser(c, "stu-1", models.RoleStudent)
	h.Logs(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.Clone(appErrors.ErrValidation, "sort option not offered")
	c, w = newGinContext(http.MethodGet, "/attendance/logs?sort=student-name", nil)
	withUser(c, "stu-1", models.RoleStudent)
	h.Logs(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerSortOptionsByRole(t *testing.T) {
	h := NewAttendanceHandler(&logServiceStub{}, trendServiceStub{})

	c, w := newGinContext(http.MethodGet, "/attendance/sort-options", nil)
	withUser(c, "stu-1", models.RoleStudent)
	h.SortOptions(c)
	assert.NotContains(t, w.Body.String(), "student-name")

	c, w = newGinContext(http.MethodGet, "/attendance/sort-options", nil)
	withUser(c, "edu-1", models.RoleEducator)
	h.SortOptions(c)
	assert.Contains(t, w.Body.String(), "student-name")
}

func TestAttendanceHandlerTrendsNormalizesRange(t *testing.T) {
	h := NewAttendanceHandler(&logServiceStub{}, trendServiceStub{})

	c, w := newGinContext(http.MethodGet, "/attendance/trends?range=1y", nil)
	withUser(c, "stu-1", models.RoleStudent)
	h.Trends(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get(middleware.CacheHeader))

	var series models.TrendSeries
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &series))
	assert.Equal(t, models.TrendRange90d, series.Range)
}

type exportServiceStub struct {
	download *service.ExportDownload
	err      error
}

func (s *exportServiceStub) CreateExport(ctx context.Context, viewer models.Viewer, req models.CreateExportRequest) (*models.ExportJobResponse, error) {
	return &models.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued, Format: req.Format}, s.err
}

func (s *exportServiceStub) GetExport(ctx context.Context, viewer models.Viewer, id string) (*models.ExportJobResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExportJobResponse{ID: id, Status: models.ExportStatusFinished}, nil
}

func (s *exportServiceStub) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	return s.download, s.err
}

func TestExportHandlerCreateAndStatus(t *testing.T) {
	svc := &exportServiceStub{}
	h := NewExportHandler(svc)

	c, w := newGinContext(http.MethodPost, "/attendance/exports", []byte(`{"format":"csv"}`))
	withUser(c, "stu-1", models.RoleStudent)
	h.Create(c)
	assert.Equal(t, http.StatusAccepted, w.Code)

	svc.err = appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	c, w = newGinContext(http.MethodGet, "/attendance/exports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	withUser(c, "stu-9", models.RoleStudent)
	h.Status(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	h := NewExportHandler(&exportServiceStub{download: &service.ExportDownload{
		Reader:      io.NopCloser(strings.NewReader("Class,Date,Time\n")),
		Size:        16,
		Filename:    "logs.csv",
		ContentType: "text/csv",
		ExpiresAt:   time.Now().Add(time.Hour),
	}})

	c, w := newGinContext(http.MethodGet, "/attendance/exports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "logs.csv")
	assert.Equal(t, "Class,Date,Time\n", w.Body.String())
}

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"postgres": pingStub{}})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"redis": PingFunc(func(context.Context) error { return io.EOF })})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
