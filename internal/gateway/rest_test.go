package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/session"
)

type staticCredential struct {
	mu    sync.Mutex
	token string
}

func (s *staticCredential) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *staticCredential) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// recorder is a fake backend that remembers the last request.
type recorder struct {
	mu      sync.Mutex
	method  string
	path    string
	auth    string
	body    []byte
	handler func(w http.ResponseWriter, r *http.Request)
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec.mu.Lock()
	rec.method, rec.path, rec.auth, rec.body = r.Method, r.URL.Path, r.Header.Get("Authorization"), body
	h := rec.handler
	rec.mu.Unlock()
	if h != nil {
		h(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newTestGateway(t *testing.T, rec *recorder, creds CredentialSource, opts ...Option) *Gateway {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	g, err := New(Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second}, creds, nil, opts...)
	require.NoError(t, err)
	return g
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "/api"}, nil, nil)
	assert.Error(t, err)
}

func TestSignInSendsCredentialsAndDecodes(t *testing.T) {
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken": "jwt", "id": "1", "username": "admin", "email": "admin@uni.edu", "role": "ADMIN",
		})
	}}
	g := newTestGateway(t, rec, nil)

	resp, err := g.SignIn(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, resp.Role)
	assert.Equal(t, "jwt", resp.Credential())

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/auth/signin", rec.path)
	assert.Empty(t, rec.auth)
	assert.JSONEq(t, `{"usernameOrEmail":"admin","password":"admin123"}`, string(rec.body))
}

func TestCredentialReadAtCallTime(t *testing.T) {
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}}
	creds := &staticCredential{token: "t-1"}
	g := newTestGateway(t, rec, creds)

	_, err := g.TrackingVehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer t-1", rec.auth)

	creds.set("")
	_, err = g.TrackingVehicles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rec.auth)
}

func TestLogoutRemovesAuthorizationHeader(t *testing.T) {
	rec := &recorder{}
	rec.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/signin" {
			writeJSON(w, http.StatusOK, map[string]any{"token": "opaque", "id": "3", "role": "STUDENT"})
			return
		}
		writeJSON(w, http.StatusOK, model.DashboardStats{TotalVehicles: 4})
	}

	store := session.NewStore(nil, nil)
	g := newTestGateway(t, rec, store, WithAuthErrorHandler(store.HandleError))
	store.SetAPI(g)

	require.True(t, store.Login(context.Background(), "s", "pw").Success)
	_, err := g.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer opaque", rec.auth)

	store.Logout()
	_, err = g.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rec.auth)
}

func TestFailedSignInKeepsCurrentSession(t *testing.T) {
	rec := &recorder{}
	rec.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/signin" && r.Header.Get("Authorization") != "" {
			t.Errorf("sign-in sent %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": "opaque", "id": "3", "role": "STUDENT"})
	}

	store := session.NewStore(nil, nil)
	g := newTestGateway(t, rec, store, WithAuthErrorHandler(store.HandleError))
	store.SetAPI(g)
	require.True(t, store.Login(context.Background(), "s", "pw").Success)

	rec.mu.Lock()
	rec.handler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	}
	rec.mu.Unlock()

	res := store.Login(context.Background(), "s", "wrong")
	assert.False(t, res.Success)
	assert.Equal(t, "Bad credentials", res.Message)
	assert.Empty(t, rec.auth)

	sess, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "opaque", sess.Credential)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    apperr.Kind
		message string
	}{
		{"unauthorized", 401, `{"message":"Full authentication is required"}`, apperr.KindAuth, "Full authentication is required"},
		{"forbidden", 403, ``, apperr.KindAuth, ""},
		{"not found", 404, `{"error":"Not Found"}`, apperr.KindNotFound, "Not Found"},
		{"bad request", 400, `Error: Vehicle number already exists`, apperr.KindValidation, "Error: Vehicle number already exists"},
		{"server", 503, `<html>oops</html>`, apperr.KindServer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}}
			g := newTestGateway(t, rec, nil)

			_, err := g.Announcements(context.Background())
			require.Error(t, err)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, tt.message, ae.Message)
		})
	}
}

func TestAuthHookOnlyForAuthenticatedCalls(t *testing.T) {
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	}}
	var hooked []error
	creds := &staticCredential{}
	g := newTestGateway(t, rec, creds, WithAuthErrorHandler(func(err error) { hooked = append(hooked, err) }))

	_, err := g.SignIn(context.Background(), "x", "y")
	assert.True(t, apperr.IsAuth(err))
	assert.Empty(t, hooked)

	creds.set("expired")
	_, err = g.Me(context.Background())
	assert.True(t, apperr.IsAuth(err))
	require.Len(t, hooked, 1)
}

func TestNetworkError(t *testing.T) {
	g, err := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	_, err = g.DashboardStats(context.Background())
	assert.True(t, apperr.IsNetwork(err))
}

func TestMalformedBodyIsServerError(t *testing.T) {
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "{not json")
	}}
	g := newTestGateway(t, rec, nil)

	_, err := g.DashboardStats(context.Background())
	assert.True(t, apperr.IsServer(err))
}

func TestAnnouncementRoutes(t *testing.T) {
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, model.Announcement{ID: "a/1", Title: "Road closed", IsPinned: true})
	}}
	g := newTestGateway(t, rec, nil)
	ctx := context.Background()

	a, err := g.ToggleAnnouncementPin(ctx, "a/1")
	require.NoError(t, err)
	assert.True(t, a.IsPinned)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/announcements/a/1/pin", rec.path) // decoded path

	_, err = g.UpdateAnnouncement(ctx, "42", model.Announcement{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/api/announcements/42", rec.path)

	require.NoError(t, g.DeleteAnnouncement(ctx, "42"))
	assert.Equal(t, http.MethodDelete, rec.method)
}

func TestDriverEndpoints(t *testing.T) {
	rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/driver/duty-status":
			writeJSON(w, http.StatusOK, model.DutyStatus{OnDuty: true, VehicleID: "v1"})
		case "/api/driver/complete-stop":
			writeJSON(w, http.StatusOK, model.Trip{ID: "t1", Stops: []model.Stop{{ID: "s1", Completed: true}, {ID: "s2"}}})
		case "/api/driver/current-trip":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No active trip"})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		}
	}}
	g := newTestGateway(t, rec, nil)
	ctx := context.Background()

	duty, err := g.SetDutyStatus(ctx, true)
	require.NoError(t, err)
	assert.True(t, duty.OnDuty)
	assert.JSONEq(t, `{"onDuty":true}`, string(rec.body))

	trip, err := g.CompleteStop(ctx, "t1", "s1")
	require.NoError(t, err)
	next, ok := trip.NextStop()
	require.True(t, ok)
	assert.Equal(t, "s2", next.ID)

	_, err = g.CurrentTrip(ctx)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "No active trip", apperr.MessageOf(err, ""))
}

type fakeStore struct {
	keys []string
	fail bool
}

func (f *fakeStore) Upload(_ context.Context, key string, u Upload) (model.Attachment, error) {
	if f.fail {
		return model.Attachment{}, errors.New("bucket gone")
	}
	f.keys = append(f.keys, key)
	return model.Attachment{Name: u.Name, URL: "https://s3.local/" + key}, nil
}

func TestSubmitReport(t *testing.T) {
	ctx := context.Background()
	report := model.Report{VehicleID: "v1", Category: "INCIDENT", Description: "Flat tyre"}
	photo := Upload{Name: "tyre.jpg", ContentType: "image/jpeg", Size: 3, Body: strings.NewReader("abc")}

	t.Run("validation", func(t *testing.T) {
		rec := &recorder{}
		g := newTestGateway(t, rec, nil)
		_, err := g.SubmitReport(ctx, model.Report{})
		assert.True(t, apperr.IsValidation(err))
		assert.Empty(t, rec.method)
	})

	t.Run("attachments without a store", func(t *testing.T) {
		rec := &recorder{}
		g := newTestGateway(t, rec, nil)
		_, err := g.SubmitReport(ctx, report, photo)
		assert.True(t, apperr.IsCapability(err))
		assert.Empty(t, rec.method)
	})

	t.Run("upload failure files nothing", func(t *testing.T) {
		rec := &recorder{}
		g := newTestGateway(t, rec, nil, WithAttachmentStore(&fakeStore{fail: true}))
		_, err := g.SubmitReport(ctx, report, photo)
		assert.True(t, apperr.IsNetwork(err))
		assert.Empty(t, rec.method)
	})

	t.Run("uploads then files", func(t *testing.T) {
		rec := &recorder{handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Report submitted"})
		}}
		store := &fakeStore{}
		g := newTestGateway(t, rec, nil, WithAttachmentStore(store))
		resp, err := g.SubmitReport(ctx, report, photo)
		require.NoError(t, err)
		assert.Equal(t, "Report submitted", resp.Message)
		require.Len(t, store.keys, 1)
		assert.True(t, strings.HasPrefix(store.keys[0], "reports/v1/"))

		var filed model.Report
		require.NoError(t, json.Unmarshal(rec.body, &filed))
		require.Len(t, filed.Attachments, 1)
		assert.Equal(t, "https://s3.local/"+store.keys[0], filed.Attachments[0].URL)
	})
}
