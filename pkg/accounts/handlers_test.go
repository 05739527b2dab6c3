package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/rollcall/pkg/audit"
	"github.com/campuskit/rollcall/pkg/contextkeys"
	"github.com/campuskit/rollcall/pkg/idp"
	"github.com/campuskit/rollcall/pkg/observability"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

type fakeProvider struct {
	user *idp.User
	err  error
}

func (f *fakeProvider) GetUser(_ context.Context, _ string) (*idp.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func setupSyncHandlers(t *testing.T, wl *fakeWhitelist, provider *fakeProvider) (sqlmock.Sqlmock, *mux.Router) {
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	service := &PostgresService{db: db}
	materializer := NewMaterializer(db, service, wl, metrics, logger)
	handlers := NewHandlers(service, materializer, provider, audit.NewNopLogger(), metrics)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	handlers.RegisterRoutes(api)

	return mock, router
}

func authenticated(req *http.Request, externalID string) *http.Request {
	return req.WithContext(contextkeys.WithIdentity(req.Context(), externalID))
}

func providerUser(id, email string) *idp.User {
	return &idp.User{
		ID:                    id,
		PrimaryEmailAddressID: "idn_1",
		EmailAddresses:        []idp.EmailAddress{{ID: "idn_1", EmailAddress: email}},
	}
}

func TestHandlers_Sync(t *testing.T) {
	t.Run("existing account short-circuits", func(t *testing.T) {
		mock, router := setupSyncHandlers(t, &fakeWhitelist{}, &fakeProvider{})

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE external_id").
			WithArgs("user_123").
			WillReturnRows(accountRow(1, "user_123", "alice@school.edu", whitelist.RoleStudent))

		req := authenticated(httptest.NewRequest("POST", "/api/auth/sync", nil), "user_123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "exists", resp["status"])
	})

	t.Run("materializes missing account", func(t *testing.T) {
		wl := &fakeWhitelist{entries: map[string]*whitelist.Entry{
			"alice@school.edu": activeEntry(7, "alice@school.edu", whitelist.RoleStudent),
		}}
		provider := &fakeProvider{user: providerUser("user_123", "alice@school.edu")}
		mock, router := setupSyncHandlers(t, wl, provider)
		now := time.Now().UTC()

		// Handler fast path, then materializer fast path.
		expectNoAccount(mock, "user_123")
		expectNoAccount(mock, "user_123")
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO accounts").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(1, now, now))
		mock.ExpectExec("INSERT INTO students").
			WillReturnResult(sqlmock.NewResult(10, 1))
		mock.ExpectExec("UPDATE user_whitelist").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := authenticated(httptest.NewRequest("POST", "/api/auth/sync", nil), "user_123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "created", resp["status"])
	})

	t.Run("not whitelisted returns 403 with reason", func(t *testing.T) {
		provider := &fakeProvider{user: providerUser("user_123", "stranger@other.edu")}
		mock, router := setupSyncHandlers(t, &fakeWhitelist{}, provider)

		expectNoAccount(mock, "user_123")
		expectNoAccount(mock, "user_123")

		req := authenticated(httptest.NewRequest("POST", "/api/auth/sync", nil), "user_123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_whitelisted", resp["reason"])
	})

	t.Run("deactivated returns 403 with reason", func(t *testing.T) {
		entry := activeEntry(9, "carol@school.edu", whitelist.RoleStudent)
		entry.IsActive = false
		wl := &fakeWhitelist{entries: map[string]*whitelist.Entry{"carol@school.edu": entry}}
		provider := &fakeProvider{user: providerUser("user_789", "carol@school.edu")}
		mock, router := setupSyncHandlers(t, wl, provider)

		expectNoAccount(mock, "user_789")
		expectNoAccount(mock, "user_789")

		req := authenticated(httptest.NewRequest("POST", "/api/auth/sync", nil), "user_789")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "deactivated", resp["reason"])
	})

	t.Run("provider unavailable returns 502", func(t *testing.T) {
		provider := &fakeProvider{err: idp.ErrProviderUnavailable}
		mock, router := setupSyncHandlers(t, &fakeWhitelist{}, provider)

		expectNoAccount(mock, "user_123")

		req := authenticated(httptest.NewRequest("POST", "/api/auth/sync", nil), "user_123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, router := setupSyncHandlers(t, &fakeWhitelist{}, &fakeProvider{})

		req := httptest.NewRequest("POST", "/api/auth/sync", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandlers_Me(t *testing.T) {
	t.Run("returns profile", func(t *testing.T) {
		mock, router := setupSyncHandlers(t, &fakeWhitelist{}, &fakeProvider{})
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE external_id").
			WithArgs("user_123").
			WillReturnRows(accountRow(1, "user_123", "alice@school.edu", whitelist.RoleStudent))
		mock.ExpectQuery("SELECT (.+) FROM students WHERE account_id").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "name", "created_at"}).
				AddRow(10, 1, "Alice", now))

		req := authenticated(httptest.NewRequest("GET", "/api/me", nil), "user_123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var profile Profile
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
		assert.Equal(t, "alice@school.edu", profile.Account.Email)
		require.NotNil(t, profile.Student)
		assert.Equal(t, "Alice", profile.Student.Name)
	})

	t.Run("no account yet", func(t *testing.T) {
		mock, router := setupSyncHandlers(t, &fakeWhitelist{}, &fakeProvider{})

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE external_id").
			WithArgs("user_123").
			WillReturnError(sql.ErrNoRows)

		req := authenticated(httptest.NewRequest("GET", "/api/me", nil), "user_123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
