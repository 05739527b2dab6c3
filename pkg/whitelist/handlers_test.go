package whitelist

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/rollcall/pkg/audit"
)

type fakeSender struct {
	sendErr   error
	resendErr error
	sent      []string
	resent    []string
}

func (f *fakeSender) Send(_ context.Context, entry *Entry) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, entry.Email)
	return "inv_new", nil
}

func (f *fakeSender) Resend(_ context.Context, entry *Entry) (string, error) {
	if f.resendErr != nil {
		return "", f.resendErr
	}
	f.resent = append(f.resent, entry.Email)
	return "inv_resent", nil
}

func setupHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, *fakeSender, *mux.Router) {
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	sender := &fakeSender{}
	handlers := NewHandlers(&PostgresService{db: db}, sender, audit.NewNopLogger())

	router := mux.NewRouter()
	admin := router.PathPrefix("/api/admin").Subrouter()
	handlers.RegisterAdminRoutes(admin)
	api := router.PathPrefix("/api").Subrouter()
	handlers.RegisterPublicRoutes(api)

	return handlers, mock, sender, router
}

func TestHandlers_Add(t *testing.T) {
	t.Run("success sends invitation", func(t *testing.T) {
		_, mock, sender, router := setupHandlers(t)
		now := time.Now().UTC()

		mock.ExpectQuery("INSERT INTO user_whitelist").
			WithArgs("alice@school.edu", "Alice", "STUDENT", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
				AddRow(1, true, now, now))

		body, _ := json.Marshal(map[string]string{
			"email": "alice@school.edu",
			"name":  "Alice",
			"role":  "STUDENT",
		})
		req := httptest.NewRequest("POST", "/api/admin/whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, []string{"alice@school.edu"}, sender.sent)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "user added to whitelist", resp["message"])
	})

	t.Run("invitation failure still creates entry", func(t *testing.T) {
		_, mock, sender, router := setupHandlers(t)
		sender.sendErr = errors.New("provider unavailable")
		now := time.Now().UTC()

		mock.ExpectQuery("INSERT INTO user_whitelist").
			WithArgs("bob@school.edu", "Bob", "TEACHER", "Math").
			WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
				AddRow(2, true, now, now))

		body, _ := json.Marshal(map[string]string{
			"email":      "bob@school.edu",
			"name":       "Bob",
			"role":       "TEACHER",
			"department": "Math",
		})
		req := httptest.NewRequest("POST", "/api/admin/whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, sender.sent)
	})

	t.Run("duplicate email returns conflict", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("INSERT INTO user_whitelist").
			WithArgs("alice@school.edu", "Alice", "STUDENT", nil).
			WillReturnError(&pq.Error{Code: "23505"})

		body, _ := json.Marshal(map[string]string{
			"email": "alice@school.edu",
			"name":  "Alice",
			"role":  "STUDENT",
		})
		req := httptest.NewRequest("POST", "/api/admin/whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("validation failure returns bad request", func(t *testing.T) {
		_, _, _, router := setupHandlers(t)

		body, _ := json.Marshal(map[string]string{
			"email": "bob@school.edu",
			"name":  "Bob",
			"role":  "TEACHER",
		})
		req := httptest.NewRequest("POST", "/api/admin/whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, _, _, router := setupHandlers(t)

		req := httptest.NewRequest("POST", "/api/admin/whitelist", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandlers_List(t *testing.T) {
	_, mock, _, router := setupHandlers(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(entryRowColumns).
		AddRow(1, "alice@school.edu", "Alice", "STUDENT", nil, true,
			false, nil, nil, false, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM user_whitelist ORDER BY created_at DESC").
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/api/admin/whitelist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Whitelist []*Entry `json:"whitelist"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Whitelist, 1)
	assert.Equal(t, "alice@school.edu", resp.Whitelist[0].Email)
}

func TestHandlers_Remove(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
			WithArgs(int64(1)).
			WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, true))
		mock.ExpectExec("DELETE FROM user_whitelist WHERE id").
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest("DELETE", "/api/admin/whitelist/1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		req := httptest.NewRequest("DELETE", "/api/admin/whitelist/99", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		_, _, _, router := setupHandlers(t)

		req := httptest.NewRequest("DELETE", "/api/admin/whitelist/abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandlers_Deactivate(t *testing.T) {
	_, mock, _, router := setupHandlers(t)

	mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, true))
	mock.ExpectExec("UPDATE user_whitelist SET is_active").
		WithArgs(false, "alice@school.edu").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, false))

	req := httptest.NewRequest("POST", "/api/admin/whitelist/1/deactivate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entry *Entry `json:"whitelist_entry"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Entry.IsActive)
}

func TestHandlers_ResendInvitation(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, mock, sender, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
			WithArgs(int64(1)).
			WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, true))

		req := httptest.NewRequest("POST", "/api/admin/whitelist/1/resend-invitation", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"alice@school.edu"}, sender.resent)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "inv_resent", resp["invitation_id"])
	})

	t.Run("provider failure surfaces as bad gateway", func(t *testing.T) {
		_, mock, sender, router := setupHandlers(t)
		sender.resendErr = errors.New("provider unavailable")

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
			WithArgs(int64(1)).
			WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, true))

		req := httptest.NewRequest("POST", "/api/admin/whitelist/1/resend-invitation", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("entry not found", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE id").
			WithArgs(int64(42)).
			WillReturnError(sql.ErrNoRows)

		req := httptest.NewRequest("POST", "/api/admin/whitelist/42/resend-invitation", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlers_CheckWhitelist(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE email").
			WithArgs("alice@school.edu").
			WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, true))

		body, _ := json.Marshal(map[string]string{"email": "alice@school.edu"})
		req := httptest.NewRequest("POST", "/api/auth/check-whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["allowed"])
		assert.Equal(t, "STUDENT", resp["role"])
	})

	t.Run("not whitelisted", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE email").
			WithArgs("nobody@school.edu").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(map[string]string{"email": "nobody@school.edu"})
		req := httptest.NewRequest("POST", "/api/auth/check-whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("deactivated", func(t *testing.T) {
		_, mock, _, router := setupHandlers(t)

		mock.ExpectQuery("SELECT (.+) FROM user_whitelist WHERE email").
			WithArgs("alice@school.edu").
			WillReturnRows(entryRow(1, "alice@school.edu", RoleStudent, false))

		body, _ := json.Marshal(map[string]string{"email": "alice@school.edu"})
		req := httptest.NewRequest("POST", "/api/auth/check-whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		_, _, _, router := setupHandlers(t)

		body, _ := json.Marshal(map[string]string{})
		req := httptest.NewRequest("POST", "/api/auth/check-whitelist", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
