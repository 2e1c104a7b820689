package users

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bkovacevic/gymlog/internal/auth"
	"github.com/bkovacevic/gymlog/internal/web"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, redismock.ClientMock, *auth.Service) {
	t.Helper()

	service, _ := newTestService(t)

	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		require.NoError(t, rdb.Close())
	})

	authService := auth.NewService(time.Hour, rdb)
	cookies := auth.NewCookieStore([]byte("test-signing-secret"), false)

	return NewHandler(service, authService, cookies, web.Load()), mock, authService
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandler_Register(t *testing.T) {
	handler, mock, authService := newTestHandler(t)

	authService.RandStringFunc = func(s int) (string, error) {
		return "test_token", nil
	}
	mock.Regexp().ExpectSet(`gymlog-session\|\|test_token`, `1:\d+`, 0).SetVal("ok")
	mock.ExpectSAdd("gymlog-sessions", "test_token").SetVal(1)

	rr := httptest.NewRecorder()
	handler.HandleRegister(rr, postForm("/register", url.Values{
		"email":    {"gym@gymlog.io"},
		"password": {"password123"},
	}))

	// registration logs the fresh account straight in
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "gymlog_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestHandler_Register_Invalid(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.HandleRegister(rr, postForm("/register", url.Values{
		"email":    {"gym@gymlog.io"},
		"password": {"short"},
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "at least 8 characters")

	rr = httptest.NewRecorder()
	handler.HandleRegister(rr, postForm("/register", url.Values{
		"email":    {"not-an-email"},
		"password": {"password123"},
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_Login(t *testing.T) {
	handler, mock, authService := newTestHandler(t)

	_, err := handler.service.Register(t.Context(), "gym@gymlog.io", "password123")
	require.NoError(t, err)

	authService.RandStringFunc = func(s int) (string, error) {
		return "test_token", nil
	}
	mock.Regexp().ExpectSet(`gymlog-session\|\|test_token`, `\d+:\d+`, 0).SetVal("ok")
	mock.ExpectSAdd("gymlog-sessions", "test_token").SetVal(1)

	rr := httptest.NewRecorder()
	handler.HandleLogin(rr, postForm("/login", url.Values{
		"email":    {"gym@gymlog.io"},
		"password": {"password123"},
	}))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	require.NotEmpty(t, rr.Result().Cookies())
}

func TestHandler_Login_WrongCredentials(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	_, err := handler.service.Register(t.Context(), "gym@gymlog.io", "password123")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.HandleLogin(rr, postForm("/login", url.Values{
		"email":    {"gym@gymlog.io"},
		"password": {"wrong-password"},
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "wrong email or password")
	assert.Empty(t, rr.Result().Cookies())

	rr = httptest.NewRecorder()
	handler.HandleLogin(rr, postForm("/login", url.Values{
		"email":    {"nobody@gymlog.io"},
		"password": {"password123"},
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	// same response for unknown emails, no account enumeration
	assert.Contains(t, rr.Body.String(), "wrong email or password")
}

func TestHandler_LoginPage(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.HandleLoginPage(rr, httptest.NewRequest("GET", "/login", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `action="/login"`)

	rr = httptest.NewRecorder()
	handler.HandleRegisterPage(rr, httptest.NewRequest("GET", "/register", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `action="/register"`)
}

func TestHandler_Logout(t *testing.T) {
	handler, mock, _ := newTestHandler(t)

	// logout without a cookie still redirects to login
	rr := httptest.NewRecorder()
	handler.HandleLogout(rr, postForm("/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	require.NoError(t, mock.ExpectationsWereMet())
}
