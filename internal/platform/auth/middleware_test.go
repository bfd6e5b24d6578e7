package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, key []byte, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testClaims() *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:         "Dr. Lee",
		Role:         "clinician",
		Organization: "org-1",
	}
}

func performRequest(mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, *Actor) {
	e := echo.New()
	var got *Actor
	handler := mw(func(c echo.Context) error {
		got = ActorFromEcho(c)
		return c.NoContent(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, got
}

func TestMiddleware_ValidToken(t *testing.T) {
	key := []byte("test-signing-key")
	token := signToken(t, key, testClaims())
	rec, actor := performRequest(Middleware(key), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if actor == nil || actor.ID != "user-1" || actor.Role != "clinician" || actor.Organization != "org-1" {
		t.Errorf("actor not extracted: %+v", actor)
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	rec, _ := performRequest(Middleware([]byte("k")), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongKey(t *testing.T) {
	token := signToken(t, []byte("other-key"), testClaims())
	rec, _ := performRequest(Middleware([]byte("right-key")), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	key := []byte("k")
	claims := testClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	rec, _ := performRequest(Middleware(key), "Bearer "+signToken(t, key, claims))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	handler := RequireRole("clinician", "admin")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	cases := []struct {
		role string
		want int
	}{
		{"clinician", http.StatusOK},
		{"admin", http.StatusOK},
		{"patient", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("actor", &Actor{ID: "u", Role: tc.role})
		if err := handler(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		if rec.Code != tc.want {
			t.Errorf("role %q: expected %d, got %d", tc.role, tc.want, rec.Code)
		}
	}
}

func TestRequireRole_NoActor(t *testing.T) {
	e := echo.New()
	handler := RequireRole("admin")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without actor, got %d", rec.Code)
	}
}

func TestDevMiddleware(t *testing.T) {
	rec, actor := performRequest(DevMiddleware(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if actor == nil || actor.Role != "admin" {
		t.Errorf("expected admin dev actor, got %+v", actor)
	}
}
