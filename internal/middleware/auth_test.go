package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/hrm-api/pkg/auth"
)

type fakeVerifier struct {
	claims *auth.Claims
	err    error
	calls  int
}

func (v *fakeVerifier) Verify(token string) (*auth.Claims, error) {
	v.calls++
	return v.claims, v.err
}

func newAuthRouter(m *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", m.Authenticate(), func(c *gin.Context) {
		id, _ := c.Get(ContextUserID)
		c.JSON(http.StatusOK, gin.H{"user_id": id.(uuid.UUID).String()})
	})
	return r
}

func TestAuthenticateAcceptsBearerToken(t *testing.T) {
	userID := uuid.New()
	verifier := &fakeVerifier{claims: &auth.Claims{UserID: userID, Role: "USER"}}
	r := newAuthRouter(NewAuthMiddleware(verifier, time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestAuthenticateAcceptsQueryToken(t *testing.T) {
	// Browser websocket clients cannot set headers on the upgrade request.
	verifier := &fakeVerifier{claims: &auth.Claims{UserID: uuid.New()}}
	r := newAuthRouter(NewAuthMiddleware(verifier, time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/protected?token=good-token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateRejectsMissingAndBadTokens(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("signature mismatch")}
	r := newAuthRouter(NewAuthMiddleware(verifier, time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "NotBearer whatever")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyCachesValidatedClaims(t *testing.T) {
	verifier := &fakeVerifier{claims: &auth.Claims{UserID: uuid.New()}}
	m := NewAuthMiddleware(verifier, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := m.Verify("repeat-token")
		assert.NoError(t, err)
	}

	assert.Equal(t, 1, verifier.calls)
}

func TestVerifyDoesNotCacheFailures(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("expired")}
	m := NewAuthMiddleware(verifier, time.Minute)

	m.Verify("bad")
	m.Verify("bad")

	assert.Equal(t, 2, verifier.calls)
}
