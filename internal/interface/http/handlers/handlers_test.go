package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret", "identity")

	tok, err := v.Sign("user-1", "a@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := NewTokenVerifier("secret", "identity")

	sign := func(method jwt.SigningMethod, key any, c Claims) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() Claims {
		return Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
	}

	wrongIssuer := valid()
	wrongIssuer.Issuer = "elsewhere"
	noSubject := valid()
	noSubject.Subject = ""
	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := map[string]string{
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), valid()),
		"wrong issuer": sign(jwt.SigningMethodHS256, []byte("secret"), wrongIssuer),
		"no subject":   sign(jwt.SigningMethodHS256, []byte("secret"), noSubject),
		"expired":      sign(jwt.SigningMethodHS256, []byte("secret"), expired),
		"HS512":        sign(jwt.SigningMethodHS512, []byte("secret"), valid()),
		"alg none":     sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()),
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenVerifier_LeewayAndOptionalIssuer(t *testing.T) {
	v := NewTokenVerifier("secret", "")

	c := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "anyone",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	_, err := BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Bearer abc")
	tok, err := BearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	r.Header.Set("Authorization", "Basic abc")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	// Query tokens only for GET.
	r = httptest.NewRequest(http.MethodPost, "/?access_token=q", nil)
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r = httptest.NewRequest(http.MethodGet, "/?access_token=q", nil)
	tok, err = BearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "q", tok)
}

func TestClaimsContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
	id, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u", id)
}

func TestAdminKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	a := NewAdminKeyAuth("", string(hash))
	assert.Equal(t, "X-Admin-Key", a.HeaderName())
	assert.True(t, a.IsValid("s3cret"))
	assert.False(t, a.IsValid("S3cret"))
	assert.False(t, a.IsValid(""))

	assert.False(t, NewAdminKeyAuth("X-Key", "").IsValid("s3cret"))
}

func TestHashAdminKey(t *testing.T) {
	h, err := HashAdminKey("k")
	require.NoError(t, err)
	assert.True(t, NewAdminKeyAuth("", h).IsValid("k"))
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.0.0")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("store", true, NewPingCheck(pinger{}))
	c.AddCheck("redis", false, NewPingCheck(pinger{err: errors.New("refused")}))

	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Equal(t, "refused", status.Checks["redis"].Message)
	assert.False(t, status.Checks["redis"].Required)
	assert.Equal(t, "OK", status.Checks["store"].Message)

	c.AddCheck("store", true, NewPingCheck(pinger{err: errors.New("closed")}))
	status = c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis, store", status.Message)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("a"), mw("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
