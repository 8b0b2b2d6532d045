package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims domain.CustomClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func operatorClaims(ttl time.Duration, scopes ...string) domain.CustomClaims {
	c := domain.CustomClaims{
		UserID: "ops-1",
		Scopes: map[string]bool{},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	for _, s := range scopes {
		c.Scopes[s] = true
	}
	return c
}

func TestParseRSAPublicKey(t *testing.T) {
	key := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parsed, err := ParseRSAPublicKey(pemData)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, parsed.N)

	_, err = ParseRSAPublicKey(nil)
	assert.Error(t, err)
	_, err = ParseRSAPublicKey([]byte("garbage"))
	assert.Error(t, err)
}

func TestVerifyToken(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	v := NewBaseValidator(&key.PublicKey)

	testMap := map[string]struct {
		token   string
		wantErr bool
	}{
		"valid bearer": {token: "Bearer " + sign(t, key, jwt.SigningMethodRS256, operatorClaims(time.Hour))},
		"valid raw":    {token: sign(t, key, jwt.SigningMethodRS256, operatorClaims(time.Hour))},
		"expired":      {token: sign(t, key, jwt.SigningMethodRS256, operatorClaims(-time.Hour)), wantErr: true},
		"wrong key":    {token: sign(t, other, jwt.SigningMethodRS256, operatorClaims(time.Hour)), wantErr: true},
		"no exp": {
			token:   sign(t, key, jwt.SigningMethodRS256, domain.CustomClaims{UserID: "ops-1"}),
			wantErr: true,
		},
		"garbage": {token: "Bearer not.a.jwt", wantErr: true},
	}
	for name, tc := range testMap {
		t.Run(name, func(t *testing.T) {
			claims, err := v.VerifyToken(tc.token)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ops-1", claims.UserID)
		})
	}
}

func TestMiddleware(t *testing.T) {
	key := newKey(t)
	v := NewBaseValidator(&key.PublicKey)

	var seen *domain.CustomClaims
	protected := NewMiddleware(v, zap.NewNop())(RequireScope(domain.ScopeApprovalsRead)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = ClaimsFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})))

	testMap := map[string]struct {
		header   string
		wantCode int
	}{
		"missing header": {wantCode: http.StatusUnauthorized},
		"bad token":      {header: "Bearer nope", wantCode: http.StatusUnauthorized},
		"missing scope": {
			header:   "Bearer " + sign(t, key, jwt.SigningMethodRS256, operatorClaims(time.Hour)),
			wantCode: http.StatusForbidden,
		},
		"authorized": {
			header:   "Bearer " + sign(t, key, jwt.SigningMethodRS256, operatorClaims(time.Hour, domain.ScopeApprovalsRead)),
			wantCode: http.StatusOK,
		},
	}
	for name, tc := range testMap {
		t.Run(name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/approvals", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "ops-1", seen.UserID)
			}
		})
	}
}
