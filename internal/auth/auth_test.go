package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/pkg/types"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier([]byte("test-secret"), "")
	require.NoError(t, err)
	return v
}

func TestVerifier_SignAndVerify(t *testing.T) {
	v := newTestVerifier(t)

	raw, err := v.Sign(Claims{Subject: "u-1", Role: types.RoleManager, Name: "Lina"}, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, Claims{Subject: "u-1", Role: types.RoleManager, Name: "Lina"}, claims)
	assert.True(t, claims.HasAnyRole(types.RoleAdmin, types.RoleManager))
	assert.False(t, claims.HasAnyRole(types.RoleClient))
}

func TestVerifier_Rejects(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewVerifier([]byte("other-secret"), "")
	require.NoError(t, err)
	foreign, err := other.Sign(Claims{Subject: "u-1", Role: types.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	expired, err := v.Sign(Claims{Subject: "u-1", Role: types.RoleAdmin}, -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "empty", raw: "", want: ErrMissingToken},
		{name: "garbage", raw: "not-a-jwt", want: ErrInvalidToken},
		{name: "wrong key", raw: foreign, want: ErrInvalidToken},
		{name: "expired", raw: expired, want: ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPeekClaims(t *testing.T) {
	other, err := NewVerifier([]byte("someone-elses-secret"), "elsewhere")
	require.NoError(t, err)
	raw, err := other.Sign(Claims{Subject: "c-9", Role: types.RoleClient}, -time.Minute)
	require.NoError(t, err)

	claims, err := PeekClaims(raw)
	require.NoError(t, err)
	assert.Equal(t, "c-9", claims.Subject)
	assert.Equal(t, types.RoleClient, claims.Role)

	_, err = PeekClaims("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = PeekClaims("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_SignUnknownRole(t *testing.T) {
	_, err := newTestVerifier(t).Sign(Claims{Subject: "u-1", Role: "guest"}, time.Hour)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(nil, "")
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Sign(Claims{Subject: "c-9", Role: types.RoleClient}, time.Hour)
	require.NoError(t, err)

	var got Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		got = c
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		devMode  bool
		header   string
		wantCode int
		wantSub  string
	}{
		{name: "valid token", header: "Bearer " + token, wantCode: http.StatusNoContent, wantSub: "c-9"},
		{name: "missing token", wantCode: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "dev mode without token", devMode: true, wantCode: http.StatusNoContent, wantSub: DevSubject},
		{name: "dev mode still verifies", devMode: true, header: "Bearer nope", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = Claims{}
			h := JWTMiddleware(MiddlewareConfig{Verifier: v, DevMode: tt.devMode})(next)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/halls", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantSub, got.Subject)
		})
	}
}

func TestResolveToken_Precedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: http://x\nauth:\n  token: cli-token\n"), 0o600))

	t.Setenv("INVOCCA_TOKEN", "env-token")
	resolved, err := ResolveToken(TokenSourceOptions{Explicit: "flag-token", ConfigPath: configPath})
	require.NoError(t, err)
	assert.Equal(t, TokenResolution{Token: "flag-token", Source: TokenSourceFlag}, resolved)

	resolved, err = ResolveToken(TokenSourceOptions{ConfigPath: configPath})
	require.NoError(t, err)
	assert.Equal(t, TokenSourceEnv, resolved.Source)

	t.Setenv("INVOCCA_TOKEN", "")
	resolved, err = ResolveToken(TokenSourceOptions{ConfigPath: configPath})
	require.NoError(t, err)
	assert.Equal(t, TokenResolution{Token: "cli-token", Source: TokenSourceConfig}, resolved)
}

func TestResolveToken_MissingConfig(t *testing.T) {
	t.Setenv("INVOCCA_TOKEN", "")
	resolved, err := ResolveToken(TokenSourceOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	require.NoError(t, err)
	assert.Empty(t, resolved.Token)
}

func TestSaveToken_KeepsOtherKeys(t *testing.T) {
	t.Setenv("INVOCCA_TOKEN", "")
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o700))
	require.NoError(t, os.WriteFile(configPath, []byte("server: http://api:8080\n"), 0o600))

	require.NoError(t, SaveToken(configPath, "saved"))

	resolved, err := ResolveToken(TokenSourceOptions{ConfigPath: configPath})
	require.NoError(t, err)
	assert.Equal(t, "saved", resolved.Token)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server: http://api:8080")

	require.NoError(t, SaveToken(configPath, ""))
	resolved, err = ResolveToken(TokenSourceOptions{ConfigPath: configPath})
	require.NoError(t, err)
	assert.Empty(t, resolved.Token)
}
