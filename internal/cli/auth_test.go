package cli

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAuthServer answers imports like the server's auth middleware does.
func newAuthServer(t *testing.T, validKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/permits" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-API-Key") != validKey {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid API key"}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"INVALID_REQUEST","message":"claim is required"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthLogin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := newAuthServer(t, "pc_key_valid")

	t.Run("valid key is saved", func(t *testing.T) {
		require.NoError(t, runAuthLogin(srv.URL, "pc_key_valid"))
		assert.Equal(t, "pc_key_valid", getCredential(srv.URL))
	})

	t.Run("invalid key is rejected", func(t *testing.T) {
		err := runAuthLogin(srv.URL, "pc_key_wrong")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid API key")
	})

	t.Run("unreachable server", func(t *testing.T) {
		err := runAuthLogin("http://127.0.0.1:1", "pc_key_valid")
		assert.Error(t, err)
	})
}

func TestValidateAPIKey(t *testing.T) {
	srv := newAuthServer(t, "good")

	valid, err := validateAPIKey(srv.URL, "good")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = validateAPIKey(srv.URL, "bad")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestAuthLogout(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, saveCredential("http://a.example", "key-a"))
	require.NoError(t, saveCredential("http://b.example", "key-b"))

	require.NoError(t, runAuthLogout("http://a.example", false))
	assert.Empty(t, getCredential("http://a.example"))
	assert.Equal(t, "key-b", getCredential("http://b.example"))

	require.NoError(t, runAuthLogout("", true))
	_, err := os.Stat(credentialsFilePath())
	assert.True(t, os.IsNotExist(err))

	// Nothing stored is not an error
	assert.NoError(t, runAuthLogout("http://a.example", false))
}

func TestAuthStatus(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.NoError(t, runAuthStatus())

	require.NoError(t, saveCredential("http://a.example", "pc_key_0123456789"))
	assert.NoError(t, runAuthStatus())
}

func TestCredentialPermissions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, saveCredential("http://localhost:8080", "secret"))

	info, err := os.Stat(filepath.Join(home, ".permitclaim", "credentials"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Join(home, ".permitclaim"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestCredentialOverwrite(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, saveCredential("http://localhost:8080", "old"))
	require.NoError(t, saveCredential("http://localhost:8080", "new"))
	assert.Equal(t, "new", getCredential("http://localhost:8080"))
}

func TestAuthCommandStructure(t *testing.T) {
	cmd := createAuthCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["login"])
	assert.True(t, names["logout"])
	assert.True(t, names["status"])

	login := createAuthLoginCmd()
	assert.NotNil(t, login.Flags().Lookup("server"))
	assert.NotNil(t, login.Flags().Lookup("api-key"))
}
