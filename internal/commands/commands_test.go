package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"duet/internal/api"
	"duet/internal/auth"
	"duet/internal/config"
	"duet/internal/models"

	"github.com/stretchr/testify/require"
)

func TestAddUser(t *testing.T) {
	var got api.AddUserRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/users" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Profile{ID: got.ID, DisplayName: got.DisplayName})
	}))
	defer ts.Close()

	cfg := &config.Config{AdminAddr: strings.TrimPrefix(ts.URL, "http://")}

	var out bytes.Buffer
	require.NoError(t, AddUser("a1", "Alice", cfg, &out))
	require.Equal(t, "a1", got.ID)
	require.Equal(t, "Alice", got.DisplayName)
	require.Contains(t, out.String(), "Alice")
}

func TestAddUser_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad id", http.StatusBadRequest)
	}))
	defer ts.Close()

	cfg := &config.Config{AdminAddr: strings.TrimPrefix(ts.URL, "http://")}
	err := AddUser("a-1", "", cfg, &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestIssueToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &config.Config{AuthSecret: "dev-secret", TokenExpiry: time.Hour}

	var out bytes.Buffer
	require.NoError(t, IssueToken(ctx, "a1", cfg, &out))

	token := strings.SplitN(out.String(), "\n", 2)[0]
	authService, err := auth.NewAuthService(ctx, cfg.AuthConfig())
	require.NoError(t, err)

	userID, err := authService.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "a1", userID)

	require.Error(t, IssueToken(ctx, "a1", &config.Config{TokenExpiry: time.Hour}, &out))
}
