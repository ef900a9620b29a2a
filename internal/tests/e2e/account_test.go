//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ecotunga/apiserver/config"
	"github.com/ecotunga/apiserver/internal/auth"
	"github.com/ecotunga/apiserver/internal/db"
	"github.com/ecotunga/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	setTestEnv()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("alice_%d@example.com", suffix)

	token, err := registerUser(t, baseURL, fmt.Sprintf("alice_%d", suffix), email, "secret1")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if token == "" {
		t.Fatalf("expected session token")
	}

	if _, err := loginUser(t, baseURL, email, "secret1"); err != nil {
		t.Fatalf("login with original password: %v", err)
	}
	if err := expectLoginRejected(t, baseURL, email, "wrong"); err != nil {
		t.Fatalf("login with wrong password: %v", err)
	}

	if err := requestReset(t, baseURL, email); err != nil {
		t.Fatalf("request password reset: %v", err)
	}

	// The log mail backend never learns the token, so fetch the stored hash
	// window directly and drive the reset with a token planted in the row.
	resetToken, err := plantResetToken(email)
	if err != nil {
		t.Fatalf("plant reset token: %v", err)
	}
	if err := resetPassword(t, baseURL, resetToken, "secret2"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	// The token is single use.
	if err := expectResetRejected(t, baseURL, resetToken, "secret3"); err != nil {
		t.Fatalf("replayed reset token: %v", err)
	}

	if err := expectLoginRejected(t, baseURL, email, "secret1"); err != nil {
		t.Fatalf("login with stale password: %v", err)
	}
	if _, err := loginUser(t, baseURL, email, "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAdminUserManagement(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	adminEmail := fmt.Sprintf("admin_%d@example.com", suffix)
	memberEmail := fmt.Sprintf("member_%d@example.com", suffix)

	adminToken, err := registerUser(t, baseURL, fmt.Sprintf("admin_%d", suffix), adminEmail, "adminpass1")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	memberToken, err := registerUser(t, baseURL, fmt.Sprintf("member_%d", suffix), memberEmail, "memberpass1")
	if err != nil {
		t.Fatalf("register member: %v", err)
	}

	// Listing requires admin.
	if status := listUsersStatus(t, baseURL, memberToken); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin list, got %d", status)
	}

	if err := promoteUserToAdmin(adminEmail); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	if status := listUsersStatus(t, baseURL, adminToken); status != http.StatusOK {
		t.Fatalf("expected 200 for admin list, got %d", status)
	}

	memberID, err := lookupUserID(memberEmail)
	if err != nil {
		t.Fatalf("lookup member id: %v", err)
	}

	if err := updateUserRole(t, baseURL, adminToken, memberID, "admin"); err != nil {
		t.Fatalf("update member role: %v", err)
	}
	if err := deleteUser(t, baseURL, adminToken, memberID); err != nil {
		t.Fatalf("delete member: %v", err)
	}

	// The member's token is now orphaned.
	if status := listUsersStatus(t, baseURL, memberToken); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", status)
	}
}

type authResponse struct {
	Token string `json:"token"`
}

func registerUser(t *testing.T, baseURL, username, email, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	resp, err := postJSON(baseURL+"/register", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in register response")
	}
	return parsed.Token, nil
}

func loginUser(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	resp, err := postJSON(baseURL+"/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func expectLoginRejected(t *testing.T, baseURL, email, password string) error {
	t.Helper()

	resp, err := postJSON(baseURL+"/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("expected 401, got %d", resp.StatusCode)
	}
	return nil
}

func requestReset(t *testing.T, baseURL, email string) error {
	t.Helper()

	resp, err := postJSON(baseURL+"/request-reset", map[string]string{"email": email})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request-reset status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func resetPassword(t *testing.T, baseURL, token, newPassword string) error {
	t.Helper()

	resp, err := postJSON(baseURL+"/reset-password", map[string]string{"token": token, "newPassword": newPassword})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reset-password status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func expectResetRejected(t *testing.T, baseURL, token, newPassword string) error {
	t.Helper()

	resp, err := postJSON(baseURL+"/reset-password", map[string]string{"token": token, "newPassword": newPassword})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("expected 400, got %d", resp.StatusCode)
	}
	return nil
}

func listUsersStatus(t *testing.T, baseURL, token string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/users", nil)
	if err != nil {
		t.Fatalf("build list request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func updateUserRole(t *testing.T, baseURL, token string, id int, role string) error {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"role": role})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/users/%d", baseURL, id), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("update user status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func deleteUser(t *testing.T, baseURL, token string, id int) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/users/%d", baseURL, id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete user status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func postJSON(url string, payload map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

// plantResetToken writes a known token hash directly into the user's row,
// standing in for reading the reset link out of the mail queue.
func plantResetToken(email string) (string, error) {
	conn, err := openTestDB()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	token := fmt.Sprintf("e2e-reset-token-%d", time.Now().UnixNano())
	tokenHash := auth.HashResetToken(token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := conn.ExecContext(ctx,
		"UPDATE users SET reset_token_hash = $1, reset_token_expiry = now() + interval '1 hour', updated_at = now() WHERE email = $2",
		tokenHash, email,
	)
	if err != nil {
		return "", err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", fmt.Errorf("no user with email %s", email)
	}
	return token, nil
}

func promoteUserToAdmin(email string) error {
	conn, err := openTestDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET role = 'admin', updated_at = now() WHERE email = $1", email)
	return err
}

func lookupUserID(email string) (int, error) {
	conn, err := openTestDB()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id int
	err = conn.QueryRowContext(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	return id, err
}

func openTestDB() (*sql.DB, error) {
	cfg := config.LoadConfig()
	return sql.Open("postgres", db.BuildPostgresURL(cfg))
}

func waitForPostgres(ctx context.Context) error {
	conn, err := openTestDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := db.BuildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "ecotunga")
	_ = os.Setenv("DB_PASSWORD", "ecotunga")
	_ = os.Setenv("DB_NAME", "ecotunga")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("MAIL_BACKEND", "log")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
