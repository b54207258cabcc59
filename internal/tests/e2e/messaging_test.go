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
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/VallejoLeonardo/alumnosb/config"
	"github.com/VallejoLeonardo/alumnosb/internal/server"
)

const (
	serverPort = 18080
	password   = "testpass123!"
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setDatabaseEnv()

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

	// Stand in for the reCAPTCHA siteverify endpoint so login works offline.
	captchaStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer captchaStub.Close()

	srv, err := startServer(captchaStub.URL)
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

func TestMessagingLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	senderID := fmt.Sprintf("E2E%d01", suffix)
	recipientID := fmt.Sprintf("E2E%d02", suffix)

	if err := registerStudent(t, baseURL, senderID, "Sender"); err != nil {
		t.Fatalf("register sender: %v", err)
	}
	if err := registerStudent(t, baseURL, recipientID, "Recipient"); err != nil {
		t.Fatalf("register recipient: %v", err)
	}

	senderToken, err := login(t, baseURL, senderID)
	if err != nil {
		t.Fatalf("login sender: %v", err)
	}
	recipientToken, err := login(t, baseURL, recipientID)
	if err != nil {
		t.Fatalf("login recipient: %v", err)
	}

	messageID, err := sendMessage(t, baseURL, senderToken, recipientID, "hola from e2e")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if messageID == 0 {
		t.Fatalf("expected message id to be set")
	}

	inbox, err := fetchInbox(t, baseURL, recipientToken)
	if err != nil {
		t.Fatalf("fetch inbox: %v", err)
	}
	if len(inbox.Messages) != 1 || inbox.Messages[0].ID != messageID {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}
	if inbox.Pagination.TotalMessages != 1 || inbox.Pagination.CurrentPage != 1 {
		t.Fatalf("unexpected inbox pagination: %+v", inbox.Pagination)
	}

	senderView, err := fetchConversation(t, baseURL, senderToken, recipientID)
	if err != nil {
		t.Fatalf("fetch conversation as sender: %v", err)
	}
	recipientView, err := fetchConversation(t, baseURL, recipientToken, senderID)
	if err != nil {
		t.Fatalf("fetch conversation as recipient: %v", err)
	}
	if len(senderView) != 1 || len(recipientView) != 1 || senderView[0].ID != recipientView[0].ID {
		t.Fatalf("conversation views diverge: %+v vs %+v", senderView, recipientView)
	}

	// Only the sender may delete; anyone else sees a plain 404.
	if status := deleteMessage(t, baseURL, recipientToken, messageID); status != http.StatusNotFound {
		t.Fatalf("expected 404 for recipient delete, got %d", status)
	}
	if status := deleteMessage(t, baseURL, senderToken, messageID); status != http.StatusOK {
		t.Fatalf("expected 200 for sender delete, got %d", status)
	}
	if status := deleteMessage(t, baseURL, senderToken, messageID); status != http.StatusNotFound {
		t.Fatalf("expected 404 on repeated delete, got %d", status)
	}
}

type messageResponse struct {
	ID                 int64  `json:"id"`
	SenderMatricula    string `json:"sender_matricula"`
	RecipientMatricula string `json:"recipient_matricula"`
	Content            string `json:"content"`
}

type paginationBlock struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalMessages int  `json:"totalMessages"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
}

type inboxResponse struct {
	Messages   []messageResponse `json:"messages"`
	Pagination paginationBlock   `json:"pagination"`
}

func registerStudent(t *testing.T, baseURL, matricula, firstName string) error {
	t.Helper()

	payload := map[string]string{
		"matricula":          matricula,
		"first_name":         firstName,
		"last_name_paternal": "Test",
		"email":              fmt.Sprintf("%s@example.edu", strings.ToLower(matricula)),
		"password":           password,
	}
	resp, err := postJSON(baseURL+"/auth/register", "", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func login(t *testing.T, baseURL, matricula string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"matricula":       matricula,
		"password":        password,
		"recaptcha_token": "stubbed",
	}
	resp, err := postJSON(baseURL+"/auth/login", "", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in login response")
	}
	return parsed.Token, nil
}

func sendMessage(t *testing.T, baseURL, token, recipient, content string) (int64, error) {
	t.Helper()

	payload := map[string]string{
		"recipient_matricula": recipient,
		"content":             content,
	}
	resp, err := postJSON(baseURL+"/messages/", token, payload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("send status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		MessageID int64 `json:"messageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	return parsed.MessageID, nil
}

func fetchInbox(t *testing.T, baseURL, token string) (inboxResponse, error) {
	t.Helper()

	resp, err := getAuthed(baseURL+"/messages/inbox", token)
	if err != nil {
		return inboxResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return inboxResponse{}, fmt.Errorf("inbox status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed inboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return inboxResponse{}, err
	}
	return parsed, nil
}

func fetchConversation(t *testing.T, baseURL, token, counterpart string) ([]messageResponse, error) {
	t.Helper()

	resp, err := getAuthed(baseURL+"/messages/conversation/"+counterpart, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("conversation status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		Conversation []messageResponse `json:"conversation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Conversation, nil
}

func deleteMessage(t *testing.T, baseURL, token string, id int64) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/messages/%d", baseURL, id), nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func postJSON(url, token string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func getAuthed(url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return http.DefaultClient.Do(req)
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
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
	dsn := buildPostgresURL(cfg)
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

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

// setDatabaseEnv points the config at the docker compose postgres instance.
func setDatabaseEnv() {
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "alumnos")
	_ = os.Setenv("DB_PASSWORD", "alumnos")
	_ = os.Setenv("DB_NAME", "alumnos")
	_ = os.Setenv("DB_USE_SSL", "false")
}

func startServer(captchaURL string) (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("RECAPTCHA_SECRET", "stub-secret")
	_ = os.Setenv("RECAPTCHA_VERIFY_URL", captchaURL)

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
