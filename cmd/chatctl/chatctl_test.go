package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/crawlshastra-backend/internal/data/repos"
	"github.com/yungbote/crawlshastra-backend/internal/data/repos/testutil"
	apphttp "github.com/yungbote/crawlshastra-backend/internal/http"
	httpH "github.com/yungbote/crawlshastra-backend/internal/http/handlers"
	httpMW "github.com/yungbote/crawlshastra-backend/internal/http/middleware"
	"github.com/yungbote/crawlshastra-backend/internal/services"
)

const testSecret = "chatctl-secret"

// stack runs the thread service and a canned assistant, and writes a config
// file pointing at both.
type stack struct {
	t          *testing.T
	configPath string

	mu        sync.Mutex
	questions []string
}

func (s *stack) asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.questions...)
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := testutil.DB(t)
	log := testutil.Logger(t)
	auth := services.NewAuthService(log, testSecret)
	threads := services.NewThreadService(conn, log, repos.NewChatThreadRepo(conn, log), repos.NewChatMessageRepo(conn, log))
	api := httptest.NewServer(apphttp.NewRouter(apphttp.RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, auth),
		ChatHandler:    httpH.NewChatHandler(threads),
	}))
	t.Cleanup(api.Close)

	s := &stack{t: t}
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.questions = append(s.questions, req.Question)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"30 days.","sources":[{"source":"policy.pdf"}]}`))
	}))
	t.Cleanup(gw.Close)

	tok, err := auth.IssueToken(uuid.New(), time.Hour)
	require.NoError(t, err)
	s.configPath = filepath.Join(t.TempDir(), ".chatctl.yaml")
	require.NoError(t, saveConfig(s.configPath, fileConfig{
		ServerURL:    api.URL,
		AssistantURL: gw.URL,
		Token:        tok,
		AskTimeout:   5 * time.Second,
	}))
	return s
}

func (s *stack) run(stdin string, args ...string) (string, error) {
	s.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", s.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSendListShowDelete(t *testing.T) {
	s := newStack(t)

	out, err := s.run("", "send", "--new", "What's our refund policy?")
	require.NoError(t, err, out)
	assert.Contains(t, out, "30 days.")
	assert.Contains(t, out, "sources: policy.pdf")
	assert.Equal(t, []string{"What's our refund policy?"}, s.asked())

	out, err = s.run("", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "What's our refund policy?...")
	assert.Contains(t, out, "synced")
	fields := strings.Fields(strings.Split(strings.TrimSpace(out), "\n")[0])
	require.GreaterOrEqual(t, len(fields), 2)
	id := fields[1]
	_, err = uuid.Parse(id)
	require.NoError(t, err, out)

	out, err = s.run("", "show", id)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[1 bot] Hi! I'm CrawlShastra's AI assistant.")
	assert.Contains(t, out, "[2 user] What's our refund policy?")
	assert.Contains(t, out, "[3 bot] 30 days.")

	out, err = s.run("", "delete", id)
	require.NoError(t, err, out)
	_, err = s.run("", "show", id)
	assert.Error(t, err)
}

func TestNewPrintsServerID(t *testing.T) {
	s := newStack(t)
	out, err := s.run("", "new")
	require.NoError(t, err)
	_, err = uuid.Parse(strings.TrimSpace(out))
	assert.NoError(t, err, out)
}

func TestChatSession(t *testing.T) {
	s := newStack(t)
	out, err := s.run("first question\n/new\nsecond question\n/list\n/bogus\n/quit\nignored\n", "chat")
	require.NoError(t, err, out)
	assert.Equal(t, 2, strings.Count(out, "30 days."))
	assert.Contains(t, out, "first question...")
	assert.Contains(t, out, "second question...")
	assert.Contains(t, out, "error: unknown command /bogus")
	assert.Equal(t, []string{"first question", "second question"}, s.asked())
}

func TestMissingTokenFails(t *testing.T) {
	t.Setenv("CHATCTL_TOKEN", "")
	path := filepath.Join(t.TempDir(), "none.yaml")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path, "list"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token configured")
}

func TestTokenSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", ".chatctl.yaml")
	user := uuid.New()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "token", "--user", user.String(), "--secret", testSecret, "--save"})
	require.NoError(t, root.Execute())

	tok := strings.TrimSpace(out.String())
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, tok, cfg.Token)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)

	got, err := services.NewAuthService(testutil.Logger(t), testSecret).VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("CHATCTL_TOKEN", "from-env")
	t.Setenv("ASSISTANT_TIMEOUT", "5s")
	cfg := defaultConfig()
	cfg.applyOverrides(&globalFlags{})
	assert.Equal(t, 5*time.Second, cfg.AskTimeout)

	cfg.applyOverrides(&globalFlags{serverURL: "http://api", askTimeout: time.Second})
	assert.Equal(t, "http://api", cfg.ServerURL)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, time.Second, cfg.AskTimeout)

	cfg.applyOverrides(&globalFlags{token: "from-flag"})
	assert.Equal(t, "from-flag", cfg.Token)
}
