package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/heist/api"
	"github.com/jmcleod/heist/game"
	"github.com/jmcleod/heist/puzzle"
	"github.com/jmcleod/heist/session"
	"github.com/jmcleod/heist/storage"
	"github.com/jmcleod/heist/storage/memory"
)

var solutions = []struct {
	id     string
	answer string
	flag   string
}{
	{"hash", "GOLD", "FLAG{rsa_door_breach_8f2c}"},
	{"phishing", "punycode attack", "FLAG{punycode_phish_4b1e}"},
	{"encrypt", "FLAG{xor_keypad_unlocked}", "FLAG{script_reversed_9d3a}"},
	{"logs", "FLAG{png_chunk_recovered}", "FLAG{forensics_done_52e7}"},
	{"firewall", "sess_900050", "FLAG{session_predicted_c71d}"},
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testServer struct {
	*httptest.Server
	logs *syncBuffer
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	return setupServerWithRepo(t, memory.NewRepository())
}

func setupServerWithRepo(t *testing.T, repo storage.Repository) *testServer {
	t.Helper()
	catalog, err := puzzle.Default()
	require.NoError(t, err)
	sessions, err := session.NewManager([]byte("test-secret"))
	require.NoError(t, err)

	logs := &syncBuffer{}
	a := api.New(
		game.NewPuzzleService(catalog),
		game.NewVaultService(catalog, repo),
		sessions,
		api.WithLogger(slog.New(slog.NewJSONHandler(logs, nil))),
	)
	r := chi.NewRouter()
	r.Use(api.SecurityHeaders)
	r.Mount("/api", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, logs: logs}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func doRaw(t *testing.T, client *http.Client, method, url, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestListPuzzles(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/puzzles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	list := decode[[]map[string]any](t, resp)
	require.Len(t, list, len(solutions))
	for i, p := range list {
		assert.Equal(t, solutions[i].id, p["id"])
		assert.Len(t, p, 3, "summary exposes only id, title and type")
		assert.NotEmpty(t, p["title"])
		assert.NotEmpty(t, p["type"])
	}
}

func TestGetPuzzle(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	artifacts := map[string]string{
		"hash":     "",
		"phishing": "email",
		"encrypt":  "js_code",
		"logs":     "png_b64",
		"firewall": "",
	}
	allArtifactFields := []string{"email", "js_code", "png_b64"}

	for id, field := range artifacts {
		t.Run(id, func(t *testing.T) {
			resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/puzzle/"+id, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			d := decode[map[string]any](t, resp)

			assert.Equal(t, id, d["id"])
			assert.NotEmpty(t, d["description"])
			assert.NotContains(t, d, "solution")
			assert.NotContains(t, d, "flag")
			for _, f := range allArtifactFields {
				if f == field {
					assert.NotEmpty(t, d[f])
				} else {
					assert.NotContains(t, d, f)
				}
			}
		})
	}
}

func TestUnknownPuzzle(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	for _, id := range []string{"vault", "HASH", "x%20y"} {
		resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/puzzle/"+id, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, id)
		assert.Equal(t, api.ErrorResponse{Error: "not found"}, decode[api.ErrorResponse](t, resp))

		resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/"+id, map[string]string{"answer": "GOLD"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode, id)
		assert.Equal(t, api.ErrorResponse{Error: "unknown puzzle"}, decode[api.ErrorResponse](t, resp))
	}
}

func TestSubmitAnswer(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/hash", map[string]string{"answer": "gold"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.SubmitAnswerResponse{Correct: true, RewardFlag: "FLAG{rsa_door_breach_8f2c}"},
		decode[api.SubmitAnswerResponse](t, resp))

	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/firewall", map[string]string{"answer": "sess_900050"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FLAG{session_predicted_c71d}", decode[api.SubmitAnswerResponse](t, resp).RewardFlag)

	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/firewall", map[string]string{"answer": "sess_900060"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, map[string]any{"correct": false}, body)
}

func TestSubmitAnswerTolerantBody(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	cases := map[string]struct {
		contentType string
		body        string
	}{
		"empty":          {"application/json", ""},
		"malformed":      {"application/json", `{"answer":`},
		"wrong type":     {"application/json", `{"answer": 42}`},
		"not json":       {"text/plain", "GOLD"},
		"array":          {"application/json", `["GOLD"]`},
		"unknown fields": {"application/json", `{"guess":"GOLD"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doRaw(t, client, http.MethodPost, srv.URL+"/api/submit_answer/hash", tc.contentType, tc.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.False(t, decode[api.SubmitAnswerResponse](t, resp).Correct)
		})
	}
}

func TestAnswerDoesNotRegisterFlag(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	for range 2 {
		resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/hash", map[string]string{"answer": "GOLD"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decode[api.SubmitAnswerResponse](t, resp).Correct)
	}

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/flags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{}, decode[[]string](t, resp))
}

func TestSubmitFlag(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": "FLAG{nope}"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"valid": false}, decode[map[string]any](t, resp))

	resp = doRaw(t, client, http.MethodPost, srv.URL+"/api/submit_flag", "application/json", "{")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"valid": false}, decode[map[string]any](t, resp))

	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": "FLAG{rsa_door_breach_8f2c}"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"valid": true, "already": false, "flag": "FLAG{rsa_door_breach_8f2c}"},
		decode[map[string]any](t, resp))

	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": "FLAG{rsa_door_breach_8f2c}"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"valid": true, "already": true, "flag": "FLAG{rsa_door_breach_8f2c}"},
		decode[map[string]any](t, resp))

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/flags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"FLAG{rsa_door_breach_8f2c}"}, decode[[]string](t, resp))
}

func TestCheckVaultPartial(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": solutions[0].flag})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/check_vault", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, false, body["opened"])
	assert.NotContains(t, body, "final_flag")
	assert.Equal(t, []any{solutions[1].flag, solutions[2].flag, solutions[3].flag, solutions[4].flag}, body["missing"])
}

func TestFullHeist(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	// Register in reverse order; completion does not depend on it.
	for i := len(solutions) - 1; i >= 0; i-- {
		s := solutions[i]
		resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/"+s.id, map[string]string{"answer": s.answer})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		ans := decode[api.SubmitAnswerResponse](t, resp)
		require.True(t, ans.Correct, s.id)
		require.Equal(t, s.flag, ans.RewardFlag)

		resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", api.SubmitFlagRequest{Flag: ans.RewardFlag})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.True(t, decode[api.SubmitFlagResponse](t, resp).Valid)
	}

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/check_vault", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"opened": true, "final_flag": "FLAG{bank_heist_complete}"}, decode[map[string]any](t, resp))

	// Further submissions never close the vault again.
	resp = doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": "FLAG{nope}"})
	resp.Body.Close()
	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/check_vault", nil)
	assert.True(t, decode[api.CheckVaultResponse](t, resp).Opened)

	assert.Contains(t, srv.logs.String(), `"event":"vault_opened"`)
}

func TestSessionsIsolated(t *testing.T) {
	srv := setupServer(t)
	alice := newClient(t)
	bob := newClient(t)

	resp := doJSON(t, alice, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": solutions[0].flag})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, bob, http.MethodGet, srv.URL+"/api/flags", nil)
	assert.Equal(t, []string{}, decode[[]string](t, resp))

	resp = doJSON(t, alice, http.MethodGet, srv.URL+"/api/flags", nil)
	assert.Equal(t, []string{solutions[0].flag}, decode[[]string](t, resp))
}

func TestSessionCookie(t *testing.T) {
	srv := setupServer(t)

	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/flags", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Contains(t, srv.logs.String(), `"event":"session_started"`)
}

func TestTamperedCookieStartsFreshSession(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": solutions[0].flag})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token string
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			token = c.Value
		}
	}
	resp.Body.Close()
	require.NotEmpty(t, token)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/flags", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token + "x"})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, []string{}, decode[[]string](t, resp))

	req, err = http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/flags", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, []string{solutions[0].flag}, decode[[]string](t, resp))
}

func sessionID(t *testing.T, client *http.Client, base string) string {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name != session.CookieName {
			continue
		}
		var claims jwt.RegisteredClaims
		_, _, err := jwt.NewParser().ParseUnverified(c.Value, &claims)
		require.NoError(t, err)
		return claims.ID
	}
	require.FailNow(t, "no session cookie")
	return ""
}

func TestResetSession(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	for _, s := range solutions {
		resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": s.flag})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/check_vault", nil)
	require.True(t, decode[api.CheckVaultResponse](t, resp).Opened)
	before := sessionID(t, client, srv.URL)

	resp = doJSON(t, client, http.MethodDelete, srv.URL+"/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.ResetResponse{Reset: true}, decode[api.ResetResponse](t, resp))

	after := sessionID(t, client, srv.URL)
	assert.NotEqual(t, before, after, "reset must start a new session")

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/check_vault", nil)
	assert.Len(t, decode[api.CheckVaultResponse](t, resp).Missing, len(solutions))
	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/flags", nil)
	assert.Equal(t, []string{}, decode[[]string](t, resp))

	logs := srv.logs.String()
	assert.Contains(t, logs, `"event":"session_reset"`)
	assert.Contains(t, logs, `"new_session_id":"`+after+`"`)
	assert.Equal(t, 2, strings.Count(logs, `"event":"session_started"`))
}

type brokenRepo struct{}

var errBroken = errors.New("store unavailable")

func (brokenRepo) Add(context.Context, string, string) (bool, error) { return false, errBroken }
func (brokenRepo) List(context.Context, string) ([]string, error)   { return nil, errBroken }
func (brokenRepo) Delete(context.Context, string) error             { return errBroken }

func TestStoreFailure(t *testing.T) {
	srv := setupServerWithRepo(t, brokenRepo{})
	client := newClient(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/submit_flag"},
		{http.MethodGet, "/api/flags"},
		{http.MethodGet, "/api/check_vault"},
		{http.MethodDelete, "/api/session"},
	} {
		resp := doJSON(t, client, tc.method, srv.URL+tc.path, map[string]string{"flag": solutions[0].flag})
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode, tc.path)
		assert.Equal(t, api.ErrorResponse{Error: "internal error"}, decode[api.ErrorResponse](t, resp))
	}
	assert.Contains(t, srv.logs.String(), "store unavailable")

	// Puzzle endpoints do not touch the store.
	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/hash", map[string]string{"answer": "GOLD"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAuditOmitsAnswers(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_answer/phishing", map[string]string{"answer": "homoglyph trick"})
	resp.Body.Close()

	logs := srv.logs.String()
	assert.Contains(t, logs, `"event":"answer_incorrect"`)
	assert.Contains(t, logs, `"puzzle_id":"phishing"`)
	assert.NotContains(t, logs, "homoglyph trick")
}

func TestAuditOmitsFlags(t *testing.T) {
	srv := setupServer(t)
	client := newClient(t)

	for i := 0; i < 2; i++ {
		resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/submit_flag", map[string]string{"flag": solutions[0].flag})
		resp.Body.Close()
	}

	logs := srv.logs.String()
	assert.Contains(t, logs, `"event":"flag_accepted"`)
	assert.Contains(t, logs, `"event":"flag_duplicate"`)
	assert.NotContains(t, logs, solutions[0].flag)
}

func TestSecurityHeaders(t *testing.T) {
	srv := setupServer(t)

	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/puzzles", nil)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "script-src 'self'")
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestOpenAPIDocument(t *testing.T) {
	srv := setupServer(t)

	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/openapi.yaml", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/check_vault:")

	resp = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/docs", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "https://unpkg.com")
}
