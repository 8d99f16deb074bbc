package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/files"
	"github.com/pliu/prompthub/internal/handlers"
	"github.com/pliu/prompthub/internal/llm"
	"github.com/pliu/prompthub/internal/models"
	"github.com/pliu/prompthub/internal/projects"
	"github.com/pliu/prompthub/internal/store/sqlstore"
)

const maxUpload = 1024

type upstreamRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type testApp struct {
	server *httptest.Server
	calls  atomic.Int32
	last   atomic.Pointer[upstreamRequest]
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zap.NewNop()
	a := &testApp{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.calls.Add(1)
		var req upstreamRequest
		json.NewDecoder(r.Body).Decode(&req)
		a.last.Store(&req)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"gen","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"Arr!"}}]}`)
	}))
	t.Cleanup(upstream.Close)

	st, err := sqlstore.New("sqlite3", ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	creds, err := auth.NewCredentials(st, bcrypt.MinCost, log)
	require.NoError(t, err)
	sessions := auth.NewSessions("test-secret", time.Hour, false)
	projectSvc := projects.NewService(st, log)
	fileStore, err := files.NewStore(t.TempDir(), projectSvc, []string{"txt", "md", "png"}, maxUpload, log)
	require.NoError(t, err)
	t.Cleanup(func() { fileStore.Close() })
	tmpl, err := handlers.NewTemplates(log)
	require.NoError(t, err)
	client := llm.New(llm.Options{
		APIKey:  "sk-test",
		Model:   "openrouter/auto",
		BaseURL: upstream.URL + "/",
		Timeout: 5 * time.Second,
	}, log)

	h := New(Deps{
		Sessions: sessions,
		Auth:     &handlers.AuthHandler{Credentials: creds, Sessions: sessions, Templates: tmpl, Log: log},
		Projects: &handlers.ProjectHandler{Projects: projectSvc, Files: fileStore, Templates: tmpl, Log: log},
		Files:    &handlers.FileHandler{Projects: projectSvc, Files: fileStore, Templates: tmpl, Log: log},
		Chat:     &handlers.ChatHandler{Projects: projectSvc, LLM: client, Log: log},
		Log:      log,
	})
	a.server = httptest.NewServer(h)
	t.Cleanup(a.server.Close)
	return a
}

// newBrowser returns a client that keeps cookies and does not follow
// redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (a *testApp) get(t *testing.T, c *http.Client, path string) *http.Response {
	t.Helper()
	resp, err := c.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp
}

func (a *testApp) postForm(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp
}

func (a *testApp) postJSON(t *testing.T, c *http.Client, path, body string) *http.Response {
	t.Helper()
	resp, err := c.Post(a.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func (a *testApp) upload(t *testing.T, c *http.Client, path, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := c.Post(a.server.URL+path, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

// signUp registers and logs in a fresh browser.
func (a *testApp) signUp(t *testing.T, email string) *http.Client {
	t.Helper()
	c := newBrowser(t)
	form := url.Values{"email": {email}, "password": {"hunter22"}}

	resp := a.postForm(t, c, "/register", form)
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = a.postForm(t, c, "/login", form)
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	return c
}

func (a *testApp) createProject(t *testing.T, c *http.Client, name, prompt string) string {
	t.Helper()
	resp := a.postForm(t, c, "/projects/create", url.Values{"name": {name}, "system_prompt": {prompt}})
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/projects/"), loc)
	return loc
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	resp := a.get(t, newBrowser(t), "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestAuthFlow(t *testing.T) {
	a := newTestApp(t)
	c := newBrowser(t)

	resp := a.get(t, c, "/")
	readBody(t, resp)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	form := url.Values{"email": {"  Alice@Example.com "}, "password": {"hunter22"}}
	resp = a.postForm(t, c, "/register", form)
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = a.get(t, c, "/login")
	assert.Contains(t, readBody(t, resp), "Registration successful")

	resp = a.postForm(t, c, "/register", url.Values{"email": {"alice@example.com"}, "password": {"other"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Email already registered")

	resp = a.postForm(t, c, "/register", url.Values{"email": {""}, "password": {""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Email and password are required")

	resp = a.postForm(t, c, "/login", url.Values{"email": {"alice@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	wrongPassword := readBody(t, resp)
	assert.Contains(t, wrongPassword, "Invalid credentials")

	resp = a.postForm(t, c, "/login", url.Values{"email": {"nobody@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Invalid credentials")

	resp = a.postForm(t, c, "/login", form)
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = a.get(t, c, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Your projects")

	resp = a.get(t, c, "/logout")
	readBody(t, resp)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = a.get(t, c, "/")
	readBody(t, resp)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestProjectsAreOwnerScoped(t *testing.T) {
	a := newTestApp(t)
	alice := a.signUp(t, "alice@example.com")
	bob := a.signUp(t, "bob@example.com")

	project := a.createProject(t, alice, "Alice's secret", "You are a pirate.")

	resp := a.get(t, alice, project)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "You are a pirate.")

	resp = a.get(t, bob, project)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotContains(t, readBody(t, resp), "pirate")

	resp = a.postForm(t, bob, project+"/update", url.Values{"name": {"Stolen"}})
	readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.get(t, bob, project+"/files")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Project not found"}`, readBody(t, resp))

	resp = a.postJSON(t, bob, "/api"+project+"/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Project not found"}`, readBody(t, resp))
	assert.EqualValues(t, 0, a.calls.Load())

	resp = a.get(t, bob, "/")
	assert.NotContains(t, readBody(t, resp), "Alice&#39;s secret")
}

func TestProjectCreateAndUpdate(t *testing.T) {
	a := newTestApp(t)
	c := a.signUp(t, "alice@example.com")

	project := a.createProject(t, c, "", "")
	body := readBody(t, a.get(t, c, project))
	assert.Contains(t, body, "Untitled Project")
	assert.Contains(t, body, "You are a helpful assistant.")

	resp := a.postForm(t, c, project+"/update", url.Values{"system_prompt": {"Be brief."}})
	readBody(t, resp)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, project, resp.Header.Get("Location"))

	body = readBody(t, a.get(t, c, project))
	assert.Contains(t, body, "Untitled Project")
	assert.Contains(t, body, "Be brief.")
	assert.Contains(t, body, "Project updated")

	resp = a.postForm(t, c, "/projects/create", url.Values{"name": {strings.Repeat("x", 300)}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Project name must be at most 255 characters")

	resp = a.get(t, c, "/projects/999999")
	readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileUploadListDownload(t *testing.T) {
	a := newTestApp(t)
	c := a.signUp(t, "alice@example.com")
	project := a.createProject(t, c, "Files", "")

	for i := 0; i < 3; i++ {
		resp := a.upload(t, c, project+"/files", "a.txt", []byte("hello"))
		readBody(t, resp)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	resp := a.upload(t, c, project+"/files", "evil.exe", []byte("MZ"))
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, readBody(t, a.get(t, c, project)), "File type not allowed")

	resp = a.get(t, c, project+"/files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.FileInfo
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &list))
	assert.Equal(t, []models.FileInfo{
		{Name: "a (1).txt", Size: 5},
		{Name: "a (2).txt", Size: 5},
		{Name: "a.txt", Size: 5},
	}, list)

	resp = a.get(t, c, project+"/files/"+url.PathEscape("a (1).txt"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="a (1).txt"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "hello", readBody(t, resp))

	resp = a.get(t, c, project+"/files/..a.txt")
	readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.get(t, c, project+"/files/missing.txt")
	readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileUploadRejections(t *testing.T) {
	a := newTestApp(t)
	c := a.signUp(t, "alice@example.com")
	project := a.createProject(t, c, "Files", "")

	resp := a.upload(t, c, project+"/files", "big.txt", bytes.Repeat([]byte("x"), maxUpload*2))
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, readBody(t, a.get(t, c, project)), "File exceeds the maximum upload size")

	resp = a.postForm(t, c, project+"/files", url.Values{})
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, readBody(t, a.get(t, c, project)), "No file selected")

	resp = a.get(t, c, project+"/files")
	assert.JSONEq(t, `[]`, readBody(t, resp))
}

func TestFileListRequiresSession(t *testing.T) {
	a := newTestApp(t)
	resp := a.get(t, newBrowser(t), "/projects/1/files")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Authentication required"}`, readBody(t, resp))
}

func TestChatAPI(t *testing.T) {
	a := newTestApp(t)

	resp := a.postJSON(t, newBrowser(t), "/api/projects/1/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Authentication required"}`, readBody(t, resp))

	c := a.signUp(t, "alice@example.com")
	project := a.createProject(t, c, "Pirates", "You are a pirate.")
	chatPath := "/api" + project + "/chat"

	resp = a.postJSON(t, c, chatPath, `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Message is required"}`, readBody(t, resp))
	assert.EqualValues(t, 0, a.calls.Load())

	resp = a.postJSON(t, c, chatPath, `not json`)
	readBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.postJSON(t, c, chatPath, `{"message":" hello "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"reply":"Arr!"}`, readBody(t, resp))

	require.EqualValues(t, 1, a.calls.Load())
	last := a.last.Load()
	require.NotNil(t, last)
	require.Len(t, last.Messages, 2)
	assert.Equal(t, "system", last.Messages[0].Role)
	assert.Equal(t, "You are a pirate.", last.Messages[0].Content)
	assert.Equal(t, "user", last.Messages[1].Role)
	assert.Equal(t, "hello", last.Messages[1].Content)
}

func TestRequestIDHeader(t *testing.T) {
	a := newTestApp(t)
	resp := a.get(t, newBrowser(t), "/health")
	readBody(t, resp)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
