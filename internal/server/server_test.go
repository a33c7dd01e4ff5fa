package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"salesline/internal/config"
	"salesline/internal/db"
	"salesline/internal/migrate"
	"salesline/internal/pipeline"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := pipeline.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProjectHTTP(t *testing.T, srv *testServer) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"party_name":           "Acme Industries",
		"project_name":         "Weighbridge Automation",
		"project_value":        "250000",
		"scope_of_development": "Initial scope",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return created
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestProjectLifecycleHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := createProjectHTTP(t, srv)
	if created.CurrentStage != "Pre-Sales" {
		t.Fatalf("new project stage %q", created.CurrentStage)
	}
	base := srv.URL + "/v0/projects/" + created.ProjectNo

	res, data := doJSON(t, client, http.MethodPatch, base, map[string]any{"stage": "Quotation"}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance stage: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/advances", map[string]any{"amount": "50000"}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record advance: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, base, map[string]any{"stage": "Confirmed"}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", res.StatusCode, string(data))
	}
	var confirmed ProjectResponse
	_ = json.Unmarshal(data, &confirmed)
	if !confirmed.NeedsSerialNumber {
		t.Fatalf("confirmed project should need serial number")
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/serials", map[string]any{"serial_number": "SN-001"}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record serial: %d %s", res.StatusCode, string(data))
	}

	// backward move rejected with the whole mutation rolled back
	res, data = doJSON(t, client, http.MethodPatch, base, map[string]any{"stage": "Pre-Sales"}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("regression expected 422, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "stage_regression" {
		t.Fatalf("regression code = %q", code)
	}
	res, data = doJSON(t, client, http.MethodGet, base, nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d", res.StatusCode)
	}
	var fetched ProjectResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.CurrentStage != "Confirmed" {
		t.Fatalf("stage after rejection = %q", fetched.CurrentStage)
	}
	if fetched.TotalAdvance != "50000" {
		t.Fatalf("total advance = %q", fetched.TotalAdvance)
	}
	if fetched.NeedsSerialNumber {
		t.Fatalf("serial is recorded, flag should be clear")
	}
}

func TestStatusUpdateArtifactHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createProjectHTTP(t, srv)
	url := srv.URL + "/v0/projects/" + created.ProjectNo + "/status-updates"

	res, data := doJSON(t, client, http.MethodPost, url, map[string]any{
		"status_code": "TestingStarted",
		"notes":       "first test round",
	}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "missing_compiled_artifact" {
		t.Fatalf("code = %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, url, map[string]any{
		"status_code":       "TestingStarted",
		"notes":             "first test round",
		"compiled_file_url": "https://files.example/build-1.zip",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("with artifact: %d %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestStatusMasterHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/status-master", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status-master: %d %s", res.StatusCode, string(data))
	}
	var entries []StatusMasterEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Code == "TestingStarted" && e.RequiresCompiledFile {
			found = true
		}
	}
	if !found {
		t.Fatalf("TestingStarted should require a compiled file: %+v", entries)
	}
}
