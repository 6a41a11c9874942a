package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"github.com/tb0hdan/polyprompt-mcp/pkg/fanout"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
	"github.com/tb0hdan/polyprompt-mcp/pkg/storage"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools/catalog"
	runstool "github.com/tb0hdan/polyprompt-mcp/pkg/tools/runs"
)

type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, prompt, model string) gateway.Result {
	if model == "broken-model" {
		msg := "connection refused"
		return gateway.Result{Model: model, Provider: "unknown", Error: &msg}
	}
	out := model + " says: " + prompt
	return gateway.Result{Model: model, Provider: registry.ProviderFor(model), Output: &out, TokensIn: 5, TokensOut: 7, CostUSD: 0.0002}
}

type APITestSuite struct {
	suite.Suite
	store  *storage.DatabaseStorage
	server *httptest.Server
}

func (s *APITestSuite) SetupTest() {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	store, err := storage.New(storage.Config{
		Driver:       storage.DriverSQLite,
		DatabasePath: filepath.Join(s.T().TempDir(), "api-test.db"),
	})
	s.Require().NoError(err)
	s.store = store

	reg := registry.New()
	svc := runs.NewService(logger, store, fanout.New(logger, echoInvoker{}, store))

	mcpServer := server.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, store, svc, reg)
	for _, tool := range []tools.Tool{runstool.New(logger), catalog.New(logger)} {
		s.Require().NoError(tool.Register(mcpServer))
	}
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return &mcpServer.Server
	}, &mcp.StreamableHTTPOptions{Stateless: true})

	api := NewServer(logger, Config{ServiceName: "polyprompt-test", Version: "1.0.0"}, svc, reg, mcpHandler)
	s.server = httptest.NewServer(api.Handler())
}

func (s *APITestSuite) TearDownTest() {
	s.server.Close()
	s.store.Close()
}

func (s *APITestSuite) do(method, path, owner string, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, data
}

func (s *APITestSuite) decode(data []byte) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(data, &out), string(data))
	return out
}

func (s *APITestSuite) createRun(owner string, modelIDs ...string) string {
	resp, data := s.do(http.MethodPost, "/api/v1/runs", owner, map[string]any{
		"title":  "Greeting",
		"prompt": "Say hi",
		"models": modelIDs,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(data))
	return s.decode(data)["id"].(string)
}

func (s *APITestSuite) TestHealthAndIndex() {
	resp, data := s.do(http.MethodGet, "/api/v1/health", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", s.decode(data)["status"])

	resp, data = s.do(http.MethodGet, "/", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("polyprompt-test", s.decode(data)["service"])
}

func (s *APITestSuite) TestListModels() {
	resp, data := s.do(http.MethodGet, "/api/v1/models", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	body := s.decode(data)
	s.Equal(float64(len(registry.DefaultModels())), body["total"])
}

func (s *APITestSuite) TestRunsRequireOwner() {
	resp, data := s.do(http.MethodGet, "/api/v1/runs", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Contains(s.decode(data)["error"], ownerHeader)
}

func (s *APITestSuite) TestRunLifecycle() {
	id := s.createRun("alice", "gpt-4o", "claude-3-5-sonnet")

	resp, data := s.do(http.MethodGet, "/api/v1/runs/"+id, "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("draft", s.decode(data)["status"])

	resp, data = s.do(http.MethodPost, "/api/v1/runs/"+id+"/run", "alice", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(data))
	result := s.decode(data)
	s.Equal("completed", result["status"])
	results := result["results"].([]any)
	s.Require().Len(results, 2)
	s.Equal("gpt-4o", results[0].(map[string]any)["model"])
	s.Equal("gpt-4o says: Say hi", results[0].(map[string]any)["output"])

	resp, data = s.do(http.MethodGet, "/api/v1/runs/"+id+"/evals", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(2), s.decode(data)["total"])

	resp, data = s.do(http.MethodGet, "/api/v1/runs", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(1), s.decode(data)["total"])

	resp, _ = s.do(http.MethodDelete, "/api/v1/runs/"+id, "alice", nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/v1/runs/"+id, "alice", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APITestSuite) TestRunPrompt_PartialFailure() {
	id := s.createRun("alice", "gpt-4o", "broken-model")

	resp, data := s.do(http.MethodPost, "/api/v1/runs/"+id+"/run", "alice", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	results := s.decode(data)["results"].([]any)
	failed := results[1].(map[string]any)
	s.Nil(failed["output"])
	s.Equal("connection refused", failed["error"])
}

func (s *APITestSuite) TestForeignOwnerIsNotFound() {
	id := s.createRun("alice", "gpt-4o")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/runs/" + id},
		{http.MethodPost, "/api/v1/runs/" + id + "/run"},
		{http.MethodGet, "/api/v1/runs/" + id + "/evals"},
		{http.MethodDelete, "/api/v1/runs/" + id},
	} {
		resp, _ := s.do(tc.method, tc.path, "mallory", nil)
		s.Equal(http.StatusNotFound, resp.StatusCode, tc.method+" "+tc.path)
	}
}

func (s *APITestSuite) TestCreateRun_Invalid() {
	resp, data := s.do(http.MethodPost, "/api/v1/runs", "alice", map[string]any{"prompt": "Say hi"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.NotEmpty(s.decode(data)["error"])

	resp, _ = s.do(http.MethodPost, "/api/v1/runs", "alice", map[string]any{"prompt": "x", "models": []string{"gpt-4o"}, "colour": "blue"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/v1/runs?limit=ten", "alice", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APITestSuite) TestUpdateRun() {
	id := s.createRun("alice", "gpt-4o")

	resp, data := s.do(http.MethodPatch, "/api/v1/runs/"+id, "alice", map[string]any{"title": "Renamed", "status": "ready"})
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(data))
	body := s.decode(data)
	s.Equal("Renamed", body["title"])
	s.Equal("ready", body["status"])

	resp, _ = s.do(http.MethodPatch, "/api/v1/runs/"+id, "alice", map[string]any{"status": "completed"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APITestSuite) TestRunPrompt_AlreadyRunningConflict() {
	id := s.createRun("alice", "gpt-4o")
	s.Require().NoError(s.store.UpdateRunStatus(context.Background(), id, "running"))

	resp, _ := s.do(http.MethodPost, "/api/v1/runs/"+id+"/run", "alice", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *APITestSuite) TestExport() {
	id := s.createRun("alice", "gpt-4o")
	resp, _ := s.do(http.MethodPost, "/api/v1/runs/"+id+"/run", "alice", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, data := s.do(http.MethodGet, "/api/v1/runs/"+id+"/export?format=csv", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/csv", resp.Header.Get("Content-Type"))
	s.Equal(`attachment; filename="poly-prompt-Greeting.csv"`, resp.Header.Get("Content-Disposition"))
	s.True(strings.HasPrefix(string(data), "# Greeting\n"))

	resp, data = s.do(http.MethodGet, "/api/v1/runs/"+id+"/export", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("json", s.decode(data)["export_format"])

	resp, _ = s.do(http.MethodGet, "/api/v1/runs/"+id+"/export?format=pdf", "alice", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APITestSuite) TestSharing() {
	id := s.createRun("alice", "gpt-4o")
	resp, _ := s.do(http.MethodPost, "/api/v1/runs/"+id+"/run", "alice", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, data := s.do(http.MethodPost, "/api/v1/runs/"+id+"/share", "alice", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	shareID := s.decode(data)["share_id"].(string)

	resp, data = s.do(http.MethodGet, "/api/v1/shared/"+shareID, "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	shared := s.decode(data)
	s.Equal(id, shared["run"].(map[string]any)["id"])
	s.Len(shared["evals"].([]any), 1)

	resp, _ = s.do(http.MethodDelete, "/api/v1/runs/"+id+"/share", "alice", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/v1/shared/"+shareID, "", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APITestSuite) TestMCPEndpoint() {
	ctx := context.Background()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: s.server.URL + "/mcp"}, nil)
	s.Require().NoError(err)
	defer session.Close()

	listed, err := session.ListTools(ctx, nil)
	s.Require().NoError(err)
	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	s.ElementsMatch([]string{"runs", "models"}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "runs",
		Arguments: map[string]any{
			"action": "create",
			"owner":  "alice",
			"prompt": "Say hi",
			"models": []string{"gpt-4o"},
		},
	})
	s.Require().NoError(err)
	s.False(result.IsError)

	text := result.Content[0].(*mcp.TextContent).Text
	s.Contains(text, `"status": "draft"`)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
