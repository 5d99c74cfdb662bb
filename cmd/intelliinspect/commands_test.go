package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vsharma-va/ABB-Final/internal/config"
	"github.com/vsharma-va/ABB-Final/internal/simulation"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			if strings.HasPrefix(resp, "data: ") {
				w.Header().Set("Content-Type", "text/event-stream")
			} else {
				w.Header().Set("Content-Type", "application/json")
			}
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:      ts.server.URL,
		httpClient:   ts.server.Client(),
		streamClient: ts.server.Client(),
	}
}

// useServer points CLI commands at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.ExecuteContext(context.Background())
}

const metricsJSON = `{"error":null,"accuracy":0.9,"precision":0.8,"recall":0.75,"f1":0.7742,"matrix":[[5,1],[1,3]],"graph":[0.6,0.5,0.4]}`

func TestTrainCommand_FileName(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /train-model": metricsJSON,
	})
	useServer(t, ts)

	err := execute(t, "train", "--file", "bosch.csv",
		"--train", "2021-01-01 00:00:00, 2021-01-10 23:59:59",
		"--test", "2021-01-11 00:00:00,2021-01-15 23:59:59")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/train-model" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	want := map[string]any{
		"train_start": "2021-01-01 00:00:00",
		"train_end":   "2021-01-10 23:59:59",
		"test_start":  "2021-01-11 00:00:00",
		"test_end":    "2021-01-15 23:59:59",
		"model_name":  "xgboost",
		"file_name":   "bosch.csv",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body.%s = %v, want %v", k, body[k], v)
		}
	}
	if _, ok := body["dataset_id"]; ok {
		t.Error("dataset_id should be omitted when --file is used")
	}
}

func TestTrainCommand_ArgumentErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	tests := []struct {
		name string
		args []string
	}{
		{"no dataset", []string{"train", "--train", "a,b", "--test", "c,d"}},
		{"both dataset and file", []string{"train", "--dataset", "x", "--file", "y", "--train", "a,b", "--test", "c,d"}},
		{"bad window", []string{"train", "--file", "y", "--train", "2021-01-01", "--test", "c,d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := execute(t, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
	if len(ts.requests) != 0 {
		t.Errorf("invalid arguments reached the server: %+v", ts.requests)
	}
}

func TestTrainCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts)

	err := execute(t, "train", "--dataset", "abc", "--train", "a,b", "--test", "c,d")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want server message", err)
	}
}

func TestMetricsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /model/metrics": metricsJSON,
	})
	useServer(t, ts)

	if err := execute(t, "metrics"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/model/metrics" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestWriteMetrics(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var m metricsResponse
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	writeMetrics(&buf, m)
	out := buf.String()
	for _, want := range []string{"Accuracy:  0.9000", "F1:        0.7742", "Pass", "after round 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	msg := "The model hasn't been trained yet"
	buf.Reset()
	writeMetrics(&buf, metricsResponse{Error: &msg})
	if strings.TrimSpace(buf.String()) != msg {
		t.Errorf("not-trained output = %q", buf.String())
	}
}

func TestDatasetUpload(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /datasets": `{"dataset_id":"d-1","original_file_name":"line.csv","metadata":{"total_records":2,"total_columns":3,"pass_rate_percent":50}}`,
	})
	useServer(t, ts)

	path := filepath.Join(t.TempDir(), "line.csv")
	if err := os.WriteFile(path, []byte("f1,Response\n1,0\n2,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "dataset", "upload", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	mediaType, params, err := mime.ParseMediaType(r.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q", r.ContentType)
	}
	mr := multipart.NewReader(strings.NewReader(r.Body), params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading part: %v", err)
	}
	if part.FormName() != "file" || part.FileName() != "line.csv" {
		t.Errorf("part = %q %q", part.FormName(), part.FileName())
	}
	var content bytes.Buffer
	content.ReadFrom(part)
	if content.String() != "f1,Response\n1,0\n2,1\n" {
		t.Errorf("uploaded content = %q", content.String())
	}
}

func TestDatasetValidate(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /datasets/d-1/validate-ranges": `{"valid":false,"errors":["Testing period must begin after the Training period ends."],"summary":[]}`,
	})
	useServer(t, ts)

	err := execute(t, "dataset", "validate", "d-1",
		"--train", "2021-01-01,2021-01-05",
		"--test", "2021-01-04,2021-01-06",
		"--simulate", "2021-01-07,2021-01-08")
	if err == nil {
		t.Fatal("expected error for invalid ranges")
	}

	var body map[string]map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["testing"]["start"] != "2021-01-04" || body["simulation"]["end"] != "2021-01-08" {
		t.Errorf("body = %v", body)
	}
}

func TestSimulateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /simulation-stream": "data: {\"id\":\"1\",\"timestamp\":\"2021-01-16 00:00:00\",\"prediction\":\"Pass\",\"confidence\":0.9}\n\n" +
			"data: {\"id\":\"2\",\"timestamp\":\"2021-01-16 00:00:01\",\"prediction\":\"Fail\",\"confidence\":0.7}\n\n",
	})
	useServer(t, ts)

	if err := execute(t, "simulate", "2021-01-16 00:00:00", "2021-01-16 00:00:01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/simulation-stream?sim_end=2021-01-16+00%3A00%3A01&sim_start=2021-01-16+00%3A00%3A00" {
		t.Errorf("path = %q", got)
	}
}

func TestSimulateCommand_ErrorEvent(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /simulation-stream": "data: {\"error\":\"no data available for the selected simulation period\"}\n\n",
	})
	useServer(t, ts)

	err := execute(t, "simulate", "2030-01-01", "2030-01-02")
	if err == nil || !strings.Contains(err.Error(), "no data available") {
		t.Errorf("err = %v, want stream error", err)
	}
}

func TestAPIClientStream(t *testing.T) {
	var frames strings.Builder
	for i := range 3 {
		fmt.Fprintf(&frames, "data: {\"id\":\"%d\",\"timestamp\":\"t\",\"prediction\":\"Pass\",\"confidence\":0.5}\n\n", i)
	}
	ts := newTestServer(t, map[string]string{"GET /simulation-stream": frames.String()})

	var ids []string
	err := ts.client().stream(context.Background(), "/simulation-stream", func(ev simulation.Event) error {
		ids = append(ids, ev.Record.ID)
		if len(ids) == 2 {
			return fmt.Errorf("enough")
		}
		return nil
	})
	if err == nil || err.Error() != "enough" {
		t.Errorf("err = %v, want callback error", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %v, want 2 events before stopping", ids)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(context.Background(), "/nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if err.Error() != "server returned 404: not found" {
		t.Errorf("error = %q", err)
	}
}

func TestRunsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /training-runs": `[{"id":"a-b","model_kind":"xgboost","source":"x.csv","status":"failed","error":"invalid training data"},
			{"id":"c-d","model_kind":"xgboost","source":"x.csv","status":"succeeded","metrics":{"accuracy":1}}]`,
	})
	useServer(t, ts)

	if err := execute(t, "runs", "--limit", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/training-runs?limit=5" {
		t.Errorf("path = %q", got)
	}
}

func TestReportStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health":        `{"status":"ok"}`,
		"GET /model/metrics": metricsJSON,
		"GET /datasets":      `[]`,
	})

	if !reportStatus(context.Background(), ts.client()) {
		t.Error("reportStatus = false for a running server")
	}
	if len(ts.requests) != 3 {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestReportStatus_Stopped(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()
	ts.server.Close()

	if reportStatus(context.Background(), c) {
		t.Error("reportStatus = true for a stopped server")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorRed, "test")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(colorRed, "test")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSplitWindow(t *testing.T) {
	tests := []struct {
		in         string
		start, end string
		wantErr    bool
	}{
		{"2021-01-01,2021-01-02", "2021-01-01", "2021-01-02", false},
		{" 2021-01-01 00:00:00 , 2021-01-02 23:59:59 ", "2021-01-01 00:00:00", "2021-01-02 23:59:59", false},
		{"2021-01-01", "", "", true},
		{",2021-01-02", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		start, end, err := splitWindow(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitWindow(%q) err = %v", tt.in, err)
			continue
		}
		if start != tt.start || end != tt.end {
			t.Errorf("splitWindow(%q) = %q, %q", tt.in, start, end)
		}
	}
}

func TestServerURL(t *testing.T) {
	cfg := config.Config{Server: config.ServerConfig{Host: "0.0.0.0", Port: 8000}}
	if got := serverURL(cfg); got != "http://127.0.0.1:8000" {
		t.Errorf("serverURL = %q", got)
	}
	cfg.Server.Host = "10.0.0.5"
	if got := serverURL(cfg); got != "http://10.0.0.5:8000" {
		t.Errorf("serverURL = %q", got)
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(5, 100); got != "5" {
		t.Errorf("countLabel(5, 100) = %q", got)
	}
	if got := countLabel(100, 100); got != "100+" {
		t.Errorf("countLabel(100, 100) = %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0b6f5c1e-8f1d-4a57"); got != "0b6f5c1e" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("plain"); got != "plain" {
		t.Errorf("shortID = %q", got)
	}
}

func TestTrainingParamsKeepEnsembleShape(t *testing.T) {
	cfg := config.Config{Training: config.TrainingConfig{MaxDepth: 3}}
	p := trainingParams(cfg)
	if p.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", p.MaxDepth)
	}
	if p.Rounds != 100 || p.LearningRate != 0.1 {
		t.Errorf("Rounds = %d, LearningRate = %v, want 100 and 0.1", p.Rounds, p.LearningRate)
	}
}
