package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/ashby-resumes/internal/testutil"
	"github.com/Sternrassler/ashby-resumes/pkg/client"
	"github.com/Sternrassler/ashby-resumes/pkg/pdfbatch"
	"github.com/Sternrassler/ashby-resumes/pkg/recruiting"
	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/zip"
	"github.com/redis/go-redis/v9"
)

const testPasskey = "s3cret"

func newTestServer(t *testing.T, mock *testutil.MockAPI, redisClient *redis.Client) *httptest.Server {
	t.Helper()

	cfg := client.DefaultConfig("test-key")
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	c.SetSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	svcCfg := recruiting.DefaultConfig()
	svcCfg.Pagination.PageDelay = 0
	svc := recruiting.NewService(c, svcCfg)

	srv := New(svc, pdfbatch.NewAssembler(), redisClient, Config{
		Passkey:        testPasskey,
		MaxUploadBytes: 10 << 20,
		Version:        "1.2.3",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Passkey", testPasskey)
	return req
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("error body %q: %v", body, err)
	}
	return payload.Error
}

func TestPasskey(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, nil)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong passkey", "X-Passkey", "nope", http.StatusUnauthorized},
		{"passkey header", "X-Passkey", testPasskey, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + testPasskey, http.StatusOK},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "Authorization", "Basic " + testPasskey, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/version", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, body := do(t, req)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
			if tt.want == http.StatusUnauthorized && errorMessage(t, body) != "Unauthorized" {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestPasskey_Disabled(t *testing.T) {
	srv := New(nil, nil, nil, DefaultConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dev"`) {
		t.Errorf("body = %s, want default version", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, get(t, ts.URL+"/health"))
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("/health = %d %q", resp.StatusCode, body)
	}

	resp, body = do(t, get(t, ts.URL+"/ready"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ready") {
		t.Errorf("/ready = %d %q", resp.StatusCode, body)
	}

	resp, body = do(t, get(t, ts.URL+"/metrics"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "ashby_http_requests_total") {
		t.Error("/metrics does not expose ashby_http_requests_total")
	}
}

func TestReady_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, redisClient)

	resp, _ := do(t, get(t, ts.URL+"/ready"))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/ready with redis up = %d, want 200", resp.StatusCode)
	}

	mr.Close()
	resp, _ = do(t, get(t, ts.URL+"/ready"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/ready with redis down = %d, want 503", resp.StatusCode)
	}
}

func TestRequestID(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, nil)

	resp, _ := do(t, get(t, ts.URL+"/health"))
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("response has no request id")
	}

	req := get(t, ts.URL+"/health")
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, _ = do(t, req)
	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestJobsAndStages(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("job.list", testutil.NewPageResponse([]map[string]any{
		{"id": "job-1", "title": "Engineer", "status": "Open", "department": map[string]any{"name": "R&D"}},
	}, false, ""))
	mock.SetResponse("job.info", testutil.NewSuccessResponse(map[string]any{"defaultInterviewPlanId": "plan-1"}))
	mock.SetResponse("interviewStage.list", testutil.NewSuccessResponse([]map[string]any{
		{"id": "stage-1", "title": "Screen", "type": "Active", "orderInInterviewPlan": 0},
	}))
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, get(t, ts.URL+"/api/jobs"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/jobs = %d %s", resp.StatusCode, body)
	}
	var jobs []recruiting.Job
	if err := json.Unmarshal(body, &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].DepartmentName != "R&D" || jobs[0].LocationName != recruiting.NotAvailable {
		t.Errorf("jobs = %+v", jobs)
	}

	resp, body = do(t, get(t, ts.URL+"/api/jobs/job-1/stages"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stages = %d %s", resp.StatusCode, body)
	}
	var stages []recruiting.Stage
	if err := json.Unmarshal(body, &stages); err != nil {
		t.Fatal(err)
	}
	if len(stages) != 1 || stages[0].ID != "stage-1" {
		t.Errorf("stages = %+v", stages)
	}
	if got := mock.ParamsFor("job.info"); len(got) != 1 || got[0]["id"] != "job-1" {
		t.Errorf("job.info params = %v", got)
	}
}

func TestJobs_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("job.list", testutil.NewFailureResponse("invalid_api_key"))
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, get(t, ts.URL+"/api/jobs"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := errorMessage(t, body); got != "invalid_api_key" {
		t.Errorf("error = %q", got)
	}
}

// readEvents parses "data: <json>" frames from an event stream body.
func readEvents(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("unexpected line %q", line)
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			t.Fatalf("frame %q: %v", data, err)
		}
		events = append(events, e)
	}
	return events
}

func TestCandidates_Stream(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	apps := make([]map[string]any, 12)
	for i := range apps {
		apps[i] = map[string]any{
			"id":                    fmt.Sprintf("app-%d", i),
			"candidate":             map[string]any{"id": fmt.Sprintf("cand-%d", i), "name": fmt.Sprintf("C%d", i)},
			"currentInterviewStage": map[string]any{"id": "stage-1", "title": "Screen"},
		}
	}
	mock.SetResponse("application.list", testutil.NewPageResponse(apps, false, ""))
	mock.SetRPC("candidate.info", func(params map[string]any) testutil.MockResponse {
		return testutil.NewSuccessResponse(map[string]any{
			"id":               params["id"],
			"resumeFileHandle": map[string]any{"handle": "h-" + params["id"].(string)},
		})
	})
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, get(t, ts.URL+"/api/candidates?jobId=job-1&stageId=stage-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := readEvents(t, body)
	var types []string
	for _, e := range events {
		types = append(types, e["type"].(string))
	}
	want := []string{"status", "status", "status", "progress", "progress", "complete"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	last := events[len(events)-1]
	candidates, ok := last[recruiting.CandidatesKey].([]any)
	if !ok || len(candidates) != 12 {
		t.Fatalf("complete payload = %v", last)
	}
	first := candidates[0].(map[string]any)
	if first["resumeFileHandle"] != "h-cand-0" {
		t.Errorf("first candidate = %v", first)
	}
}

func TestCandidates_Errors(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("application.list", testutil.NewFailureResponse("forbidden"))
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, get(t, ts.URL+"/api/candidates"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing job id status = %d, want 400", resp.StatusCode)
	}
	if got := errorMessage(t, body); got != "Job ID is required" {
		t.Errorf("error = %q", got)
	}

	resp, body = do(t, get(t, ts.URL+"/api/candidates?jobId=job-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	events := readEvents(t, body)
	last := events[len(events)-1]
	if last["type"] != "error" || last["message"] != "Failed to get applications" {
		t.Errorf("last event = %v", last)
	}
}

func TestDownloadResume(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	url := mock.SetFile("/files/ada.pdf", []byte("%PDF ada"))
	mock.SetRPC("file.info", func(params map[string]any) testutil.MockResponse {
		if params["fileHandle"] != "h-ada" {
			return testutil.NewFailureResponse("file_not_found")
		}
		return testutil.NewSuccessResponse(map[string]any{"url": url, "name": "Ada Lovelace.pdf"})
	})
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, get(t, ts.URL+"/api/download-resume/h-ada"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	if string(body) != "%PDF ada" {
		t.Errorf("body = %q", body)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="Ada Lovelace.pdf"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	resp, body = do(t, get(t, ts.URL+"/api/download-resume/h-missing"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing handle status = %d", resp.StatusCode)
	}
	if got := errorMessage(t, body); got != "Failed to get file info" {
		t.Errorf("error = %q", got)
	}
}

func postJSON(t *testing.T, url string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testPasskey)
	return req
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestDownloadBulk(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	urls := map[string]string{
		"h-1": mock.SetFile("/files/1.pdf", []byte("%PDF one")),
		"h-2": mock.SetFile("/files/2.docx", []byte("docx two")),
	}
	mock.SetRPC("file.info", func(params map[string]any) testutil.MockResponse {
		handle, _ := params["fileHandle"].(string)
		if urls[handle] == "" {
			return testutil.NewFailureResponse("file_not_found")
		}
		return testutil.NewSuccessResponse(map[string]any{"url": urls[handle], "name": strings.TrimPrefix(urls[handle], mock.URL()+"/files/")})
	})
	ts := newTestServer(t, mock, nil)

	resp, body := do(t, postJSON(t, ts.URL+"/api/download-bulk", map[string]any{
		"fileHandles":    []string{"h-1", "h-2", "h-3"},
		"candidateNames": []string{"Ada", "Grace", "Alan"},
	}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "candidate_resumes.zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	got := zipNames(t, body)
	if strings.Join(got, ",") != "Ada.pdf,Grace.docx" {
		t.Errorf("entries = %v", got)
	}

	resp, body = do(t, postJSON(t, ts.URL+"/api/download-bulk", map[string]any{"fileHandles": []string{}}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty handles status = %d", resp.StatusCode)
	}
	if got := errorMessage(t, body); got != "No file handles provided" {
		t.Errorf("error = %q", got)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/download-bulk", strings.NewReader("{"))
	req.Header.Set("X-Passkey", testPasskey)
	resp, _ = do(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, url string, archive []byte, pdfsPerFile string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if pdfsPerFile != "" {
		mw.WriteField("pdfsPerFile", pdfsPerFile)
	}
	if archive != nil {
		fw, err := mw.CreateFormFile("zipfile", "upload.zip")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(archive)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Passkey", testPasskey)
	return req
}

func TestCombinePDFs(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, nil)

	files := map[string][]byte{
		"__MACOSX/._a.pdf": []byte("junk"),
		"notes.txt":        []byte("ignore me"),
	}
	for i := 0; i < 5; i++ {
		files[fmt.Sprintf("resumes/%02d.pdf", i)] = pdfbatch.BlankPDF(1)
	}

	resp, body := do(t, uploadRequest(t, ts.URL+"/api/combine-pdfs", buildZip(t, files), "2"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "combined_pdfs.zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	got := zipNames(t, body)
	want := []string{"combined_001.pdf", "combined_002.pdf", "combined_003.pdf"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestCombinePDFs_Errors(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, nil)

	onePDF := buildZip(t, map[string][]byte{"a.pdf": pdfbatch.BlankPDF(1)})

	tests := []struct {
		name        string
		archive     []byte
		pdfsPerFile string
		wantStatus  int
		wantError   string
	}{
		{"no file", nil, "", http.StatusBadRequest, "No ZIP file provided"},
		{"zero batch size", onePDF, "0", http.StatusBadRequest, "PDFs per file must be at least 1"},
		{"negative batch size", onePDF, "-3", http.StatusBadRequest, "PDFs per file must be at least 1"},
		{"not a zip", []byte("plain text"), "", http.StatusBadRequest, "Invalid ZIP file"},
		{"no pdfs", buildZip(t, map[string][]byte{"a.txt": []byte("x")}), "", http.StatusBadRequest, "No PDF files found in the ZIP"},
		{"unreadable pdfs", buildZip(t, map[string][]byte{"a.pdf": []byte("not a pdf")}), "", http.StatusBadRequest, "Could not read any PDF files from the ZIP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, uploadRequest(t, ts.URL+"/api/combine-pdfs", tt.archive, tt.pdfsPerFile))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if got := errorMessage(t, body); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestCombinePDFs_HugeBatchSize(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	ts := newTestServer(t, mock, nil)

	archive := buildZip(t, map[string][]byte{
		"a.pdf": pdfbatch.BlankPDF(1),
		"b.pdf": pdfbatch.BlankPDF(1),
	})

	resp, body := do(t, uploadRequest(t, ts.URL+"/api/combine-pdfs", archive, "9223372036854775807"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	if got := zipNames(t, body); strings.Join(got, ",") != "combined_001.pdf" {
		t.Errorf("entries = %v", got)
	}
}
