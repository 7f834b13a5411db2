package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/litmatrix/internal/artifacts"
	"github.com/zombar/litmatrix/internal/database"
	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/llm"
	"github.com/zombar/litmatrix/internal/metrics"
	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/session"
	"github.com/zombar/litmatrix/internal/store"
)

const reportJSON = `{
	"evidenceList":[{"name":"Bank transfer receipt","provedFact":"¥50,000 delivered","reliability":"High"}],
	"strategy":"Claim repayment under the loan contract",
	"keyPoints":["loan relationship"],
	"risks":[{"riskPoint":"gift defence","description":"Borrower may call it a gift","mitigation":"Chat records"}],
	"caseLaw":[{"title":"Zhang v. Li","court":"Intermediate Court","year":"2021","summary":"Similar loan","outcome":"Repayment ordered"}]
}`

// stubInferer answers every call with raw, or err when set
type stubInferer struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls int
}

func (s *stubInferer) Infer(_ context.Context, _ llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.raw, s.err
}

func (s *stubInferer) RequiresCredential() bool { return true }

// solidRasterizer returns a blank bitmap without a browser
type solidRasterizer struct{}

func (solidRasterizer) Rasterize(_ context.Context, _ export.Region) (export.Bitmap, error) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return export.Bitmap{}, err
	}
	return export.NewBitmap(buf.Bytes())
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (q *fakeQueue) EnqueueRenderExport(_ context.Context, jobID, _, _ string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, jobID)
	return jobID, nil
}

type testEnv struct {
	handler  *Handler
	inferer  *stubInferer
	db       *database.DB
	storage  *artifacts.LocalStorage
	queue    *fakeQueue
	sessions *session.Manager
}

func setupTestHandler(t *testing.T, async bool) *testEnv {
	t.Helper()

	// Reset Prometheus registry to avoid metric registration conflicts between tests
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	m := metrics.NewBusinessMetrics("litmatrix")

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	storage, err := artifacts.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	inf := &stubInferer{raw: reportJSON}
	sessions := session.NewManager(db, session.Deps{
		Inferer:  inf,
		Exporter: export.NewExporter(solidRasterizer{}, m),
		Metrics:  m,
	})

	env := &testEnv{inferer: inf, db: db, storage: storage, sessions: sessions}
	opts := Options{}
	if async {
		env.queue = &fakeQueue{}
		opts = Options{Queue: env.queue, Jobs: db, Storage: storage}
	}
	env.handler = newHandler(sessions, opts)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.mux.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["kind"], body["error"]
}

const loanCase = `{"caseInfo":"A lent B ¥50,000 in 2023","claims":"Repay ¥50,000 with interest"}`

func TestHealthEndpoint(t *testing.T) {
	env := setupTestHandler(t, false)

	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response["status"])
}

func TestMetricsRoute(t *testing.T) {
	env := setupTestHandler(t, false)
	w := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyzeFlow(t *testing.T) {
	env := setupTestHandler(t, false)

	w := env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk-test"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var settings models.Settings
	require.NoError(t, json.NewDecoder(w.Body).Decode(&settings))
	assert.True(t, settings.HasCredential)
	assert.Equal(t, llm.SourceUser, settings.CredentialSource)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result models.AnalysisResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "Claim repayment under the loan contract", result.Strategy)
	assert.NotNil(t, result.Statutes)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/report", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/report.md", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), export.Title)
	assert.Contains(t, w.Body.String(), "Bank transfer receipt")

	w = env.do(t, http.MethodGet, "/api/sessions/s1/draft", "")
	var draft models.Draft
	require.NoError(t, json.NewDecoder(w.Body).Decode(&draft))
	assert.Equal(t, "A lent B ¥50,000 in 2023", draft.CaseInfo)

	// other sessions are isolated
	w = env.do(t, http.MethodGet, "/api/sessions/s2/report", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/sessions/s1/report", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/api/sessions/s1/report", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		body       string
		inferErr   error
		raw        string
		wantStatus int
		wantKind   string
	}{
		{"no credential", "", loanCase, nil, reportJSON, http.StatusPreconditionFailed, session.KindConfiguration},
		{"blank claims", "sk", `{"caseInfo":"facts","claims":"  "}`, nil, reportJSON, http.StatusBadRequest, session.KindValidation},
		{"invalid body", "sk", `{"caseInfo":`, nil, reportJSON, http.StatusBadRequest, session.KindValidation},
		{"rejected key", "sk", loanCase, &llm.AuthError{Status: 401}, "", http.StatusUnauthorized, session.KindAuth},
		{"balance exhausted", "sk", loanCase, &llm.QuotaError{Reason: llm.QuotaBalance}, "", http.StatusPaymentRequired, session.KindBalance},
		{"rate limited", "sk", loanCase, &llm.QuotaError{Reason: llm.QuotaRate}, "", http.StatusTooManyRequests, session.KindRateLimit},
		{"network", "sk", loanCase, &llm.TransportError{Err: errors.New("dial tcp: refused")}, "", http.StatusBadGateway, session.KindTransport},
		{"upstream", "sk", loanCase, &llm.UpstreamError{Status: 503, Message: "Service Unavailable"}, "", http.StatusBadGateway, session.KindUpstream},
		{"malformed model output", "sk", loanCase, nil, "I cannot help with that", http.StatusBadGateway, session.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestHandler(t, false)
			env.inferer.raw = tt.raw
			env.inferer.err = tt.inferErr
			if tt.key != "" {
				env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"`+tt.key+`"}`)
			}

			w := env.do(t, http.MethodPost, "/api/sessions/s1/analyze", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			kind, msg := decodeError(t, w)
			assert.Equal(t, tt.wantKind, kind)
			assert.NotEmpty(t, msg)

			w = env.do(t, http.MethodGet, "/api/sessions/s1/report", "")
			assert.Equal(t, http.StatusNotFound, w.Code, "failed analysis leaves no report")
		})
	}
}

func TestFailedAnalysisKeepsPreviousReport(t *testing.T) {
	env := setupTestHandler(t, false)
	env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk"}`)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase)
	require.Equal(t, http.StatusOK, w.Code)

	env.inferer.err = &llm.QuotaError{Reason: llm.QuotaBalance}
	w = env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Claim repayment under the loan contract")
}

func TestEvidenceEndpoints(t *testing.T) {
	env := setupTestHandler(t, false)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/evidence", `{"name":"iou.jpg","type":"image/jpeg","size":"120 KB"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var item models.EvidenceItem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&item))
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.ReliabilityMedium, item.Reliability)

	w = env.do(t, http.MethodPatch, "/api/sessions/s1/evidence/"+item.ID, `{"provedFact":"borrower signed","reliability":"High"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&item))
	assert.Equal(t, "borrower signed", item.ProvedFact)
	assert.Equal(t, models.ReliabilityHigh, item.Reliability)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/evidence", `{"type":"image/png"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/sessions/s1/evidence/"+item.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/api/sessions/s1/evidence/"+item.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPut, "/api/sessions/s1/draft", `{"caseInfo":"facts","claims":"claims"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var draft models.Draft
	require.NoError(t, json.NewDecoder(w.Body).Decode(&draft))
	assert.Equal(t, "facts", draft.CaseInfo)
	assert.NotNil(t, draft.Evidence)
}

func TestSyncExport(t *testing.T) {
	env := setupTestHandler(t, false)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/exports", `{"format":"pdf"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk"}`)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase).Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/exports", `{"format":"gif"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/exports", `{"format":"png"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".png")
	_, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/exports", `{"format":"pdf"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestAsyncExport(t *testing.T) {
	env := setupTestHandler(t, true)
	env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk"}`)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase).Code)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/exports", `{"format":"pdf"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&accepted))
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, []string{jobID}, env.queue.jobs)

	w = env.do(t, http.MethodGet, "/api/exports/"+jobID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var job models.ExportJob
	require.NoError(t, json.NewDecoder(w.Body).Decode(&job))
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	w = env.do(t, http.MethodGet, "/api/exports/"+jobID+"/file", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// what the worker does once rendering finishes
	path, err := env.storage.Upload(context.Background(), jobID, "litigation-report.pdf", strings.NewReader("%PDF-1.3"))
	require.NoError(t, err)
	require.NoError(t, env.db.CompleteExportJob(jobID, path, "litigation-report.pdf"))

	w = env.do(t, http.MethodGet, "/api/exports/"+jobID+"/file", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())

	w = env.do(t, http.MethodGet, "/api/exports/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// reset removes the job and its artifact
	w = env.do(t, http.MethodDelete, "/api/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err = env.db.GetExportJob(jobID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = env.storage.Download(context.Background(), path)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}

func TestAsyncExportEnqueueFailure(t *testing.T) {
	env := setupTestHandler(t, true)
	env.queue.err = errors.New("redis: connection refused")
	env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk"}`)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase).Code)

	w := env.do(t, http.MethodPost, "/api/sessions/s1/exports", `{"format":"png"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	kind, _ := decodeError(t, w)
	assert.Equal(t, session.KindExport, kind)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/report", "")
	assert.Equal(t, http.StatusOK, w.Code, "report survives a failed export")
}

func TestBraggingEndpoint(t *testing.T) {
	env := setupTestHandler(t, false)
	env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk"}`)
	env.inferer.raw = `["a","b","c","d","e"]`

	w := env.do(t, http.MethodPost, "/api/sessions/s1/bragging", `{"style":"aloof"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, resp.Lines)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/bragging", `{"style":"smug"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsAndReset(t *testing.T) {
	env := setupTestHandler(t, false)

	w := env.do(t, http.MethodGet, "/api/sessions/s1/settings", "")
	var settings models.Settings
	require.NoError(t, json.NewDecoder(w.Body).Decode(&settings))
	assert.False(t, settings.HasCredential)

	w = env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"expert_mode":true}`)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&settings))
	assert.True(t, settings.ExpertMode)
	assert.False(t, settings.HasCredential, "absent api_key is left unchanged")

	env.do(t, http.MethodPut, "/api/sessions/s1/settings", `{"api_key":"sk"}`)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/s1/analyze", loanCase).Code)

	w = env.do(t, http.MethodDelete, "/api/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/settings", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&settings))
	assert.Equal(t, models.Settings{CredentialSource: llm.SourceNone}, settings)

	_, ok, err := env.db.Get("s1", store.KeyResult)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCORSPreflight(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	sessions := session.NewManager(store.NewMemoryKV(), session.Deps{Inferer: &stubInferer{}})
	h := NewHandler(sessions, Options{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/s1/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	sessions := session.NewManager(store.NewMemoryKV(), session.Deps{Inferer: &stubInferer{}})
	h := NewHandler(sessions, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/s1/analyze", nil)
	req.Header.Set("Origin", "https://anywhere.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
