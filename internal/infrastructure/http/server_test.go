package http

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/datachat-go/internal/adapters/cache"
	"github.com/0xcro3dile/datachat-go/internal/adapters/loader"
	"github.com/0xcro3dile/datachat-go/internal/adapters/registry"
	"github.com/0xcro3dile/datachat-go/internal/adapters/render"
	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/usecases"
	"github.com/0xcro3dile/datachat-go/internal/infrastructure/metrics"
)

const salesCSV = "city,price,qty\nHanoi,10.5,3\nHue,20,1\nHanoi,7.25,2\nDa Nang,31,5\n"

// newTestServer wires the real adapters with the language model disabled.
func newTestServer(t *testing.T, maxUpload int64) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	datasets := registry.NewInMemoryRegistry()
	renderer := render.NewPNGRenderer()
	ingest := usecases.NewIngestUseCase(loader.NewCSVLoader(loader.WithMaxBytes(maxUpload)), datasets, nil, zerolog.Nop(), m)
	orch := usecases.NewOrchestrator(datasets,
		usecases.NewActionExecutor(datasets, renderer),
		usecases.NewChartBuilder(datasets, cache.NewChartCache(16, time.Minute), renderer, usecases.WithChartMetrics(m)),
		usecases.WithLLMFallback(false),
		usecases.WithMetrics(m),
	)

	srv := NewServer(orch, ingest, Options{MaxUploadBytes: maxUpload, Logger: zerolog.Nop(), Gatherer: reg})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func upload(t *testing.T, ts *httptest.Server, session, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/datasets?session_id="+session+"&name=sales.csv", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func chat(t *testing.T, ts *httptest.Server, session, message string) entities.Block {
	t.Helper()
	body, _ := json.Marshal(chatRequest{SessionID: session, Message: message})
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var block entities.Block
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&block))
	return block
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	defer resp.Body.Close()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestServer_UploadThenChat(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)

	resp := upload(t, ts, "s1", salesCSV)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var meta datasetResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	resp.Body.Close()
	assert.Equal(t, "s1", meta.SessionID)
	assert.Equal(t, "upload:sales.csv", meta.Origin)
	assert.Equal(t, 4, meta.Rows)
	assert.Equal(t, []string{"city", "price", "qty"}, meta.Columns)

	summary := chat(t, ts, "s1", "summarize")
	assert.Equal(t, entities.BlockTable, summary.Type)
	assert.Equal(t, "Dataset Summary", summary.Title)
	require.NotNil(t, summary.Debug)
	assert.Equal(t, "s1", summary.Debug.SessionID)

	chart := chat(t, ts, "s1", "histogram of price bins=2")
	assert.Equal(t, entities.BlockImage, chart.Type)
	assert.NotEmpty(t, chart.Text)
}

func TestServer_SampleWithInfiniteCells(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)

	resp := upload(t, ts, "s1", "price\n1\ninf\n-Infinity\n")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	sample := chat(t, ts, "s1", "sample 5")
	require.Equal(t, entities.BlockTable, sample.Type)
	require.NotNil(t, sample.Table)
	assert.Equal(t, [][]any{{1.0}, {"inf"}, {"-inf"}}, sample.Table.Rows)

	stats := chat(t, ts, "s1", "show stats")
	require.Equal(t, entities.BlockTable, stats.Type)
}

func TestWriteJSON_EncodeFailureIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"bad": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal", body.Error.Type)
}

func TestServer_ChatWithoutDataset(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)

	block := chat(t, ts, "nobody", "summarize")
	assert.Equal(t, entities.BlockAlert, block.Type)
	assert.Equal(t, "No Data", block.Title)
}

func TestServer_ChatValidation(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)

	for _, body := range []string{`{`, `{"session_id":"s1"}`, `{"message":"hi"}`} {
		resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "bad_request", decodeError(t, resp).Error.Type)
	}
}

func TestServer_MultipartUploadGeneratesSession(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "orders.csv")
	require.NoError(t, err)
	io.WriteString(fw, salesCSV)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/datasets", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var meta datasetResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Len(t, meta.SessionID, 36)
	assert.Equal(t, "upload:orders.csv", meta.Origin)
}

func TestServer_UploadErrors(t *testing.T) {
	ts, _ := newTestServer(t, 64)

	resp := upload(t, ts, "s1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, ts, "s1", "a,b\n1,2,3\n")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid", decodeError(t, resp).Error.Type)

	resp = upload(t, ts, "s1", "a\n"+strings.Repeat("1\n", 100))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "too_large", decodeError(t, resp).Error.Type)
}

func TestServer_DatasetLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)
	upload(t, ts, "s1", salesCSV).Body.Close()

	resp, err := http.Get(ts.URL + "/api/datasets/s1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta datasetResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	resp.Body.Close()
	assert.Equal(t, "float64", meta.DTypes["price"])

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/datasets/s1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/datasets/s1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, resp).Error.Type)
}

func TestServer_IngestFromURL(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.csv" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, salesCSV)
	}))
	defer source.Close()

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.URL+"/api/datasets/url", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"session_id":"web","url":"` + source.URL + `/sales.csv"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, entities.BlockTable, chat(t, ts, "web", "show schema").Type)

	resp = post(`{"session_id":"web","url":"` + source.URL + `/broken.csv"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream", decodeError(t, resp).Error.Type)

	resp = post(`{"session_id":"web","url":"/etc/passwd"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_HealthMetricsAndCORS(t *testing.T) {
	ts, _ := newTestServer(t, 1<<20)
	chat(t, ts, "nobody", "summarize")

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), `datachat_requests_total{route="alert"} 1`)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
