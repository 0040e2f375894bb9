package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/simdash/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	cfg.RateLimit = 0
	client, err := NewClient(cfg, logger)
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "://bad"} {
		cfg := DefaultClientConfig()
		cfg.BaseURL = raw
		_, err := NewClient(cfg, logrus.New())
		assert.Error(t, err, raw)
	}
}

func TestSubmit(t *testing.T) {
	var (
		mu     sync.Mutex
		fields map[string]string
		files  map[string]string
		reqID  string
	)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/simulate", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		mu.Lock()
		reqID = r.Header.Get("X-Request-ID")
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		files = map[string]string{}
		for k, fh := range r.MultipartForm.File {
			f, err := fh[0].Open()
			require.NoError(t, err)
			blob, _ := io.ReadAll(f)
			f.Close()
			files[k] = fh[0].Filename + ":" + string(blob)
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"run_id": "run-123", "status": "running"}`)
	}))

	var progress []int
	runID, err := client.Submit(context.Background(), models.SimulationRequest{
		Weather:    &models.FileHandle{Name: "weather.epw", Data: []byte("epw")},
		Dimensions: models.Dimensions{Length: 10, Width: 8.5, Height: 3},
	}, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.Equal(t, "run-123", runID)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, reqID)
	assert.Equal(t, map[string]string{"length": "10", "width": "8.5", "height": "3"}, fields)
	assert.Equal(t, map[string]string{"weather_file": "weather.epw:epw"}, files)

	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestSubmitWithBuildingModelOmitsIncompleteDimensions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Empty(t, r.MultipartForm.Value)
		assert.Contains(t, r.MultipartForm.File, "idf_file")
		assert.Contains(t, r.MultipartForm.File, "weather_file")
		fmt.Fprint(w, `{"run_id": "run-idf"}`)
	}))

	runID, err := client.Submit(context.Background(), models.SimulationRequest{
		BuildingModel: &models.FileHandle{Name: "in.idf", Data: []byte("idf")},
		Weather:       &models.FileHandle{Name: "w.epw", Data: []byte("epw")},
		Dimensions:    models.Dimensions{Length: 4},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-idf", runID)
}

func TestEncodeRequestSkipsEmptyBuildingModel(t *testing.T) {
	body, contentType, err := encodeRequest(models.SimulationRequest{
		BuildingModel: &models.FileHandle{Name: "model.idf"},
		Weather:       &models.FileHandle{Name: "w.epw", Data: []byte("epw")},
		Dimensions:    models.Dimensions{Length: 1, Width: 2, Height: 3},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data"))
	assert.NotContains(t, string(body), `name="idf_file"`)
	assert.Contains(t, string(body), `name="weather_file"`)
	assert.Contains(t, string(body), `name="length"`)
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "fastapi detail",
			status:     http.StatusBadRequest,
			body:       `{"detail": "Provide either an IDF file or all three dimensions (length, width, height)."}`,
			wantDetail: "Provide either an IDF file or all three dimensions (length, width, height).",
		},
		{
			name:       "error field",
			status:     http.StatusInternalServerError,
			body:       `{"error": "disk full"}`,
			wantDetail: "disk full",
		},
		{
			name:       "structured detail",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail": [{"loc": ["body", "weather_file"], "msg": "field required"}]}`,
			wantDetail: `[{"loc": ["body", "weather_file"], "msg": "field required"}]`,
		},
		{
			name:       "no body",
			status:     http.StatusBadGateway,
			body:       ``,
			wantDetail: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.Submit(context.Background(), models.SimulationRequest{
				Weather: &models.FileHandle{Name: "w.epw", Data: []byte("epw")},
			}, nil)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantDetail, Detail(err))
		})
	}
}

func TestSubmitMissingRunID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "running"}`)
	}))

	_, err := client.Submit(context.Background(), models.SimulationRequest{
		Weather: &models.FileHandle{Name: "w.epw", Data: []byte("epw")},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not return a run id")
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	client, err := NewClient(cfg, logrus.New())
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), models.SimulationRequest{
		Weather: &models.FileHandle{Name: "w.epw", Data: []byte("epw")},
	}, nil)
	assert.True(t, errors.Is(err, ErrRequest))
	assert.Empty(t, Detail(err))
}

func TestFetchResults(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/results/pending":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"detail": "CSV output not found"}`)
		case "/results/json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data": [{"time": "01/01 01:00", "value": 20.5}, {"time": "01/01 02:00", "value": 21}]}`)
		case "/results/csv":
			w.Header().Set("Content-Type", "text/csv")
			fmt.Fprint(w, "Date/Time,Zone Air Temperature [C]\n01/01 01:00,20.5\n")
		case "/results/quoted-csv":
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			fmt.Fprint(w, "\"Date/Time\",Zone Air Temperature [C]\n01/01 01:00,20.5\n")
		case "/results/sniffed-csv":
			w.Header().Set("Content-Type", "application/octet-stream")
			fmt.Fprint(w, "\"Date/Time\",Zone Air Temperature [C]\n01/01 01:00,20.5\n")
		case "/results/string":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `"Date/Time,Zone Air Temperature [C]\n01/01 01:00,20.5\n"`)
		case "/results/failed":
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"detail": "EnergyPlus reported errors:\n** Severe  ** bad"}`)
		case "/results/garbage":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data": `)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	ctx := context.Background()

	_, err := client.FetchResults(ctx, "pending")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := client.FetchResults(ctx, "json")
	require.NoError(t, err)
	assert.Equal(t, models.KindSamples, raw.Kind)
	assert.Equal(t, []models.Sample{{Time: "01/01 01:00", Value: 20.5}, {Time: "01/01 02:00", Value: 21}}, raw.Samples)

	raw, err = client.FetchResults(ctx, "csv")
	require.NoError(t, err)
	assert.Equal(t, models.KindTable, raw.Kind)
	assert.True(t, strings.HasPrefix(raw.Text, "Date/Time"))

	for _, id := range []string{"quoted-csv", "sniffed-csv"} {
		raw, err = client.FetchResults(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, models.KindTable, raw.Kind, id)
		assert.True(t, strings.HasPrefix(raw.Text, `"Date/Time"`), id)
	}

	raw, err = client.FetchResults(ctx, "string")
	require.NoError(t, err)
	assert.Equal(t, models.KindTable, raw.Kind)
	assert.Contains(t, raw.Text, "01/01 01:00,20.5")

	_, err = client.FetchResults(ctx, "failed")
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, Detail(err), "Severe")

	_, err = client.FetchResults(ctx, "garbage")
	assert.Error(t, err)

	_, err = client.FetchResults(ctx, " ")
	assert.Error(t, err)
}

func TestFetchResultsCachesCompletedSamples(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": [{"time": "A", "value": 1}]}`)
	}))

	for i := 0; i < 3; i++ {
		raw, err := client.FetchResults(context.Background(), "run-1")
		require.NoError(t, err)
		assert.Len(t, raw.Samples, 1)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchResultsDoesNotCacheEmpty(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": []}`)
	}))

	for i := 0; i < 2; i++ {
		_, err := client.FetchResults(context.Background(), "run-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestProgressReader(t *testing.T) {
	var got []int
	r := newProgressReader(strings.NewReader(strings.Repeat("x", 200)), 200, func(p int) { got = append(got, p) })

	buf := make([]byte, 50)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []int{25, 50, 75, 100}, got)
}
