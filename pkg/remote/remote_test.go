package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/picolimno/pkg/sample"
	"github.com/itohio/picolimno/pkg/transport"
)

// fakeServer records what the device API receives.
type fakeServer struct {
	mu      sync.Mutex
	status  []Status
	samples [][]sample.Sample
	params  string
	// paramsStatus answers the parameters request with an error status.
	paramsStatus int
}

func (s *fakeServer) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/device/{device}", func(r chi.Router) {
		r.Put("/status", func(w http.ResponseWriter, req *http.Request) {
			var st Status
			if err := json.NewDecoder(req.Body).Decode(&st); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			s.status = append(s.status, st)
			s.mu.Unlock()
		})
		r.Put("/samples", func(w http.ResponseWriter, req *http.Request) {
			data, _ := io.ReadAll(req.Body)
			got, err := sample.Decode(data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			s.samples = append(s.samples, got)
			s.mu.Unlock()
		})
		r.Get("/parameters", func(w http.ResponseWriter, req *http.Request) {
			if chi.URLParam(req, "device") != "GSM-356938035643809" {
				http.NotFound(w, req)
				return
			}
			w.Header().Set("Date", "Wed, 23 May 2018 10:15:00 GMT")
			if s.paramsStatus != 0 {
				w.WriteHeader(s.paramsStatus)
				return
			}
			w.Write([]byte(s.params))
		})
	})
	return r
}

func newClient(t *testing.T, srv *fakeServer) *Client {
	t.Helper()
	ts := httptest.NewServer(srv.router())
	t.Cleanup(ts.Close)

	log, _ := test.NewNullLogger()
	c := New(transport.NewHTTP(transport.HTTPConfig{BaseURL: ts.URL, Attempts: 1}, log), log)
	c.SetIMEI("356938035643809")
	return c
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/device/GSM-42/samples", DevicePath("42", "samples"))
}

func TestClient_NoIdentity(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := New(nil, log)

	assert.ErrorIs(t, c.SendStatus(context.Background(), StateStarting, "", time.Now()), ErrNoIdentity)
	assert.ErrorIs(t, c.SendSamples(context.Background(), nil), ErrNoIdentity)
	_, _, err := c.Parameters(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestClient_SendStatus(t *testing.T) {
	srv := &fakeServer{}
	c := newClient(t, srv)

	at := time.Date(2018, 5, 23, 10, 0, 5, 0, time.UTC)
	require.NoError(t, c.SendStatus(context.Background(), StateStarting, "10.0.0.7", at))

	require.Len(t, srv.status, 1)
	assert.Equal(t, Status{Timestamp: "2018-05-23T10:00:05Z", Status: "Starting", IP: "10.0.0.7"}, srv.status[0])
}

func TestClient_SendSamples(t *testing.T) {
	srv := &fakeServer{}
	c := newClient(t, srv)

	at := time.Date(2018, 5, 23, 10, 15, 0, 0, time.UTC)
	batch := []sample.Sample{
		sample.New(at, sample.KeyRange, 152.3),
		sample.New(at, sample.KeyBattery, 3.9),
	}
	require.NoError(t, c.SendSamples(context.Background(), batch))

	require.Len(t, srv.samples, 1)
	require.Len(t, srv.samples[0], 2)
	assert.Equal(t, sample.KeyRange, srv.samples[0][0].Key)
	assert.InDelta(t, 152.3, srv.samples[0][0].Value, 0.01)
	assert.Equal(t, at.Unix(), srv.samples[0][1].Epoch)
}

func TestClient_Parameters(t *testing.T) {
	srv := &fakeServer{params: `{"limit1R":150,"hyst1R":10}`}
	c := newClient(t, srv)

	body, date, err := c.Parameters(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, srv.params, string(body))
	assert.Equal(t, time.Date(2018, 5, 23, 10, 15, 0, 0, time.UTC), date)
}

func TestClient_ParametersUnknownDevice(t *testing.T) {
	srv := &fakeServer{}
	c := newClient(t, srv)
	c.SetIMEI("1")

	_, _, err := c.Parameters(context.Background())
	assert.ErrorIs(t, err, transport.ErrStatus)
}

func TestClient_ParametersErrorStatusKeepsDate(t *testing.T) {
	srv := &fakeServer{paramsStatus: http.StatusServiceUnavailable}
	c := newClient(t, srv)

	body, date, err := c.Parameters(context.Background())
	assert.ErrorIs(t, err, transport.ErrStatus)
	assert.Nil(t, body)
	assert.Equal(t, time.Date(2018, 5, 23, 10, 15, 0, 0, time.UTC), date)
}
