// Package httpapi serves sampler status, readings and metrics over HTTP.
//
// Routes:
//
//	GET /health            liveness and sampler state
//	GET /status            full sampler status
//	GET /metrics           Prometheus exposition
//	GET /readings?count=n  recent readings, newest first
//	GET /outcomes?count=n  recent cycle outcomes, newest first
//	GET /outcomes/ws       websocket stream, one JSON outcome per message
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/metrics"
	"github.com/ironsheep/thermo-ocr/internal/reading"
	"github.com/ironsheep/thermo-ocr/internal/sampler"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

const (
	defaultCount = 20
	maxCount     = 1000
	writeWait    = 5 * time.Second
)

// Sampler is the part of *sampler.Loop the API reads.
type Sampler interface {
	Status() sampler.Status
	Outcomes(n int) []sampler.Outcome
	Subscribe(buffer int) (<-chan sampler.Outcome, func())
	RecentReadings() []reading.SensorReading
}

// API holds the HTTP handlers.
type API struct {
	sampler  Sampler
	store    sink.Store
	metrics  *metrics.Metrics
	log      *logrus.Entry
	upgrader websocket.Upgrader
	accessW  *io.PipeWriter
}

// New creates the API. store may be nil, in which case /readings serves the
// sampler's cached view only. m may be nil, in which case /metrics is absent.
func New(s Sampler, store sink.Store, m *metrics.Metrics, log *logrus.Entry) *API {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &API{
		sampler: s,
		store:   store,
		metrics: m,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler with access logging.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/health", a.metrics.WrapHandler("/health", http.HandlerFunc(a.health))).Methods(http.MethodGet)
	r.Handle("/status", a.metrics.WrapHandler("/status", http.HandlerFunc(a.status))).Methods(http.MethodGet)
	r.Handle("/readings", a.metrics.WrapHandler("/readings", http.HandlerFunc(a.readings))).Methods(http.MethodGet)
	r.Handle("/outcomes", a.metrics.WrapHandler("/outcomes", http.HandlerFunc(a.outcomes))).Methods(http.MethodGet)
	r.HandleFunc("/outcomes/ws", a.outcomeStream).Methods(http.MethodGet)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	}

	if a.accessW == nil {
		a.accessW = a.log.WithField("component", "http").WriterLevel(logrus.DebugLevel)
	}
	return handlers.LoggingHandler(a.accessW, r)
}

// Close releases the access log writer.
func (a *API) Close() error {
	if a.accessW == nil {
		return nil
	}
	return a.accessW.Close()
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sampler": a.sampler.Status().State,
	})
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sampler.Status())
}

func (a *API) readings(w http.ResponseWriter, r *http.Request) {
	count, err := parseCount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if a.store != nil && a.store.IsConnected() {
		rs, err := a.store.Recent(r.Context(), count)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, readingsResponse{Readings: rs, Count: len(rs)})
		return
	}

	rs := a.sampler.RecentReadings()
	if len(rs) > count {
		rs = rs[:count]
	}
	writeJSON(w, http.StatusOK, readingsResponse{Readings: rs, Count: len(rs)})
}

type readingsResponse struct {
	Readings []reading.SensorReading `json:"readings"`
	Count    int                     `json:"count"`
}

func (a *API) outcomes(w http.ResponseWriter, r *http.Request) {
	count, err := parseCount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out := a.sampler.Outcomes(count)
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": out, "count": len(out)})
}

// outcomeStream upgrades to a websocket and forwards outcomes until the
// client goes away or the sampler closes.
func (a *API) outcomeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	outcomes, cancel := a.sampler.Subscribe(16)
	defer cancel()
	a.log.WithField("remote", r.RemoteAddr).Info("Outcome stream connected")

	// Reads only detect the close; clients send nothing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					a.log.WithError(err).Debug("Outcome stream read ended")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			a.log.WithField("remote", r.RemoteAddr).Info("Outcome stream disconnected")
			return
		case o, ok := <-outcomes:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "sampler closed"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(o); err != nil {
				a.log.WithError(err).Debug("Outcome stream write failed")
				return
			}
		}
	}
}

func parseCount(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return defaultCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("count must be a positive integer")
	}
	if n > maxCount {
		n = maxCount
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ListenAndServe serves h on addr until ctx ends, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log *logrus.Entry) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
