// Package monitor exposes the receiver's statistics snapshot to operators:
// a Prometheus registry, a JSON endpoint, a WebSocket push feed, and a
// periodic log line. It only ever reads snapshots and can never touch
// hot-path state.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/audiolink"
	"github.com/opd-ai/audiolink/clock"
)

// DefaultAddr is the conventional listen address when the monitor is
// enabled.
const DefaultAddr = ":9190"

// shutdownGrace bounds how long a graceful HTTP shutdown may take.
const shutdownGrace = 5 * time.Second

// StatsSource yields the receiver's current statistics snapshot.
type StatsSource func() audiolink.Stats

// Config holds the monitor settings.
type Config struct {
	// Addr is the HTTP listen address. Empty disables the HTTP surface.
	Addr string

	// ReportInterval is the cadence of the periodic log line. Zero
	// disables it.
	ReportInterval time.Duration

	// PushInterval is the cadence of WebSocket snapshot pushes.
	PushInterval time.Duration

	// TimeProvider is the time source; nil selects the real clock.
	TimeProvider clock.TimeProvider
}

// DefaultConfig returns the monitor defaults: HTTP off, a 5s report line,
// 1s WebSocket pushes.
func DefaultConfig() Config {
	return Config{
		ReportInterval: 5 * time.Second,
		PushInterval:   time.Second,
	}
}

// payload is the JSON shape served on /stats and pushed on /ws: the
// receiver snapshot plus process-level readings.
type payload struct {
	audiolink.Stats
	CPUPercent float64   `json:"cpu_percent"`
	Timestamp  time.Time `json:"timestamp"`
}

// Server serves the monitor surfaces for one receiver.
type Server struct {
	cfg    Config
	source StatsSource
	tp     clock.TimeProvider

	mux      *http.ServeMux
	metrics  *metrics
	upgrader websocket.Upgrader

	procMu sync.Mutex
	proc   *process.Process

	reportMu sync.Mutex
	lastSeen audiolink.Stats
	lastAt   time.Time
}

// New creates a monitor over the given stats source.
func New(cfg Config, source StatsSource) *Server {
	def := DefaultConfig()
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = def.PushInterval
	}

	s := &Server{
		cfg:    cfg,
		source: source,
		tp:     clock.Provider(cfg.TimeProvider),
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	// Sampling our own process; failure just zeroes the CPU reading.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	}

	s.metrics = newMetrics(s)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("/metrics", s.metrics.handler())
	return s
}

// Handler returns the HTTP handler serving /stats, /ws and /metrics.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves HTTP (when an address is configured) and emits the periodic
// report line until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.cfg.Addr != "" {
		srv := &http.Server{Addr: s.cfg.Addr, Handler: s.mux}
		g.Go(func() error {
			logrus.WithFields(logrus.Fields{
				"component": "monitor",
				"addr":      s.cfg.Addr,
			}).Info("monitor listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if s.cfg.ReportInterval > 0 {
		g.Go(func() error {
			s.reportLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) snapshot() payload {
	return payload{
		Stats:      s.source(),
		CPUPercent: s.cpuPercent(),
		Timestamp:  s.tp.Now(),
	}
}

func (s *Server) cpuPercent() float64 {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	if s.proc == nil {
		return 0
	}
	v, err := s.proc.Percent(0)
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "monitor",
			"error":     err,
		}).Debug("stats encode failed")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The read side only exists to observe the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := s.tp.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		}
	}
}

// reportLoop logs a periodic operator summary with per-interval rates.
func (s *Server) reportLoop(ctx context.Context) {
	ticker := s.tp.NewTicker(s.cfg.ReportInterval)
	defer ticker.Stop()

	s.reportMu.Lock()
	s.lastSeen = s.source()
	s.lastAt = s.tp.Now()
	s.reportMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reportOnce()
		}
	}
}

func (s *Server) reportOnce() {
	now := s.tp.Now()
	cur := s.source()

	s.reportMu.Lock()
	prev, prevAt := s.lastSeen, s.lastAt
	s.lastSeen, s.lastAt = cur, now
	s.reportMu.Unlock()

	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return
	}

	logrus.WithFields(logrus.Fields{
		"component": "monitor",
		"session":   cur.SessionID,
		"pps":       float64(cur.PacketsReceived-prev.PacketsReceived) / elapsed,
		"kbps":      float64(cur.BytesReceived-prev.BytesReceived) * 8 / 1000 / elapsed,
		"loss":      cur.LossCount,
		"recovered": cur.FecRecovered,
		"underruns": cur.Underruns,
		"concealed": cur.FramesConcealed,
		"queue":     cur.CurrentQueueDepth,
		"delay_ms":  float64(cur.CurrentBufferDelay.Microseconds()) / 1000,
		"quality":   cur.Quality,
		"cpu":       s.cpuPercent(),
		"rt_ok":     cur.MeetingDeadline,
	}).Info("receiver report")
}
