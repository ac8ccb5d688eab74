package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiolink"
)

func fixedSource(stats audiolink.Stats) StatsSource {
	return func() audiolink.Stats { return stats }
}

func TestStatsEndpointServesSnapshot(t *testing.T) {
	srv := New(DefaultConfig(), fixedSource(audiolink.Stats{
		SessionID:       "session-1",
		PacketsReceived: 42,
		BytesReceived:   672,
		LossCount:       3,
		Quality:         "good",
		MeetingDeadline: true,
	}))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		SessionID       string    `json:"session_id"`
		PacketsReceived uint64    `json:"packets_received"`
		LossCount       uint64    `json:"loss_count"`
		Quality         string    `json:"quality"`
		MeetingDeadline bool      `json:"meeting_deadline"`
		Timestamp       time.Time `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, uint64(42), got.PacketsReceived)
	assert.Equal(t, uint64(3), got.LossCount)
	assert.Equal(t, "good", got.Quality)
	assert.True(t, got.MeetingDeadline)
	assert.False(t, got.Timestamp.IsZero())
}

func TestMetricsEndpointExposesSnapshot(t *testing.T) {
	srv := New(DefaultConfig(), fixedSource(audiolink.Stats{
		PacketsReceived:    42,
		BytesReceived:      672,
		LossCount:          3,
		FecRecovered:       2,
		CurrentQueueDepth:  7,
		CurrentBufferDelay: 10 * time.Millisecond,
		RecommendedFec:     20,
		MeetingDeadline:    true,
	}))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "audiolink_receiver_packets_received_total 42")
	assert.Contains(t, body, "audiolink_receiver_bytes_received_total 672")
	assert.Contains(t, body, "audiolink_receiver_loss_total 3")
	assert.Contains(t, body, "audiolink_receiver_fec_recovered_total 2")
	assert.Contains(t, body, "audiolink_receiver_queue_depth 7")
	assert.Contains(t, body, "audiolink_receiver_buffer_delay_seconds 0.01")
	assert.Contains(t, body, "audiolink_receiver_recommended_fec_percent 20")
	assert.Contains(t, body, "audiolink_receiver_meeting_deadline 1")
	assert.Contains(t, body, "audiolink_receiver_cpu_percent")
}

func TestWebsocketPushesFreshSnapshots(t *testing.T) {
	var packets atomic.Uint64
	packets.Store(10)
	source := func() audiolink.Stats {
		return audiolink.Stats{PacketsReceived: packets.Load()}
	}

	cfg := DefaultConfig()
	cfg.PushInterval = 10 * time.Millisecond
	srv := New(cfg, source)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var first struct {
		PacketsReceived uint64 `json:"packets_received"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(10), first.PacketsReceived)

	packets.Store(25)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		var next struct {
			PacketsReceived uint64 `json:"packets_received"`
		}
		require.NoError(t, conn.ReadJSON(&next))
		if next.PacketsReceived == 25 {
			break
		}
	}
}

func TestReportLoopLogsSummary(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	cfg := DefaultConfig()
	cfg.ReportInterval = 10 * time.Millisecond
	srv := New(cfg, fixedSource(audiolink.Stats{
		SessionID: "session-2",
		Quality:   "good",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, entry := range hook.AllEntries() {
			if entry.Message == "receiver report" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message != "receiver report" {
			continue
		}
		found = true
		assert.Equal(t, "session-2", entry.Data["session"])
		assert.Equal(t, "good", entry.Data["quality"])
	}
	require.True(t, found)
}

func TestRunReturnsOnCancelWithoutListener(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ""
	srv := New(cfg, fixedSource(audiolink.Stats{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
