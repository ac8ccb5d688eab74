package audiolink

import "time"

// Stats is an immutable snapshot of the receiver's observable state. All
// counters are cumulative since Start or the last ResetStats; gauges
// reflect the moment the snapshot was taken.
type Stats struct {
	SessionID string        `json:"session_id"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime_ns"`

	PacketsReceived   uint64 `json:"packets_received"`
	BytesReceived     uint64 `json:"bytes_received"`
	FormatErrors      uint64 `json:"format_errors"`
	ReadErrors        uint64 `json:"read_errors"`
	QueueDrops        uint64 `json:"queue_drops"`
	LossCount         uint64 `json:"loss_count"`
	ReorderedCount    uint64 `json:"reordered_count"`
	DuplicatesDropped uint64 `json:"duplicates_dropped"`
	LateDropped       uint64 `json:"late_dropped"`
	OverflowDropped   uint64 `json:"overflow_dropped"`
	Underruns         uint64 `json:"underruns"`
	DecodeErrors      uint64 `json:"decode_errors"`
	FramesDecoded     uint64 `json:"frames_decoded"`
	FramesConcealed   uint64 `json:"frames_concealed"`
	FramesSilence     uint64 `json:"frames_silence"`
	FecRecovered      uint64 `json:"fec_recovered"`
	FecUnrecoverable  uint64 `json:"fec_unrecoverable"`
	FecSymbols        uint64 `json:"fec_symbols"`
	FecSymbolErrors   uint64 `json:"fec_symbol_errors"`
	DeadlineMisses    uint64 `json:"deadline_misses"`
	CapacityChanges   uint64 `json:"capacity_changes"`

	CurrentQueueDepth  int           `json:"queue_depth"`
	BufferState        string        `json:"buffer_state"`
	BufferDepth        int           `json:"buffer_depth"`
	BufferCapacity     int           `json:"buffer_capacity"`
	CurrentBufferDelay time.Duration `json:"buffer_delay_ns"`
	Jitter             time.Duration `json:"jitter_ns"`
	LossPercent        float64       `json:"loss_percent"`
	Quality            string        `json:"quality"`
	RecommendedFec     float64       `json:"recommended_fec_percent"`
	MeetingDeadline    bool          `json:"meeting_deadline"`

	PacketsPerSecond float64 `json:"packets_per_second"`
	BytesPerSecond   float64 `json:"bytes_per_second"`
	ErrorRate        float64 `json:"error_rate"`
}

// minus subtracts a baseline from the cumulative counters, leaving gauges
// untouched. ResetStats uses it so the aggregate restarts from zero while
// the underlying components keep counting.
func (s Stats) minus(base Stats) Stats {
	s.PacketsReceived -= base.PacketsReceived
	s.BytesReceived -= base.BytesReceived
	s.FormatErrors -= base.FormatErrors
	s.ReadErrors -= base.ReadErrors
	s.QueueDrops -= base.QueueDrops
	s.LossCount -= base.LossCount
	s.ReorderedCount -= base.ReorderedCount
	s.DuplicatesDropped -= base.DuplicatesDropped
	s.LateDropped -= base.LateDropped
	s.OverflowDropped -= base.OverflowDropped
	s.Underruns -= base.Underruns
	s.DecodeErrors -= base.DecodeErrors
	s.FramesDecoded -= base.FramesDecoded
	s.FramesConcealed -= base.FramesConcealed
	s.FramesSilence -= base.FramesSilence
	s.FecRecovered -= base.FecRecovered
	s.FecUnrecoverable -= base.FecUnrecoverable
	s.FecSymbols -= base.FecSymbols
	s.FecSymbolErrors -= base.FecSymbolErrors
	s.DeadlineMisses -= base.DeadlineMisses
	s.CapacityChanges -= base.CapacityChanges
	return s
}

// derive fills the rate fields from the counter fields and the elapsed
// window.
func (s Stats) derive(uptime time.Duration) Stats {
	s.Uptime = uptime
	if secs := uptime.Seconds(); secs > 0 {
		s.PacketsPerSecond = float64(s.PacketsReceived) / secs
		s.BytesPerSecond = float64(s.BytesReceived) / secs
	}
	if total := s.PacketsReceived + s.LossCount; total > 0 {
		s.ErrorRate = float64(s.LossCount) / float64(total)
	}
	return s
}
