package server

import (
	"sync/atomic"
	"time"
)

// telemetryCounters aggregates hot-path counters without taking the hub
// mutex. The broadcast and reader goroutines bump them; the diagnostics
// endpoint snapshots them.
type telemetryCounters struct {
	ticksAdvanced      atomic.Uint64
	tickDurationMillis atomic.Int64

	bytesSent     atomic.Uint64
	keyframesSent atomic.Uint64
	deltasSent    atomic.Uint64

	keyframeRequests atomic.Uint64
	resyncsForced    atomic.Uint64

	inputsDropped atomic.Uint64
	violations    atomic.Uint64

	journalSize   atomic.Uint64
	journalOldest atomic.Uint64
	journalNewest atomic.Uint64
}

type telemetrySnapshot struct {
	TicksAdvanced      uint64 `json:"ticksAdvanced"`
	TickDurationMillis int64  `json:"tickDurationMillis"`
	BytesSent          uint64 `json:"bytesSent"`
	KeyframesSent      uint64 `json:"keyframesSent"`
	DeltasSent         uint64 `json:"deltasSent"`
	KeyframeRequests   uint64 `json:"keyframeRequests"`
	ResyncsForced      uint64 `json:"resyncsForced"`
	InputsDropped      uint64 `json:"inputsDropped"`
	Violations         uint64 `json:"violations"`
	JournalSize        uint64 `json:"journalSize"`
	JournalOldestTick  uint64 `json:"journalOldestTick"`
	JournalNewestTick  uint64 `json:"journalNewestTick"`
}

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

func (t *telemetryCounters) RecordTick(duration time.Duration) {
	if t == nil {
		return
	}
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.ticksAdvanced.Add(1)
	t.tickDurationMillis.Store(millis)
}

func (t *telemetryCounters) RecordSend(bytes int, keyframe bool) {
	if t == nil {
		return
	}
	if bytes > 0 {
		t.bytesSent.Add(uint64(bytes))
	}
	if keyframe {
		t.keyframesSent.Add(1)
	} else {
		t.deltasSent.Add(1)
	}
}

func (t *telemetryCounters) RecordKeyframeRequest() {
	if t == nil {
		return
	}
	t.keyframeRequests.Add(1)
}

func (t *telemetryCounters) RecordResync() {
	if t == nil {
		return
	}
	t.resyncsForced.Add(1)
}

func (t *telemetryCounters) RecordInputsDropped(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.inputsDropped.Add(uint64(n))
}

func (t *telemetryCounters) RecordViolation() {
	if t == nil {
		return
	}
	t.violations.Add(1)
}

func (t *telemetryCounters) RecordJournalWindow(size int, oldest, newest uint64) {
	if t == nil {
		return
	}
	if size < 0 {
		size = 0
	}
	t.journalSize.Store(uint64(size))
	t.journalOldest.Store(oldest)
	t.journalNewest.Store(newest)
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	if t == nil {
		return telemetrySnapshot{}
	}
	return telemetrySnapshot{
		TicksAdvanced:      t.ticksAdvanced.Load(),
		TickDurationMillis: t.tickDurationMillis.Load(),
		BytesSent:          t.bytesSent.Load(),
		KeyframesSent:      t.keyframesSent.Load(),
		DeltasSent:         t.deltasSent.Load(),
		KeyframeRequests:   t.keyframeRequests.Load(),
		ResyncsForced:      t.resyncsForced.Load(),
		InputsDropped:      t.inputsDropped.Load(),
		Violations:         t.violations.Load(),
		JournalSize:        t.journalSize.Load(),
		JournalOldestTick:  t.journalOldest.Load(),
		JournalNewestTick:  t.journalNewest.Load(),
	}
}
