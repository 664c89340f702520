package telemetry

import "time"

// DefaultWindowSize is the sample count kept per rolling series.
const DefaultWindowSize = 60

// StatsPayload is the daemon's resource snapshot, carried JSON-encoded
// in the first arg of a stats frame. The network counters are
// cumulative since container boot, not rates.
type StatsPayload struct {
	CPUAbsolute      float64      `json:"cpu_absolute"`
	MemoryBytes      int64        `json:"memory_bytes"`
	MemoryLimitBytes int64        `json:"memory_limit_bytes"`
	DiskBytes        int64        `json:"disk_bytes"`
	Network          NetworkBytes `json:"network"`
	State            string       `json:"state,omitempty"`
	UptimeMS         int64        `json:"uptime,omitempty"`
}

// NetworkBytes holds cumulative transfer counters.
type NetworkBytes struct {
	RxBytes int64 `json:"rx_bytes"`
	TxBytes int64 `json:"tx_bytes"`
}

// Window is a fixed-length rolling series; appending past the cap drops
// the oldest sample, so memory stays bounded for any session lifetime.
type Window struct {
	samples []float64
	max     int
}

// NewWindow creates a window keeping at most max samples. Non-positive
// max falls back to DefaultWindowSize.
func NewWindow(max int) *Window {
	if max <= 0 {
		max = DefaultWindowSize
	}
	return &Window{max: max}
}

// Push appends a sample, evicting the oldest once full.
func (w *Window) Push(v float64) {
	if len(w.samples) == w.max {
		copy(w.samples, w.samples[1:])
		w.samples[len(w.samples)-1] = v
		return
	}
	w.samples = append(w.samples, v)
}

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	return append([]float64(nil), w.samples...)
}

// Last returns the newest sample, or 0 when empty.
func (w *Window) Last() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	return w.samples[len(w.samples)-1]
}

// Len returns the current sample count.
func (w *Window) Len() int {
	return len(w.samples)
}

// Recorder derives display series from raw stats snapshots: rolling
// windows for CPU, memory, disk and network rates.
//
// Recorder is not safe for concurrent use; the owning session
// serializes access.
type Recorder struct {
	cpuPercent    *Window
	memoryBytes   *Window
	memoryPercent *Window
	diskBytes     *Window
	diskPercent   *Window
	rxRate        *Window
	txRate        *Window

	diskLimitBytes int64
	prev           NetworkBytes
	prevAt         time.Time
	havePrev       bool
}

// NewRecorder creates a recorder with windowSize samples per series.
// diskLimitBytes sizes the disk percentage series; with 0 the disk
// percent reads 0, since the daemon snapshot carries no disk limit.
func NewRecorder(windowSize int, diskLimitBytes int64) *Recorder {
	return &Recorder{
		cpuPercent:     NewWindow(windowSize),
		memoryBytes:    NewWindow(windowSize),
		memoryPercent:  NewWindow(windowSize),
		diskBytes:      NewWindow(windowSize),
		diskPercent:    NewWindow(windowSize),
		rxRate:         NewWindow(windowSize),
		txRate:         NewWindow(windowSize),
		diskLimitBytes: diskLimitBytes,
	}
}

// Observe folds one stats snapshot taken at the given time into the
// rolling series. The first snapshot has no predecessor, so its network
// rates are 0.
func (r *Recorder) Observe(p *StatsPayload, at time.Time) {
	r.cpuPercent.Push(p.CPUAbsolute)
	r.memoryBytes.Push(float64(p.MemoryBytes))
	r.memoryPercent.Push(percent(p.MemoryBytes, p.MemoryLimitBytes))
	r.diskBytes.Push(float64(p.DiskBytes))
	r.diskPercent.Push(percent(p.DiskBytes, r.diskLimitBytes))

	var rx, tx float64
	if r.havePrev {
		elapsed := at.Sub(r.prevAt)
		rx = rate(p.Network.RxBytes-r.prev.RxBytes, elapsed)
		tx = rate(p.Network.TxBytes-r.prev.TxBytes, elapsed)
	}
	r.rxRate.Push(rx)
	r.txRate.Push(tx)

	r.prev = p.Network
	r.prevAt = at
	r.havePrev = true
}

// Snapshot is a copy of every derived series at one instant, each
// oldest first.
type Snapshot struct {
	CPUPercent    []float64
	MemoryBytes   []float64
	MemoryPercent []float64
	DiskBytes     []float64
	DiskPercent   []float64
	RxRate        []float64
	TxRate        []float64
}

// Snapshot copies the current series.
func (r *Recorder) Snapshot() *Snapshot {
	return &Snapshot{
		CPUPercent:    r.cpuPercent.Values(),
		MemoryBytes:   r.memoryBytes.Values(),
		MemoryPercent: r.memoryPercent.Values(),
		DiskBytes:     r.diskBytes.Values(),
		DiskPercent:   r.diskPercent.Values(),
		RxRate:        r.rxRate.Values(),
		TxRate:        r.txRate.Values(),
	}
}

// rate converts a counter delta over an interval into bytes per second.
// A negative byte delta means the remote counters reset, and a
// non-positive interval means the clock stepped; both yield 0, never a
// negative rate.
func rate(deltaBytes int64, elapsed time.Duration) float64 {
	if deltaBytes < 0 || elapsed <= 0 {
		return 0
	}
	return float64(deltaBytes) / elapsed.Seconds()
}

func percent(value, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return 100 * float64(value) / float64(limit)
}
