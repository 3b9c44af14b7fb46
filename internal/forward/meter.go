package forward

import (
	"io"

	"gateport/internal/session"
)

// meterReader feeds the session counters on every successful read, so byte
// totals and the activity timestamp move while a transfer is still running.
type meterReader struct {
	r     io.Reader
	stats *session.Stats
}

func newMeterReader(r io.Reader, stats *session.Stats) *meterReader {
	return &meterReader{r: r, stats: stats}
}

func (m *meterReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 && m.stats != nil {
		m.stats.AddBytes(int64(n))
	}
	return n, err
}
