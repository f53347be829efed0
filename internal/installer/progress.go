package installer

import (
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// Progress is one step of an installation as reported to the caller
type Progress struct {
	Phase   domain.InstallPhase
	Percent int // 0-100, never decreasing within one installation
	Bytes   int64
	Total   int64 // -1 when the remote size is unknown
}

// Coarse percentages of each phase. Retrieval fills the span between
// percentRetrieving and percentVerifying when the size is known.
const (
	percentPreparing  = 0
	percentRetrieving = 5
	percentVerifying  = 92
	percentFinalizing = 96
	percentDone       = 100
)

// progressReporter throttles byte-level updates and keeps percentages monotonic.
// Phase changes always pass the throttle.
type progressReporter struct {
	mu      sync.Mutex
	emit    func(Progress)
	limiter *rate.Limiter
	phase   domain.InstallPhase
	percent int
}

func newProgressReporter(emit func(Progress), interval time.Duration) *progressReporter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressReporter{
		emit:    emit,
		limiter: rate.NewLimiter(limit, 1),
		percent: -1,
	}
}

// enter reports the start of a phase
func (r *progressReporter) enter(phase domain.InstallPhase, percent int) {
	r.report(Progress{Phase: phase, Percent: percent, Total: -1}, true)
}

// bytes reports retrieval progress
func (r *progressReporter) bytes(n, total int64) {
	percent := percentRetrieving
	if total > 0 {
		if n > total {
			n = total
		}
		percent += int(n * (percentVerifying - percentRetrieving) / total)
	}
	r.report(Progress{Phase: domain.PhaseRetrieving, Percent: percent, Bytes: n, Total: total}, false)
}

func (r *progressReporter) report(p Progress, force bool) {
	if r == nil || r.emit == nil {
		return
	}

	r.mu.Lock()
	if p.Percent < r.percent {
		p.Percent = r.percent
	}
	changed := p.Phase != r.phase
	if !force && !changed && (p.Percent == r.percent || !r.limiter.Allow()) {
		r.mu.Unlock()
		return
	}
	r.phase = p.Phase
	r.percent = p.Percent
	r.mu.Unlock()

	r.emit(p)
}

// progressWriter counts bytes written through it
type progressWriter struct {
	w        io.Writer
	written  int64
	total    int64
	reporter *progressReporter
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	pw.reporter.bytes(pw.written, pw.total)
	return n, err
}
