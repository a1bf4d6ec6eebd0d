package client

import (
	"io"
	"time"
)

// progressReader reports bytes handed to the transport. Reaching 100% flips
// the session into ServerProcessing: the body is fully sent but the server
// response, which can take minutes for a large batch, is still pending.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	emit  func(percent int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		percent := int(p.sent * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		p.emit(percent)
	}
	return n, err
}

// emitProgress coalesces updates to at most one per throttle interval and
// keeps the reported percentage monotonically non-decreasing. The 100% update
// is never suppressed since it drives the Uploading → ServerProcessing
// transition.
func (s *Session) emitProgress(percent int) {
	s.mu.Lock()
	if percent < s.lastPercent {
		percent = s.lastPercent
	}

	now := time.Now()
	throttled := percent < 100 && now.Sub(s.lastEmit) < s.throttle && s.lastEmit != (time.Time{})
	if !throttled {
		s.lastEmit = now
	}
	s.lastPercent = percent

	if percent == 100 && s.state == StateUploading {
		s.state = StateServerProcessing
	}
	state := s.state
	onProgress := s.onProgress
	s.mu.Unlock()

	if throttled || onProgress == nil {
		return
	}
	onProgress(percent, state)
}
