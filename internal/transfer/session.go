package transfer

import "fmt"

// session holds the counters of one run. It is owned by the goroutine
// executing Run and passed down the walk by pointer.
type session struct {
	runID       string
	total       int
	processed   int
	failed      int
	every       int
	lastPercent int
	sinks       Sinks
}

func newSession(runID string, total, every int, sinks Sinks) *session {
	if total < 1 {
		total = 1
	}
	if every < 1 {
		every = 1
	}
	return &session{
		runID: runID,
		total: total,
		every: every,
		sinks: sinks,
	}
}

// percent is processed/total clamped to 0..100
func (s *session) percent() int {
	p := s.processed * 100 / s.total
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// emit sends a progress update that never goes below the last one sent
func (s *session) emit(status string) {
	p := s.percent()
	if p < s.lastPercent {
		p = s.lastPercent
	}
	s.lastPercent = p
	s.sinks.progress(p, status)
}

// fileDone records one attempted file. Failures are logged once, counted and
// never abort the run.
func (s *session) fileDone(localPath string, err error) {
	s.processed++
	if err != nil {
		s.failed++
		s.sinks.log(fmt.Sprintf("Error copying %s: %v", localPath, reason(err)))
	}
}

// tick emits periodic progress during directory traversal
func (s *session) tick() {
	if s.processed%s.every != 0 {
		return
	}
	s.emit("")
	s.sinks.log(fmt.Sprintf("Progress: %d/%d files copied", s.processed, s.total))
}

func (s *session) complete() {
	s.lastPercent = 100
	s.sinks.progress(100, "Backup completed")
}
