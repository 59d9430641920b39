package socket

import (
	"sync"

	errs "echosock/internal/errors"
)

// netSubsystem is the process-wide networking state.  Every OPEN handle
// holds one reference; the platform startup hook runs when the count
// leaves zero and the cleanup hook when it returns to zero.
type netSubsystem struct {
	mu      sync.Mutex
	refs    int
	startup func() error
	cleanup func()
}

var subsystem = &netSubsystem{
	startup: platformStartup,
	cleanup: platformCleanup,
}

func (s *netSubsystem) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		if err := s.startup(); err != nil {
			return errs.Resource("startup", "", err)
		}
	}
	s.refs++
	return nil
}

func (s *netSubsystem) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.cleanup()
	}
}

// Refs returns the number of OPEN handles in the process.
func Refs() int {
	subsystem.mu.Lock()
	defer subsystem.mu.Unlock()
	return subsystem.refs
}
