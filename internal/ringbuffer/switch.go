package ringbuffer

import (
	"sync"
	"sync/atomic"
)

// Switch is a one-way flag that turns every bounded wait into an immediate
// timeout. There is no way to reset it.
type Switch struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewSwitch returns a switch in blocking mode.
func NewSwitch() *Switch {
	return &Switch{done: make(chan struct{})}
}

// Set switches to non-blocking mode. It is idempotent and wakes all goroutines
// currently waiting on a buffer that uses this switch.
func (s *Switch) Set() {
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
	})
}

// IsSet reports whether non-blocking mode is active.
func (s *Switch) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel that is closed once the switch is set.
func (s *Switch) Done() <-chan struct{} {
	return s.done
}

var processSwitch = NewSwitch()

// DefaultSwitch returns the process-wide switch used by registries created
// without WithSwitch.
func DefaultSwitch() *Switch {
	return processSwitch
}

// SetNonblocking sets the process-wide switch.
func SetNonblocking() {
	processSwitch.Set()
	GetLogger().Info("ring buffers switched to non-blocking mode")
}
