//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// UncheckedCommit reports commits whose error is dropped. A rejected commit
// leaves the pointers untouched, so the next acquire returns the same region.
func UncheckedCommit(m dsl.Matcher) {
	m.Match(
		`{ $*_; $b.CommitWrite($*_); $*_ }`,
		`{ $*_; $b.CommitRead($*_); $*_ }`,
		`_ = $b.CommitWrite($*_)`,
		`_ = $b.CommitRead($*_)`,
	).
		Where(m["b"].Type.Is("*ringbuffer.Buffer") || m["b"].Type.Is("*ringbuffer.Registry")).
		At(m["b"]).
		Report("check the error returned by commit on $b")
}

// ProcessWideSwitch keeps SetNonblocking in the signal handler. Everything
// else gets a private switch through ringbuffer.WithSwitch.
func ProcessWideSwitch(m dsl.Matcher) {
	m.Match(`ringbuffer.SetNonblocking()`, `ringbuffer.DefaultSwitch().Set()`).
		Where(!m.File().PkgPath.Matches(`/cmd/run$`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("only the run command may flip the process-wide switch, use ringbuffer.NewSwitch() with WithSwitch")
}

// SleepPolling reports sleep loops in the pipeline. Waiting belongs in the
// acquire calls, which honor the switch and the context.
func SleepPolling(m dsl.Matcher) {
	m.Match(`for { $*_; time.Sleep($_); $*_ }`, `for $_ { $*_; time.Sleep($_); $*_ }`).
		Where(m.File().PkgPath.Matches(`internal/(acquisition|forward)$`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("wait with AcquireWriteContext/AcquireReadContext or a ticker instead of time.Sleep")
}

// RegionSlice reports slicing the backing array with raw region offsets.
func RegionSlice(m dsl.Matcher) {
	m.Match(`$s[$r.Offset:$_]`, `$s[$r.Offset:]`).
		Where(m["r"].Type.Is("ringbuffer.Region") && !m.File().PkgPath.Matches(`internal/ringbuffer$`)).
		Report("use Buffer.Bytes($r) to map a region")
}
