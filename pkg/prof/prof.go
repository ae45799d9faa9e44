package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"go.uber.org/multierr"
)

// Profiling errors.
var (
	// ErrActive indicates a session is already running.
	ErrActive = errors.New("profiling session already active")

	// ErrStopped indicates the session was already stopped.
	ErrStopped = errors.New("profiling session stopped")
)

// Profile names a runtime/pprof profile.
type Profile string

// Snapshot profiles written when a session stops.
const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// String returns the profile name.
func (p Profile) String() string {
	return string(p)
}

// Options selects the profiles of a session. Empty paths are skipped.
type Options struct {
	CPU       string
	Heap      string
	Goroutine string
	Block     string
	Mutex     string

	// Rate is the mutex profile fraction and block profile rate used while
	// the session runs. Zero records every event.
	Rate int
}

// Enabled reports whether any output is requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Heap != "" || o.Goroutine != "" || o.Block != "" || o.Mutex != ""
}

type snapshot struct {
	profile Profile
	path    string
}

func (o Options) snapshots() []snapshot {
	var out []snapshot
	for _, s := range []snapshot{
		{ProfileHeap, o.Heap},
		{ProfileGoroutine, o.Goroutine},
		{ProfileBlock, o.Block},
		{ProfileMutex, o.Mutex},
	} {
		if s.path != "" {
			out = append(out, s)
		}
	}
	return out
}

var (
	activeMutex sync.Mutex
	active      bool
)

// Session is a running profiling session.
type Session struct {
	opts    Options
	cpuFile *os.File

	prevMutex int
	mu        sync.Mutex
	stopped   bool
}

// Start begins a session. It returns [ErrActive] while another session runs.
func Start(opts Options) (*Session, error) {
	activeMutex.Lock()
	defer activeMutex.Unlock()

	if active {
		return nil, ErrActive
	}

	s := &Session{opts: opts}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return nil, multierr.Append(fmt.Errorf("cpu profile: %w", err), f.Close())
		}
		s.cpuFile = f
	}

	rate := max(opts.Rate, 1)
	if opts.Mutex != "" {
		s.prevMutex = runtime.SetMutexProfileFraction(rate)
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(rate)
	}

	active = true
	return s, nil
}

// Stop ends the session, writing every requested snapshot. All outputs are
// attempted; their errors are combined.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.stopped = true

	var err error
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		err = multierr.Append(err, s.cpuFile.Close())
	}
	for _, snap := range s.opts.snapshots() {
		err = multierr.Append(err, writeFile(snap.profile, snap.path))
	}

	if s.opts.Mutex != "" {
		runtime.SetMutexProfileFraction(s.prevMutex)
	}
	if s.opts.Block != "" {
		runtime.SetBlockProfileRate(0)
	}

	activeMutex.Lock()
	active = false
	activeMutex.Unlock()
	return err
}

func writeFile(profile Profile, path string) (err error) {
	p := pprof.Lookup(string(profile))
	if p == nil {
		return fmt.Errorf("unknown profile %q", profile)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	if err := p.WriteTo(f, 0); err != nil {
		return fmt.Errorf("%s profile: %w", profile, err)
	}
	return nil
}
