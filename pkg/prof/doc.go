// Package prof captures runtime profiles around a workload.
//
// A [Session] covers one run: CPU samples stream to a file from [Start]
// until [Session.Stop], and the snapshot profiles named in [Options] are
// written when it stops.
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Mutex: "mutex.prof"})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Mutex and block profiling are enabled for the life of the session when
// their outputs are requested, which makes them suitable for measuring
// contention on the host lock under concurrent submitters.
//
// Only one session may run at a time; a second [Start] fails with
// [ErrActive].
package prof
