// Package procs sizes the parallel cipher engine's thread pool to the
// container-aware CPU quota rather than the host's raw core count.
package procs

import (
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
)

// Set calls GOMAXPROCS(runtime-detected-cgroup-quota) once per process,
// logging the outcome through log. Safe to call more than once.
func Set(log *zerolog.Logger) {
	_, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug().Msgf(format, args...)
	}))
	if err != nil {
		log.Warn().Err(err).Msg("failed to adjust GOMAXPROCS to cgroup CPU quota")
	}
}
