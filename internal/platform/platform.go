// Package platform applies best-effort real-time scheduling hardening to
// the scan thread: locking memory against paging and raising scheduling
// priority to SCHED_FIFO. Both reduce scan-cycle jitter; neither is
// required for correctness, so failures here are logged, never fatal —
// the same posture the teacher's startup sequence takes toward its own
// capability-dropping step.
package platform

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lactplc/skidcore/internal/config"
)

// Harden applies cfg's real-time settings to the calling OS thread. Call
// this from the goroutine that will run the scan loop, after
// runtime.LockOSThread, since SCHED_FIFO priority is a per-thread
// attribute on Linux.
func Harden(cfg config.PlatformConfig, log *zap.Logger) {
	if !cfg.Realtime {
		log.Info("platform: real-time hardening disabled")
		return
	}

	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.Warn("platform: mlockall failed", zap.Error(err))
	} else {
		log.Info("platform: memory locked against paging")
	}

	if err := setScanThreadPriority(cfg.Priority); err != nil {
		log.Warn("platform: sched_setscheduler failed", zap.Error(err))
	} else {
		log.Info("platform: scan thread set to SCHED_FIFO", zap.Int("priority", cfg.Priority))
	}
}

func setScanThreadPriority(priority int) error {
	if priority < 1 || priority > 99 {
		return fmt.Errorf("platform: priority %d out of range [1, 99]", priority)
	}
	sp := &unix.SchedParam{Priority: int32(priority)}
	return unix.SchedSetscheduler(unix.Gettid(), unix.SCHED_FIFO, sp)
}
