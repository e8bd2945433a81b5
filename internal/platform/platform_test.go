package platform

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/lactplc/skidcore/internal/config"
)

func TestHardenNoOpWhenRealtimeDisabled(t *testing.T) {
	log := zaptest.NewLogger(t)
	// Realtime=false must never touch mlockall/sched_setscheduler, so this
	// must not panic or require elevated privileges to run.
	Harden(config.PlatformConfig{Realtime: false, Priority: 80}, log)
}

func TestSetScanThreadPriorityRejectsOutOfRange(t *testing.T) {
	if err := setScanThreadPriority(0); err == nil {
		t.Fatalf("expected an error for priority below 1")
	}
	if err := setScanThreadPriority(100); err == nil {
		t.Fatalf("expected an error for priority above 99")
	}
}
