package memorypressure

import (
	"context"
	"runtime"
	runtimedebug "runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

type MemoryPressure struct {
	Interval time.Duration
	Log      logrus.FieldLogger
	// Limit returns the current soft memory limit. Defaults to the GOMEMLIMIT of the process.
	Limit func() int64
	// InUse returns the memory currently used by the process. Defaults to runtime.MemStats.
	InUse func() uint64
}

func currentLimit() int64 {
	return runtimedebug.SetMemoryLimit(-1)
}

func memInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc + m.StackSys + m.OtherSys
}

// OnMemoryPressure polls memory usage every Interval and calls f while usage is at or above the soft memory limit.
// It blocks until ctx is done.
func (mp *MemoryPressure) OnMemoryPressure(ctx context.Context, f func()) {
	if mp.Interval <= 0 {
		return
	}
	limit, inUse := mp.Limit, mp.InUse
	if limit == nil {
		limit = currentLimit
	}
	if inUse == nil {
		inUse = memInUse
	}

	ticker := time.NewTicker(mp.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			used, limitBytes := inUse(), limit()
			if limitBytes > 0 && used >= uint64(limitBytes) {
				mp.Log.WithFields(logrus.Fields{
					"mem_in_use": used,
					"mem_limit":  limitBytes,
				}).Info("memory pressure detected, executing callback")
				f()
			}
		}
	}
}
