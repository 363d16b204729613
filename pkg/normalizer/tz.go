package normalizer

import (
	"log/slog"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// ApplyTimezoneCorrection shifts the event timestamp from the system's local
// time to UTC once the owning system is known. Offsets are computed at the
// event instant, so DST transitions are handled. Only the parsed timestamp
// moves; received-at stays at wall clock.
func ApplyTimezoneCorrection(ev *models.Event, sys models.MonitoredSystem, collectorTZ *time.Location) {
	if collectorTZ == nil {
		collectorTZ = time.UTC
	}

	if sys.TimezoneName != "" {
		loc, err := time.LoadLocation(sys.TimezoneName)
		if err != nil {
			slog.Warn("Unknown system timezone, skipping correction",
				"system_id", sys.ID, "timezone", sys.TimezoneName)
			return
		}
		_, sysOffset := ev.Timestamp.In(loc).Zone()
		_, collectorOffset := ev.Timestamp.In(collectorTZ).Zone()
		delta := sysOffset - collectorOffset
		ev.Timestamp = ev.Timestamp.Add(-time.Duration(delta) * time.Second)
		return
	}

	if sys.TzOffsetMinutes != 0 {
		ev.Timestamp = ev.Timestamp.Add(-time.Duration(sys.TzOffsetMinutes) * time.Minute)
	}
}
