package sched

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// csvLog appends one row per status event, mirroring the serial trace the
// firmware labs print.
type csvLog struct {
	f *os.File
	w *csv.Writer
}

func newCSVLog(path string) (*csvLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"timestamp", "tick", "event", "task_id", "timer_id", "latency", "overrun", "ran_ticks"})
	w.Flush()
	return &csvLog{f: f, w: w}, nil
}

func (c *csvLog) write(ev StatusEvent) {
	c.w.Write([]string{
		ev.Time.Format(time.RFC3339Nano),
		strconv.FormatInt(int64(ev.Tick), 10),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.Task), 10),
		strconv.FormatUint(uint64(ev.Timer), 10),
		strconv.FormatInt(int64(ev.Latency), 10),
		strconv.FormatInt(int64(ev.Overrun), 10),
		strconv.FormatInt(ev.RanTicks, 10),
	})
	c.w.Flush()
}

func (c *csvLog) close() {
	c.w.Flush()
	c.f.Close()
}
