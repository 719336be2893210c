package cli

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tinysched/internal/job"
	"tinysched/internal/sched"
)

func newRunCmd() *cobra.Command {
	var (
		flagMode      string
		flagDuration  time.Duration
		flagCSV       string
		flagEmergency time.Duration
		flagReport    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo workload",
		Long: "Registers the sensor/process/actuator/display task set and the blink/heartbeat/" +
			"status/one-shot timer set, then drives the scheduler until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sched.Load(flagConfig)
			if flagMode != "" {
				cfg.Mode = flagMode
			}
			if flagCSV != "" {
				cfg.CSVLog = flagCSV
			}

			s := sched.New(cfg)
			s.SetLogger(logger)
			if cfg.CSVLog != "" {
				if err := s.EnableCSVLogging(cfg.CSVLog); err != nil {
					return err
				}
			}

			emergencyID, err := registerWorkload(s)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if flagDuration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flagDuration)
				defer cancel()
			}

			logger.Info().
				Str("mode", s.Mode().String()).
				Int("tick_ms", cfg.TickMS).
				Int("slice_ticks", cfg.SliceTicks).
				Msg("scheduler starting")

			go reportLoop(ctx, s, flagReport)
			go emergencyLoop(ctx, s, emergencyID, flagEmergency)

			if err := s.Run(ctx); err != nil {
				return err
			}
			printReport(s)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagMode, "mode", "", "Override dispatch mode (preemptive, cooperative)")
	cmd.Flags().DurationVar(&flagDuration, "duration", 0, "Stop after this long (0 = run until interrupted)")
	cmd.Flags().StringVar(&flagCSV, "csv", "", "Write the event trace to this CSV file")
	cmd.Flags().DurationVar(&flagEmergency, "emergency-every", 3*time.Second, "Simulated button press interval (0 disables)")
	cmd.Flags().DurationVar(&flagReport, "report-every", 5*time.Second, "Statistics print interval")

	return cmd
}

// registerWorkload wires the demo task and timer sets and returns the id of
// the emergency handler task.
func registerWorkload(s *sched.Scheduler) (sched.TaskID, error) {
	type taskSpec struct {
		name     string
		priority int
		period   sched.Tick
		work     int
	}
	// the classic four: frequent light sensor reads, heavy processing,
	// medium actuation, slow display refresh
	for _, t := range []taskSpec{
		{"sensor", 3, 4, 1},
		{"process", 2, 12, 4},
		{"actuator", 2, 8, 2},
		{"display", 1, 16, 1},
	} {
		if _, err := s.RegisterTask(t.name, t.priority, job.FixedWork(t.work),
			sched.WithPeriod(t.period), sched.WithDeadline(t.period)); err != nil {
			return 0, err
		}
	}

	emergencyID, err := s.RegisterTask("emergency", sched.MaxPriority, job.Blocking())
	if err != nil {
		return 0, err
	}

	blinkID, err := s.RegisterTimer("blink", 2, false, func(ops sched.TimerOps) {
		logger.Debug().Int64("tick", int64(ops.Now())).Msg("blink")
	})
	if err != nil {
		return 0, err
	}
	// heartbeat occasionally retunes the blink period, the lab's
	// xTimerChangePeriod demo
	heartbeatID, err := s.RegisterTimer("heartbeat", 8, false, func(ops sched.TimerOps) {
		if rand.Intn(4) == 0 {
			p := sched.Tick(1 + rand.Intn(4))
			logger.Info().Int64("new_period", int64(p)).Msg("heartbeat retunes blink")
			ops.ChangeTimerPeriod(blinkID, p)
		}
	})
	if err != nil {
		return 0, err
	}
	oneShotID, err := s.RegisterTimer("oneshot", 12, true, func(ops sched.TimerOps) {
		logger.Info().Int64("tick", int64(ops.Now())).Msg("one-shot fired")
	})
	if err != nil {
		return 0, err
	}

	for _, id := range []sched.TimerID{blinkID, heartbeatID, oneShotID} {
		if err := s.StartTimer(id); err != nil {
			return 0, err
		}
	}
	return emergencyID, nil
}

// reportLoop prints aggregate statistics periodically, like the labs' round
// statistics block.
func reportLoop(ctx context.Context, s *sched.Scheduler, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			printReport(s)
		}
	}
}

// emergencyLoop simulates the lab3 button press.
func emergencyLoop(ctx context.Context, s *sched.Scheduler, id sched.TaskID, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.SignalEmergency(id); err != nil {
				logger.Warn().Err(err).Msg("emergency signal dropped")
			}
		}
	}
}

func printReport(s *sched.Scheduler) {
	r := s.Report()
	lat, seen := s.LastEmergencyLatency()

	ev := logger.Info().
		Str("utilization", strconv.FormatFloat(r.UtilizationPct, 'f', 1, 64)+"%").
		Str("switches", humanize.Comma(r.Switches)).
		Str("elapsed_ticks", humanize.Comma(int64(r.ElapsedTicks))).
		Str("idle_ticks", humanize.Comma(r.IdleTicks)).
		Float64("avg_overhead_us", r.AvgOverheadUS).
		Int("deadline_misses", len(r.DeadlineMisses))
	if seen {
		ev = ev.Int64("emergency_latency_ticks", int64(lat))
	}
	ev.Msg("statistics")
}
