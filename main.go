package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Meander-Cloud/go-reactor/ioctx"
	"github.com/Meander-Cloud/go-reactor/scheduler"
	"github.com/Meander-Cloud/go-reactor/timerq"
)

var (
	backendName string
	threads     int
	maxWait     time.Duration
	logDebug    bool
)

var flags = []cli.Flag{
	cli.StringFlag{
		Name:        "backend, b",
		Usage:       "timer scheduling backend, thread or integrated",
		EnvVar:      "REACTOR_BACKEND",
		Value:       scheduler.BackendThread.String(),
		Destination: &backendName,
	},
	cli.IntFlag{
		Name:        "threads, t",
		Usage:       "number of dispatch workers (default: 2 * NumCPU)",
		EnvVar:      "REACTOR_THREADS",
		Destination: &threads,
	},
	cli.DurationFlag{
		Name:        "max-wait, w",
		Usage:       "cap on any single scheduler wait",
		Value:       scheduler.DefaultMaxWait,
		Destination: &maxWait,
	},
	cli.BoolFlag{
		Name:        "debug, d",
		Usage:       "enable verbose logging",
		Destination: &logDebug,
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "go-reactor"
	app.Usage = "timer scheduling demo"
	app.Flags = flags
	app.Commands = []cli.Command{
		{
			Name:   "early-wake",
			Usage:  "park on a long deadline, then schedule sooner ones",
			Action: runEarlyWake,
		},
		{
			Name:   "cancel",
			Usage:  "cancel and move pending waits",
			Action: runCancel,
		},
		{
			Name:   "shutdown",
			Usage:  "shut down with waits still pending",
			Action: runShutdown,
		},
	}
	app.Action = func(ctx *cli.Context) error {
		for _, run := range []cli.ActionFunc{runEarlyWake, runCancel, runShutdown} {
			err := run(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	if logDebug {
		logConfig.Level.SetLevel(zap.DebugLevel)
	} else {
		logConfig.Level.SetLevel(zap.InfoLevel)
	}
	return zap.Must(logConfig.Build())
}

func newContext(prefix string) (*ioctx.Context, *zap.Logger, error) {
	backend, ok := scheduler.ParseBackend(backendName)
	if !ok {
		return nil, nil, errtrace.Wrap(fmt.Errorf("%w: %q", scheduler.ErrUnknownBackend, backendName))
	}

	log := buildLogger()
	c, err := ioctx.New(&ioctx.Options{
		Threads:   threads,
		Backend:   backend,
		MaxWait:   maxWait,
		LogPrefix: prefix,
		LogDebug:  logDebug,
		Log:       log,
	})
	if err != nil {
		return nil, nil, errtrace.Wrap(err)
	}
	return c, log.Named(prefix), nil
}

func runEarlyWake(_ *cli.Context) error {
	c, log, err := newContext("early-wake")
	if err != nil {
		return err
	}
	defer c.Shutdown()

	ts := scheduler.NewTimerService[time.Time](c.Timers(), timerq.SystemTraits{}, log)
	defer ts.Close()

	var wg sync.WaitGroup
	start := time.Now()
	wait := func(name string, after time.Duration) {
		wg.Add(1)
		t := ts.NewTimer()
		t.ExpiresAt(start.Add(after))
		t.AsyncWait(func(err error) {
			defer wg.Done()
			log.Info("fired", zap.String("timer", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		}, nil)
	}

	wait("C", 500*time.Millisecond)
	<-time.After(20 * time.Millisecond)
	wait("A", 100*time.Millisecond)
	wait("B", 50*time.Millisecond)

	wg.Wait()
	return nil
}

func runCancel(_ *cli.Context) error {
	c, log, err := newContext("cancel")
	if err != nil {
		return err
	}
	defer c.Shutdown()

	ts := scheduler.NewTimerService[time.Duration](c.Timers(), timerq.NewMonotonicTraits(), log)
	defer ts.Close()

	var wg sync.WaitGroup
	handler := func(name string) func(error) {
		wg.Add(1)
		return func(err error) {
			defer wg.Done()
			if errors.Is(err, timerq.ErrOperationAborted) {
				log.Info("cancelled", zap.String("wait", name))
				return
			}
			log.Info("fired", zap.String("wait", name))
		}
	}

	t1 := ts.NewTimer()
	t1.ExpiresAfter(time.Hour)
	for _, name := range []string{"t1.a", "t1.b", "t1.c"} {
		t1.AsyncWait(handler(name), nil)
	}
	log.Info("cancel one", zap.Int("cancelled", t1.CancelOne()))

	t2 := ts.NewTimer()
	t2.ExpiresAfter(100 * time.Millisecond)
	t2.AsyncWait(handler("t2.a"), nil)

	// t3 takes over t2's waits, they still fire at t2's expiry
	t3 := ts.NewTimer()
	t3.MoveFrom(t2)
	log.Info("moved", zap.Int("left_on_t2", t2.Cancel()))

	log.Info("cancel rest", zap.Int("cancelled", t1.Cancel()))

	ts.AfterFunc(50*time.Millisecond, func() {
		log.Info("after func selected")
	}, nil)

	wg.Wait()
	<-time.After(100 * time.Millisecond)
	return nil
}

func runShutdown(_ *cli.Context) error {
	c, log, err := newContext("shutdown")
	if err != nil {
		return err
	}

	wall := scheduler.NewTimerService[time.Time](c.Timers(), timerq.SystemTraits{}, log)
	steady := scheduler.NewTimerService[time.Duration](c.Timers(), timerq.NewMonotonicTraits(), log)

	release := func(name string) func() {
		return func() {
			log.Info("released", zap.String("wait", name))
		}
	}
	complete := func(name string) func(error) {
		return func(err error) {
			log.Warn("completed", zap.String("wait", name), zap.Error(err))
		}
	}

	w := wall.NewTimer()
	w.ExpiresAfter(time.Hour)
	w.AsyncWait(complete("wall.1"), release("wall.1"))
	w.AsyncWait(complete("wall.2"), release("wall.2"))

	s := steady.NewTimer()
	s.ExpiresAfter(time.Hour)
	s.AsyncWait(complete("steady.1"), release("steady.1"))

	log.Info("state before shutdown", zap.String("state", string(c.Timers().State())))
	c.Shutdown()
	log.Info("state after shutdown", zap.String("state", string(c.Timers().State())), zap.Int64("outstanding", c.Engine().Outstanding()))
	return nil
}
