package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	evloop "github.com/xtaci/evloop"
)

var rendezvousCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "Run one writer and one reader over an unbuffered channel",
	RunE:  withLoop(runRendezvous),
}

var sleepOrderCmd = &cobra.Command{
	Use:   "sleep-order",
	Short: "Schedule three fibers sleeping for different durations and log wake order",
	RunE:  withLoop(runSleepOrdering),
}

var selectFairnessCmd = &cobra.Command{
	Use:   "select-fairness",
	Short: "Select over two channels that are both ready and log which clause fires",
	RunE:  withLoop(runSelectFairness),
}

// withLoop builds the logger and Loop shared by every scenario subcommand
// and tears the Loop down afterward, so each scenario function only has
// to worry about fibers and channels.
func withLoop(scenario func(loop *evloop.Loop, logger *logrus.Logger)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger, err := configureLogger(cmd)
		if err != nil {
			return err
		}
		loop, err := evloop.NewLoop(evloop.WithLogger(logger))
		if err != nil {
			return err
		}
		defer loop.Close()
		scenario(loop, logger)
		return nil
	}
}

// runRendezvous drives one writer and one reader over an unbuffered
// channel: the reader is scheduled first and blocks on take until the
// writer hands it the value.
func runRendezvous(loop *evloop.Loop, logger *logrus.Logger) {
	ch := loop.Chan(0)

	var writer *scriptedFiber
	writer = newScriptedFiber(func(yield func() (interface{}, evloop.Signal)) (interface{}, evloop.Signal) {
		if loop.Give(writer, ch, "hello from the writer") {
			yield()
		}
		logger.Info("rendezvous: writer done")
		return nil, evloop.SignalOK
	})

	var reader *scriptedFiber
	reader = newScriptedFiber(func(yield func() (interface{}, evloop.Signal)) (interface{}, evloop.Signal) {
		v, ok := loop.Take(reader, ch)
		if !ok {
			v, _ = yield()
		}
		logger.WithField("value", v).Info("rendezvous: reader received")
		return v, evloop.SignalOK
	})

	loop.Schedule(reader, nil)
	loop.Schedule(writer, nil)
	loop.Run()
}

// runSleepOrdering schedules three fibers sleeping for different
// durations in deliberately scrambled order and logs their wake order.
func runSleepOrdering(loop *evloop.Loop, logger *logrus.Logger) {
	spawn := func(name string, seconds float64) *scriptedFiber {
		var f *scriptedFiber
		f = newScriptedFiber(func(yield func() (interface{}, evloop.Signal)) (interface{}, evloop.Signal) {
			loop.Sleep(f, seconds)
			yield()
			logger.WithField("fiber", name).Info("sleep: woke up")
			return nil, evloop.SignalOK
		})
		return f
	}

	third := spawn("third", 0.03)
	first := spawn("first", 0.01)
	second := spawn("second", 0.02)

	loop.Schedule(third, nil)
	loop.Schedule(first, nil)
	loop.Schedule(second, nil)
	loop.Run()
}

// runSelectFairness has two channels ready at once and a single selecting
// fiber, showing that Select picks whichever clause is listed first
// among the ones that can complete immediately.
func runSelectFairness(loop *evloop.Loop, logger *logrus.Logger) {
	chA := loop.Chan(1)
	chB := loop.Chan(1)

	var seed *scriptedFiber
	seed = newScriptedFiber(func(yield func() (interface{}, evloop.Signal)) (interface{}, evloop.Signal) {
		loop.Give(seed, chA, "from A")
		loop.Give(seed, chB, "from B")
		return nil, evloop.SignalOK
	})
	loop.Schedule(seed, nil)
	loop.Run()

	var selector *scriptedFiber
	selector = newScriptedFiber(func(yield func() (interface{}, evloop.Signal)) (interface{}, evloop.Signal) {
		result, ok := loop.Select(selector, []evloop.Clause{evloop.Read(chA), evloop.Read(chB)})
		if !ok {
			result, _ = yield()
		}
		logger.WithField("result", result).Info("select: clause fired")
		return result, evloop.SignalOK
	})
	loop.Schedule(selector, nil)
	loop.Run()
}
