// Package loadtest ramps simultaneous login sessions against a target and
// finds the concurrency at which the login flow starts to degrade.
//
// # Overview
//
// A run executes levels 1, 2, 3, ... up to the configured maximum. Level k
// starts k sessions at once, waits for every one of them to settle and
// aggregates the outcomes into a LevelResult. Levels never overlap.
//
// After each level the stopping Policy decides whether to continue:
//
//   - a level with zero successful sessions ends the run immediately
//   - FailureThreshold consecutive levels below PoorRate end the run
//
// When the ramp is over the Detector scans the recorded levels once and
// reports the CriticalPoint, the last level before behaviour degraded.
//
// # Quick Start
//
//	cfg := loadtest.DefaultRunConfig()
//	cfg.MaxConcurrency = 20
//
//	driver := loadtest.DriverFunc(func(ctx context.Context, id int) (loadtest.Outcome, error) {
//	    ok, err := login(ctx, id)
//	    return loadtest.Outcome{Success: ok}, err
//	})
//
//	orc, err := loadtest.NewOrchestrator(cfg, loadtest.StaticFactory(driver), logger)
//	if err != nil {
//	    return err
//	}
//	run, err := orc.Run(ctx)
//
// # Drivers
//
// The package does not know how a login is performed. A Driver performs one
// session; a DriverFactory hands out the driver for a level, which lets a
// browser-backed implementation start one browser per level. Drivers that
// implement io.Closer are closed once their level has settled.
//
// Drivers report failures either as a negative Outcome with a Hint, as an
// error, or as a *SessionError carrying an explicit ErrorKind. Everything
// else is classified by keyword (see DefaultClassifier).
//
// # Timeouts and cancellation
//
// Each session is bounded by RunConfig.SessionTimeout. The Recorder stops
// waiting at the deadline even if the driver ignores its context, so a stuck
// session cannot hold up its level. Cancelling the run context stops the
// ramp between levels; a level that has already started runs to completion.
package loadtest
