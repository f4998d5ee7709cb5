// Package gameboot provides a staged startup sequencer for client applications: units of work are queued under
// numbered stages, stages run in ascending order, and completion callbacks fire once everything is ready.
//
// Quick Start
//
//	host := gameboot.NewHost()
//	host.CallOnComplete(func() { fmt.Println("ready") }) // safe before any Loader exists
//
//	loader := gameboot.New(host, gameboot.WithSceneIndex(1), gameboot.WithSceneCount(4))
//	live, _ := loader.Activate(ctx)
//	if !live {
//		return // another Loader already owns this Host
//	}
//	loader.Enqueue("save-data", gameboot.Step(loadSave), 1)
//	loader.Enqueue("ui", gameboot.Go(buildUI), 1)
//	loader.Enqueue("mods", gameboot.Steps(loadModA, loadModB), 2)
//	_ = loader.Run(ctx)
//
//	// Your application is now ready!
//
// Units are polled on the goroutine calling Run, once per tick, in the order they were enqueued. A stage is complete
// when all of its units report done; only then does the next populated stage begin. A Unit that never reports done
// stalls the sequence; give it a deadline of its own if that matters.
//
// Callbacks registered through Host.CallOnComplete before a Loader is live are buffered and run as soon as a Loader
// activates. Callbacks registered with a live Loader run when its last stage completes, in registration order.
// Callbacks registered after completion run immediately.
package gameboot
