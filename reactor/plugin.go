/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor

// Plugin is a per-worker extension point ticked once per reactor loop
// iteration, after timers fire and messages drain (spec §2 "then call
// on_tick() for each plugin", §4.8). A Worker carries zero or more; none
// are required for the core to function.
type Plugin interface {
	// OnInit runs once, before the worker's first loop iteration.
	OnInit(workerIndex uint32)
	// OnTick runs once per loop iteration.
	OnTick()
	// OnStop runs once, as the worker is shutting down.
	OnStop()
}

// AddPlugin registers p to be ticked by this worker's Run loop. It must be
// called before Run starts; a worker's plugin list is not safe to mutate
// concurrently with its own goroutine.
func (w *Worker) AddPlugin(p Plugin) {
	w.plugins = append(w.plugins, p)
}
