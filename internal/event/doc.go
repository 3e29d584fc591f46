// Package event provides a synchronous pub-sub bus that decouples the
// population source, the coordinator, the reclaimer and the console front
// ends.
//
// # Event Categories
//
// Population:
//   - [PopulationJoinedEvent], [PopulationLeftEvent]
//
// Coordination:
//   - [PauseChangedEvent]: pause or resume was issued to managed resources
//   - [HoldChangedEvent]: a single hold was set or cleared
//
// Memory:
//   - [ReclaimCompletedEvent]: a reclamation attempt was measured
//   - [MemorySampledEvent]: the monitor took a sample
//
// Configuration:
//   - [ConfigReloadedEvent]
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called synchronously on the
// publishing goroutine; a panicking handler is recovered and reported
// without affecting other handlers.
//
// # Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypePopulationJoined, func(e event.Event) {
//	    joined := e.(event.PopulationJoinedEvent)
//	    fmt.Println(joined.Name, joined.Count)
//	})
//	bus.Publish(event.NewPopulationJoinedEvent("alex", 3))
package event
