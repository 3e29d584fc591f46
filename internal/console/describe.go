package console

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/memory"
)

// Describe renders an event as a short line. Per-cycle samples are not
// described; the second result is false for them.
func Describe(e event.Event) (string, bool) {
	stamp := e.Timestamp().Format("15:04:05")
	var text string
	switch ev := e.(type) {
	case event.PauseChangedEvent:
		verb := "resumed"
		if ev.Paused {
			verb = "paused"
		}
		text = fmt.Sprintf("%s (%s): %d applied, %d no-op", verb, ev.Reason, ev.Applied, ev.NoOp)
	case event.HoldChangedEvent:
		state := "cleared"
		if ev.Active {
			state = "set"
		}
		text = fmt.Sprintf("%s hold %s", ev.Hold, state)
	case event.PopulationJoinedEvent:
		text = fmt.Sprintf("%s joined (%d online)", ev.Name, ev.Count)
	case event.PopulationLeftEvent:
		text = fmt.Sprintf("%s left (%d online)", ev.Name, ev.Count)
	case event.ReclaimCompletedEvent:
		text = fmt.Sprintf("reclaimed for %s: %s used, %s released",
			ev.Reason, signedMiB(ev.FreedUsed), memory.Bytes(max(ev.Released, 0)).Humanized())
		if ev.Note != "" {
			text += " (" + ev.Note + ")"
		}
	case event.ConfigReloadedEvent:
		text = "configuration reloaded (" + ev.Source + ")"
		if ev.Err != "" {
			text = "configuration reload rejected: " + ev.Err
		}
	case event.MemorySampledEvent:
		return "", false
	default:
		text = strings.ReplaceAll(e.EventType(), ".", " ")
	}
	return stamp + " " + text, true
}
