package population

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Iron-Ham/genpause/internal/event"
)

func TestRoster_JoinLeave(t *testing.T) {
	bus := event.NewBus()
	r := NewRoster(bus)

	var seen []string
	bus.Subscribe(event.TypePopulationJoined, func(e event.Event) {
		j := e.(event.PopulationJoinedEvent)
		assert.Equal(t, j.Count, r.Count(), "count updated before publish")
		seen = append(seen, "+"+j.Name)
	})
	bus.Subscribe(event.TypePopulationLeft, func(e event.Event) {
		seen = append(seen, "-"+e.(event.PopulationLeftEvent).Name)
	})

	assert.True(t, r.Join("bo"))
	assert.True(t, r.Join("alex"))
	assert.False(t, r.Join("alex"), "duplicate join")
	assert.False(t, r.Join("  "), "blank name")
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"alex", "bo"}, r.Members())

	assert.True(t, r.Leave("alex"))
	assert.False(t, r.Leave("alex"), "already left")
	assert.Equal(t, 1, r.Count())

	assert.Equal(t, []string{"+bo", "+alex", "-alex"}, seen)
}

func TestRoster_NilBus(t *testing.T) {
	r := NewRoster(nil)
	assert.True(t, r.Join("x"))
	assert.True(t, r.Leave("x"))
	assert.Zero(t, r.Count())
}

func TestSourceFunc(t *testing.T) {
	var s Source = SourceFunc(func() int { return 7 })
	assert.Equal(t, 7, s.Count())
}
