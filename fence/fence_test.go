package fence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketLifecycle(t *testing.T) {
	t.Parallel()

	var g Guard
	ticket := g.Enter()
	assert.True(t, ticket.Valid())

	g.Bump()
	assert.False(t, ticket.Valid(), "ticket from an older generation must be stale")
	assert.True(t, g.Enter().Valid())
}

func TestCancelAndRearm(t *testing.T) {
	t.Parallel()

	var g Guard
	ticket := g.Enter()
	g.Cancel()
	assert.False(t, ticket.Valid())
	assert.False(t, g.Enter().Valid(), "tickets issued while cancelled are dead on arrival")

	g.Bump()
	assert.False(t, ticket.Valid())
	assert.True(t, g.Enter().Valid())
}

func TestDo(t *testing.T) {
	t.Parallel()

	var g Guard
	ran := 0
	ticket := g.Enter()
	assert.True(t, ticket.Do(func() { ran++ }))
	assert.Equal(t, 1, ran)

	g.Bump()
	assert.False(t, ticket.Do(func() { ran++ }))
	assert.Equal(t, 1, ran)

	assert.False(t, Ticket{}.Do(func() { ran++ }), "zero ticket never runs")
}

func TestDoExcludesBump(t *testing.T) {
	t.Parallel()

	var g Guard
	var wg sync.WaitGroup
	applied := 0
	for i := 0; i < 100; i++ {
		ticket := g.Enter()
		wg.Add(2)
		go func() {
			defer wg.Done()
			ticket.Do(func() { applied++ })
		}()
		go func() {
			defer wg.Done()
			g.Bump()
		}()
		wg.Wait()
	}
	assert.LessOrEqual(t, applied, 100)
}

func TestGeneration(t *testing.T) {
	t.Parallel()

	var g Guard
	assert.EqualValues(t, 0, g.Generation())
	g.Bump()
	g.Bump()
	assert.EqualValues(t, 2, g.Generation())
}
