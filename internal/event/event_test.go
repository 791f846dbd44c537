package event

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	producer int
	seq      int
}

func (testEvent) Topic() string { return "test" }

func TestBus_PreservesPerProducerOrder(t *testing.T) {
	b := NewBus()

	const producers, perProducer = 4, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Emit(testEvent{producer: p, seq: i})
			}
		}(p)
	}

	go func() {
		wg.Wait()
		b.Close()
	}()

	last := make(map[int]int)
	for p := 0; p < producers; p++ {
		last[p] = -1
	}
	count := 0
	for e := range b.C() {
		te := e.(testEvent)
		require.Equal(t, last[te.producer]+1, te.seq, "producer "+strconv.Itoa(te.producer))
		last[te.producer] = te.seq
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}

func TestBus_DropsAfterClose(t *testing.T) {
	b := NewBus()
	b.Emit(testEvent{seq: 1})
	b.Close()
	b.Emit(testEvent{seq: 2})
	b.Close()

	var got []Event
	for e := range b.C() {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].(testEvent).seq)
}

func TestSinkFunc(t *testing.T) {
	var got []Event
	s := SinkFunc(func(e Event) { got = append(got, e) })
	s.Emit(testEvent{seq: 7})
	Discard.Emit(testEvent{seq: 8})
	require.Len(t, got, 1)
}
