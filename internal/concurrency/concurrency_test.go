package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestFifoOrderPerProducer(t *testing.T) {
	const producers, perProducer = 8, 500
	f := NewFifo[[2]int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				f.Push([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	require.Equal(t, producers*perProducer, f.Len())
	next := make([]int, producers)
	for _, item := range f.PopAll() {
		require.Equal(t, next[item[0]], item[1])
		next[item[0]]++
	}
	for _, n := range next {
		require.Equal(t, perProducer, n)
	}
	_, ok := f.Pop()
	require.False(t, ok)
}

func TestFifoClear(t *testing.T) {
	f := NewFifo[string]()
	f.Push("a")
	f.Push("b")
	require.Equal(t, 2, f.Clear())
	require.Zero(t, f.Len())
	f.Push("c")
	v, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, "c", v)
}

func TestLockFreeQueueBounded(t *testing.T) {
	q := NewLockFreeQueue[int](3)
	require.Equal(t, 4, q.Cap())
	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}
	require.False(t, q.Enqueue(99))

	var got []int
	require.Equal(t, 4, q.Drain(func(v int) { got = append(got, v) }))
	require.Equal(t, []int{0, 1, 2, 3}, got)
	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestLockFreeQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 4, 1000
	q := NewLockFreeQueue[int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.Enqueue(1) {
				}
			}
		}()
	}
	wg.Wait()

	sum := 0
	q.Drain(func(v int) { sum += v })
	require.Equal(t, producers*perProducer, sum)
	require.Zero(t, q.Len())
}

func TestStopwatch(t *testing.T) {
	now := time.Unix(100, 0)
	sw := Stopwatch{now: func() time.Time { return now }}

	require.False(t, sw.Running())
	require.False(t, sw.Exceeded(0))

	sw.Start()
	now = now.Add(50 * time.Millisecond)
	require.Equal(t, 50*time.Millisecond, sw.Elapsed())
	require.False(t, sw.Exceeded(50*time.Millisecond))
	now = now.Add(time.Millisecond)
	require.True(t, sw.Exceeded(50*time.Millisecond))

	sw.Reset()
	require.False(t, sw.Running())
	require.Zero(t, sw.Elapsed())
	require.False(t, sw.Exceeded(0))
}

func TestEventLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ticks atomic.Int64
	el := NewEventLoop(func() { ticks.Add(1) }, time.Millisecond)
	require.True(t, el.Start())
	require.False(t, el.Start())
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, time.Millisecond)

	el.Stop()
	require.False(t, el.Running())
	after := ticks.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, after, ticks.Load())
	el.Stop()
}

func TestEventLoopStopBeforeStart(t *testing.T) {
	el := NewEventLoop(func() {}, 0)
	el.Stop()
	require.False(t, el.Running())
}
