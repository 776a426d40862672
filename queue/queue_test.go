package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_UnknownKind(t *testing.T) {
	r := NewRouter(logging.Discard())

	err := r.Route(context.Background(), Task{Kind: "nope", ID: "1"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestLocalDispatcher_RunsTasks(t *testing.T) {
	r := NewRouter(logging.Discard())
	var (
		mu  sync.Mutex
		got []string
	)
	r.Handle(KindTryOnGenerate, func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, id)
		return nil
	})

	d := NewLocalDispatcher(r, 2, logging.Discard())
	d.Start(context.Background())

	require.NoError(t, d.Dispatch(context.Background(), Task{Kind: KindTryOnGenerate, ID: "a"}))
	require.NoError(t, d.Dispatch(context.Background(), Task{Kind: KindTryOnGenerate, ID: "b"}))
	require.NoError(t, d.Close())

	assert.ElementsMatch(t, []string{"a", "b"}, got)
	assert.ErrorIs(t, d.Dispatch(context.Background(), Task{Kind: KindTryOnGenerate, ID: "c"}), ErrClosed)
}

func TestLocalDispatcher_ReturnsBeforeTaskFinishes(t *testing.T) {
	r := NewRouter(logging.Discard())
	release := make(chan struct{})
	r.Handle(KindWorkflowRun, func(context.Context, string) error {
		<-release
		return nil
	})

	d := NewLocalDispatcher(r, 1, logging.Discard())
	d.Start(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Dispatch(context.Background(), Task{Kind: KindWorkflowRun, ID: "wf"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on the task")
	}
	close(release)
	require.NoError(t, d.Close())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaDispatcher_PublishesTask(t *testing.T) {
	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w, log: logging.Discard()}

	require.NoError(t, d.Dispatch(context.Background(), Task{Kind: KindWorkflowRun, ID: "wf-1"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("wf-1"), w.msgs[0].Key)

	task, err := decodeTask(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, Task{Kind: KindWorkflowRun, ID: "wf-1"}, task)
}

func TestKafkaDispatcher_WriteError(t *testing.T) {
	d := &KafkaDispatcher{writer: &fakeWriter{err: errors.New("broker down")}, log: logging.Discard()}

	err := d.Dispatch(context.Background(), Task{Kind: KindWorkflowRun, ID: "wf-1"})
	assert.ErrorContains(t, err, "broker down")
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) == 0 {
		r.mu.Unlock()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	r.mu.Unlock()
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_RoutesMessagesAndSkipsMalformed(t *testing.T) {
	router := NewRouter(logging.Discard())
	handled := make(chan string, 2)
	router.Handle(KindWorkflowRun, func(_ context.Context, id string) error {
		handled <- id
		return nil
	})

	pool := NewLocalDispatcher(router, 1, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	good, err := encodeTask(Task{Kind: KindWorkflowRun, ID: "wf-9"})
	require.NoError(t, err)
	c := &Consumer{
		reader: &fakeReader{msgs: []kafka.Message{{Value: []byte("{bad")}, good}},
		pool:   pool,
		log:    logging.Discard(),
	}

	var got string
	go func() {
		select {
		case got = <-handled:
		case <-time.After(time.Second):
		}
		cancel()
	}()
	require.NoError(t, c.Run(ctx))
	require.NoError(t, pool.Close())
	assert.Equal(t, "wf-9", got)
}

func TestConsumer_FullPoolDelaysCommit(t *testing.T) {
	router := NewRouter(logging.Discard())
	release := make(chan struct{})
	var (
		mu      sync.Mutex
		handled []string
	)
	router.Handle(KindTryOnGenerate, func(_ context.Context, id string) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, id)
		return nil
	})

	// one busy worker and a single buffer slot
	pool := newLocalDispatcher(router, 1, 1, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	var msgs []kafka.Message
	for i, id := range []string{"t1", "t2", "t3"} {
		m, err := encodeTask(Task{Kind: KindTryOnGenerate, ID: id})
		require.NoError(t, err)
		m.Offset = int64(i)
		msgs = append(msgs, m)
	}
	reader := &fakeReader{msgs: msgs}
	c := &Consumer{reader: reader, pool: pool, log: logging.Discard()}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{0, 1}, reader.commits(), "the third task waits for room before it is committed")

	close(release)
	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, pool.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, handled)
}

func TestLocalDispatcher_EnqueueGivesUpOnCancel(t *testing.T) {
	d := newLocalDispatcher(NewRouter(logging.Discard()), 1, 1, logging.Discard())
	require.NoError(t, d.Enqueue(context.Background(), Task{Kind: KindWorkflowRun, ID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Enqueue(ctx, Task{Kind: KindWorkflowRun, ID: "b"}), context.DeadlineExceeded)
	assert.ErrorIs(t, d.Dispatch(context.Background(), Task{Kind: KindWorkflowRun, ID: "c"}), ErrQueueFull)
}
