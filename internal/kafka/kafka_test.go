package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/logger"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducerPublishJSON(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Logger: logger.Nop()}

	err := p.PublishJSON(context.Background(), "registration-events", "reg-1", map[string]string{"type": "registration.created"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "registration-events", w.msgs[0].Topic)
	assert.Equal(t, "reg-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"type":"registration.created"}`, string(w.msgs[0].Value))
}

func TestProducerPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{Writer: w, Logger: logger.Nop()}

	err := p.Publish(context.Background(), "t", "k", []byte("v"))
	assert.EqualError(t, err, "broker down")

	err = p.PublishJSON(context.Background(), "t", "k", make(chan int))
	assert.Error(t, err)
}

func TestConsumerCommitsEvenWhenHandlerFails(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "t", Offset: 1, Value: []byte("ok")},
		{Topic: "t", Offset: 2, Value: []byte("bad")},
		{Topic: "t", Offset: 3, Value: []byte("ok")},
	}}
	c := &Consumer{Reader: r, Logger: logger.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	var handled []int64
	err := c.Start(ctx, func(_ context.Context, msg kafka.Message) error {
		handled = append(handled, msg.Offset)
		if len(handled) == 3 {
			cancel()
		}
		if string(msg.Value) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, handled)
	assert.Len(t, r.committed, 2, "the commit after cancellation is dropped")
}
