package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, NewLogger(zerolog.Nop()))
	t.Cleanup(func() { ps.Close() })
	return ps
}

type recorder struct {
	mu    sync.Mutex
	jobs  []entities.IngestJob
	fails int
	done  chan struct{}
}

func (r *recorder) handle(ctx context.Context, job entities.IngestJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("transient")
	}
	r.jobs = append(r.jobs, job)
	close(r.done)
	return nil
}

func TestPublishAndConsume(t *testing.T) {
	ps := newPubSub(t)
	rec := &recorder{done: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := NewConsumer(ps, "", rec.handle)
	go consumer.Run(ctx)

	require.NoError(t, NewPublisher(ps, "").Trigger(ctx, 7, "report.pdf"))

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not consumed")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, entities.IngestJob{DocumentID: 7, FilePath: "report.pdf"}, rec.jobs[0])
}

func TestConsumer_RedeliversOnError(t *testing.T) {
	ps := newPubSub(t)
	rec := &recorder{fails: 1, done: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewConsumer(ps, "jobs", rec.handle).Run(ctx)

	require.NoError(t, NewPublisher(ps, "jobs").Trigger(ctx, 3, "a.pdf"))

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not redelivered")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 0, rec.fails)
	assert.Len(t, rec.jobs, 1)
}

func TestConsumer_DropsMalformed(t *testing.T) {
	ps := newPubSub(t)
	rec := &recorder{done: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewConsumer(ps, "jobs", rec.handle).Run(ctx)

	require.NoError(t, ps.Publish("jobs", message.NewMessage("bad", []byte("not json"))))
	require.NoError(t, NewPublisher(ps, "jobs").Trigger(ctx, 9, "b.pdf"))

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("valid job after a malformed one was not consumed")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, int64(9), rec.jobs[0].DocumentID)
}

type failingPublisher struct{}

func (failingPublisher) Publish(topic string, msgs ...*message.Message) error {
	return errors.New("redis: connection refused")
}
func (failingPublisher) Close() error { return nil }

func TestPublisher_FailureIsWorkflowTriggerFailure(t *testing.T) {
	err := NewPublisher(failingPublisher{}, "").Trigger(context.Background(), 1, "a.pdf")
	assert.Equal(t, errs.KindWorkflowTriggerFailure, errs.KindOf(err))
	assert.Equal(t, "redis: connection refused", errs.DetailsOf(err))
}
