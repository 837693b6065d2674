package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/pacer/internal/adapters/mq/queue"
	"github.com/okian/pacer/internal/adapters/mq/worker"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue { return &mockQueue{jobs: make(chan queue.Job, 16)} }

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
	boom map[string]bool
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]error{}, boom: map[string]bool{}}
}

func (r *recorder) Handle(_ context.Context, j queue.Job) error {
	r.mu.Lock()
	r.seen = append(r.seen, j.AthleteID)
	err, boom := r.fail[j.AthleteID], r.boom[j.AthleteID]
	r.mu.Unlock()
	if boom {
		panic("handler exploded")
	}
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		h := newRecorder()
		w := worker.NewInMemoryWorker(q, h, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs arrive", func() {
			q.jobs <- queue.NewJob("a1", queue.KindRecalculate, false)
			q.jobs <- queue.NewJob("a2", queue.KindBacktest, false)

			convey.Convey("Then each is handled in order", func() {
				convey.So(waitFor(func() bool { return h.count() == 2 }), convey.ShouldBeTrue)
				convey.So(h.seen, convey.ShouldResemble, []string{"a1", "a2"})
			})
		})

		convey.Convey("When a handler errors or panics", func() {
			h.fail["bad"] = errors.New("store down")
			h.boom["worse"] = true
			q.jobs <- queue.NewJob("bad", queue.KindRecalculate, false)
			q.jobs <- queue.NewJob("worse", queue.KindRecalculate, false)
			q.jobs <- queue.NewJob("good", queue.KindRecalculate, false)

			convey.Convey("Then the worker survives and keeps going", func() {
				convey.So(waitFor(func() bool { return h.count() == 3 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		q := newMockQueue()
		h := newRecorder()
		h.fail["bad"] = errors.New("nope")
		p := worker.NewPool(3, q, h, worker.WithJobTimeout(time.Second))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		convey.So(p.Size(), convey.ShouldEqual, 3)

		convey.Convey("When jobs are queued and the pool shuts down", func() {
			for _, id := range []string{"a", "b", "bad", "c"} {
				q.jobs <- queue.NewJob(id, queue.KindRecalculate, false)
			}
			err := p.Shutdown(context.Background())

			convey.Convey("Then every queued job was drained and counted", func() {
				convey.So(err, convey.ShouldBeNil)
				processed, failed := p.Stats()
				convey.So(processed, convey.ShouldEqual, 4)
				convey.So(failed, convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		p := worker.NewPool(0, newMockQueue(), worker.HandlerFunc(func(context.Context, queue.Job) error { return nil }))
		convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
