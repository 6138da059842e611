package uploader

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/funnel/internal/adapters/queue"
	"github.com/okian/funnel/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// instantClock fires retry waits immediately.
type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// scriptedTransport returns canned results and records every submission.
type scriptedTransport struct {
	status  int
	err     error
	calls   int
	urls    []string
	bodies  []string
	methods []string
}

func (s *scriptedTransport) Submit(_ context.Context, url, method string, body []byte, _ map[string]string) (int, []byte, error) {
	s.calls++
	s.urls = append(s.urls, url)
	s.bodies = append(s.bodies, string(body))
	s.methods = append(s.methods, method)
	return s.status, nil, s.err
}

func newTestQueue(ctx context.Context, events ...string) *queue.DurableQueue {
	q := queue.New(ctx, queue.WithCapacity(100))
	for _, e := range events {
		q.Append(ctx, []byte(e))
	}
	return q
}

func TestUploadCycleSuccess(t *testing.T) {
	Convey("Given a queue with two events and a healthy collector", t, func() {
		ctx := context.Background()
		q := newTestQueue(ctx, `{"name":"a"}`, `{"name":"b"}`)
		tr := &scriptedTransport{status: 200}
		u := New(q, tr, "https://collect.example.com/v1", WithClock(instantClock{}))

		Convey("When a cycle runs", func() {
			outcome, err := u.RunCycle(ctx)

			Convey("Then the batch is sent once and cleared", func() {
				So(err, ShouldBeNil)
				So(outcome, ShouldEqual, OutcomeSuccess)
				So(tr.calls, ShouldEqual, 1)
				So(tr.methods[0], ShouldEqual, "POST")
				So(tr.bodies[0], ShouldEqual, `{"eventList":[{"name":"a"},{"name":"b"}]}`)
			})

			Convey("Then both queue buffers drained", func() {
				So(q.Len(), ShouldEqual, 0)
				So(q.InactiveLen(), ShouldEqual, 0)
				So(q.Uploading(), ShouldBeFalse)
			})

			Convey("Then a later cycle with no new appends sends nothing", func() {
				outcome2, err2 := u.RunCycle(ctx)
				So(err2, ShouldBeNil)
				So(outcome2, ShouldEqual, OutcomeEmpty)
				So(tr.calls, ShouldEqual, 1)
			})
		})
	})
}

func TestUploadCycleRetryBound(t *testing.T) {
	Convey("Given a transport that always fails", t, func() {
		ctx := context.Background()
		q := newTestQueue(ctx, `{"name":"a"}`)
		tr := &scriptedTransport{err: errors.New("connection reset")}
		u := New(q, tr, "https://collect.example.com/v1",
			WithClock(instantClock{}), WithMaxAttempts(3))

		Convey("When a cycle runs", func() {
			outcome, err := u.RunCycle(ctx)

			Convey("Then exactly maxAttempts submissions happen", func() {
				So(err, ShouldBeNil)
				So(outcome, ShouldEqual, OutcomeRetriesExhausted)
				So(tr.calls, ShouldEqual, 3)
			})

			Convey("Then every attempt resubmitted the same envelope", func() {
				So(tr.bodies[1], ShouldEqual, tr.bodies[0])
				So(tr.bodies[2], ShouldEqual, tr.bodies[0])
			})

			Convey("Then the batch survives for the next cycle", func() {
				batch := q.Read(ctx)
				So(len(batch), ShouldEqual, 1)
				So(string(batch[0]), ShouldEqual, `{"name":"a"}`)
			})
		})
	})
}

func TestUploadCyclePermanentRejection(t *testing.T) {
	Convey("Given a collector that rejects the batch with 400", t, func() {
		ctx := context.Background()
		q := newTestQueue(ctx, `{"name":"a"}`, `{"name":"b"}`, `{"name":"c"}`)
		tr := &scriptedTransport{status: 400}
		u := New(q, tr, "https://collect.example.com/v1",
			WithClock(instantClock{}), WithMaxAttempts(5))

		Convey("When a cycle runs", func() {
			outcome, err := u.RunCycle(ctx)

			Convey("Then the batch is dropped after a single attempt", func() {
				So(err, ShouldBeNil)
				So(outcome, ShouldEqual, OutcomePermanentReject)
				So(tr.calls, ShouldEqual, 1)
				So(len(q.Read(ctx)), ShouldEqual, 0)
			})
		})
	})
}

func TestUploadCycleTransientThenRecovered(t *testing.T) {
	Convey("Given a collector that fails once then recovers", t, func() {
		ctx := context.Background()
		q := newTestQueue(ctx, `{"name":"a"}`)

		flaky := &flakyTransport{failFirst: 1, thenStatus: 204}
		u := New(q, flaky, "https://collect.example.com/v1",
			WithClock(instantClock{}), WithMaxAttempts(3))

		Convey("When a cycle runs", func() {
			outcome, err := u.RunCycle(ctx)

			Convey("Then the second attempt succeeds and clears the batch", func() {
				So(err, ShouldBeNil)
				So(outcome, ShouldEqual, OutcomeSuccess)
				So(flaky.calls, ShouldEqual, 2)
				So(len(q.Read(ctx)), ShouldEqual, 0)
			})
		})
	})
}

type flakyTransport struct {
	failFirst  int
	thenStatus int
	calls      int
}

func (f *flakyTransport) Submit(context.Context, string, string, []byte, map[string]string) (int, []byte, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return 503, nil, nil
	}
	return f.thenStatus, nil, nil
}

func TestUploadCycleBusy(t *testing.T) {
	Convey("Given an upload already in flight", t, func() {
		ctx := context.Background()
		q := newTestQueue(ctx, `{"name":"a"}`)
		tr := &scriptedTransport{status: 200}
		u := New(q, tr, "https://collect.example.com/v1", WithClock(instantClock{}))

		So(q.TryBeginUpload(), ShouldBeTrue)
		defer q.EndUpload()

		Convey("When another cycle starts", func() {
			outcome, err := u.RunCycle(ctx)

			Convey("Then it is rejected with a busy signal", func() {
				So(errors.Is(err, ErrBusy), ShouldBeTrue)
				So(outcome, ShouldEqual, OutcomeBusy)
				So(tr.calls, ShouldEqual, 0)
			})
		})
	})
}

func TestUploadCycleEmptyQueue(t *testing.T) {
	Convey("Given an empty queue", t, func() {
		ctx := context.Background()
		q := newTestQueue(ctx)
		tr := &scriptedTransport{status: 200}
		u := New(q, tr, "https://collect.example.com/v1")

		Convey("When a cycle runs", func() {
			outcome, err := u.RunCycle(ctx)

			Convey("Then nothing is submitted", func() {
				So(err, ShouldBeNil)
				So(outcome, ShouldEqual, OutcomeEmpty)
				So(tr.calls, ShouldEqual, 0)
			})
		})
	})
}

func TestSubmissionURLSigning(t *testing.T) {
	Convey("Given uploaders with and without a hash secret", t, func() {
		ctx := context.Background()

		Convey("When no secret is configured", func() {
			q := newTestQueue(ctx, `{"name":"a"}`)
			tr := &scriptedTransport{status: 200}
			u := New(q, tr, "https://collect.example.com/v1")
			_, _ = u.RunCycle(ctx)

			Convey("Then the plain URL is used", func() {
				So(tr.urls[0], ShouldEqual, "https://collect.example.com/v1")
			})
		})

		Convey("When a secret is configured", func() {
			q := newTestQueue(ctx, `{"name":"a"}`)
			tr := &scriptedTransport{status: 200}
			u := New(q, tr, "https://collect.example.com/v1", WithHashSecret("s3cret"))
			_, _ = u.RunCycle(ctx)

			Convey("Then a hash path component is appended", func() {
				So(tr.urls[0], ShouldStartWith, "https://collect.example.com/v1/hash/")
				hash := strings.TrimPrefix(tr.urls[0], "https://collect.example.com/v1/hash/")
				So(len(hash), ShouldEqual, 32) // md5 hex
			})
		})
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		err    error
		want   disposition
	}{
		{200, nil, dispositionSuccess},
		{204, nil, dispositionSuccess},
		{302, nil, dispositionSuccess},
		{1, nil, dispositionSuccess},
		{399, nil, dispositionSuccess},
		{400, nil, dispositionPermanent},
		{401, nil, dispositionRetry},
		{404, nil, dispositionRetry},
		{500, nil, dispositionRetry},
		{503, nil, dispositionRetry},
		{0, nil, dispositionRetry},
		{200, errors.New("timeout"), dispositionRetry},
	}

	for _, c := range cases {
		if got := classify(c.status, c.err); got != c.want {
			t.Errorf("classify(%d, %v) = %v, want %v", c.status, c.err, got, c.want)
		}
	}
}
