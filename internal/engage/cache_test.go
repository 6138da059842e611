package engage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/funnel/internal/adapters/storage"
	"github.com/okian/funnel/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestCacheRoundTrip(t *testing.T) {
	Convey("Given an in-memory cache", t, func() {
		ctx := context.Background()
		c := New(ctx)

		Convey("When storing and looking up a response", func() {
			c.Store(ctx, "fp1", []byte(`{"msg":"hi"}`))
			got, ok := c.Lookup("fp1")

			Convey("Then the stored value round-trips", func() {
				So(ok, ShouldBeTrue)
				So(string(got), ShouldEqual, `{"msg":"hi"}`)
			})
		})

		Convey("When looking up an unseen fingerprint", func() {
			_, ok := c.Lookup("never-stored")

			Convey("Then it is absent, not an error", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When overwriting an entry", func() {
			c.Store(ctx, "fp1", []byte(`{"v":1}`))
			c.Store(ctx, "fp1", []byte(`{"v":2}`))
			got, _ := c.Lookup("fp1")

			Convey("Then the last write wins", func() {
				So(string(got), ShouldEqual, `{"v":2}`)
			})
		})

		Convey("When clearing", func() {
			c.Store(ctx, "fp1", []byte(`{"v":1}`))
			c.Clear(ctx)

			Convey("Then the cache is empty", func() {
				So(c.Len(), ShouldEqual, 0)
				_, ok := c.Lookup("fp1")
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestCachePersistence(t *testing.T) {
	Convey("Given a cache backed by SQLite", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "funnel.db")

		store, err := storage.Open(ctx, path)
		So(err, ShouldBeNil)

		c := New(ctx, WithStore(store))
		c.Store(ctx, "fp1", []byte(`{"msg":"hi"}`))
		c.Save(ctx)
		So(store.Close(), ShouldBeNil)

		Convey("When the cache is rebuilt from the same file", func() {
			store2, err := storage.Open(ctx, path)
			So(err, ShouldBeNil)
			defer func() { _ = store2.Close() }()

			c2 := New(ctx, WithStore(store2))

			Convey("Then persisted entries are restored", func() {
				got, ok := c2.Lookup("fp1")
				So(ok, ShouldBeTrue)
				So(string(got), ShouldEqual, `{"msg":"hi"}`)
			})
		})
	})
}

type brokenStore struct{}

var errBroken = errors.New("io error")

func (brokenStore) PutEngagement(context.Context, string, []byte) error { return errBroken }
func (brokenStore) LoadEngagements(context.Context) (map[string][]byte, error) {
	return nil, errBroken
}
func (brokenStore) ClearEngagements(context.Context) error { return errBroken }

func TestCacheDegradesOnStorageFailure(t *testing.T) {
	Convey("Given a cache whose storage fails", t, func() {
		ctx := context.Background()
		c := New(ctx, WithStore(brokenStore{}))

		Convey("Then it keeps serving from memory", func() {
			c.Store(ctx, "fp1", []byte(`{"v":1}`))
			got, ok := c.Lookup("fp1")
			So(ok, ShouldBeTrue)
			So(string(got), ShouldEqual, `{"v":1}`)
		})
	})
}
