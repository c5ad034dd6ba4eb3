package database_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/minaconn/internal/database"
	"github.com/joacominatel/minaconn/internal/database/dbtest"
	"github.com/joacominatel/minaconn/internal/uri"
)

func waitState(t *testing.T, c database.Conn, want database.ReadyState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.ReadyState() == want },
		time.Second, time.Millisecond, "state %s, want %s", c.ReadyState(), want)
}

func TestRegistryStartsWithUninitializedDefault(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())

	conns := r.Connections()
	require.Len(t, conns, 1)
	assert.Same(t, r.Default(), conns[0])
	assert.Equal(t, database.Uninitialized, conns[0].ReadyState())
}

func TestRegistryConnectConfiguresDefaultSlot(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())

	c, err := r.Connect("postgresql://app:pw@db:5433/orders", database.Options{"max_conns": 3})
	require.NoError(t, err)
	assert.Same(t, r.Default(), c)
	assert.Equal(t, "db", c.Host())
	assert.Equal(t, 5433, c.Port())
	assert.Equal(t, "app", c.User())
	assert.Equal(t, "pw", c.Pass())
	assert.Equal(t, "orders", c.Name())
	assert.Nil(t, c.Hosts())
	assert.Equal(t, 3, c.Options()["max_conns"])
	assert.Len(t, r.Connections(), 1)
}

func TestRegistryCreateConnectionIsIndependent(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())

	c, err := r.CreateConnection("postgresql://h1:1,h2:2/db", nil)
	require.NoError(t, err)
	assert.NotSame(t, r.Default(), c)
	assert.Len(t, r.Connections(), 2)
	assert.Equal(t, []uri.Host{{Host: "h1", Port: 1}, {Host: "h2", Port: 2}}, c.Hosts())

	r.Reset()
	assert.Len(t, r.Connections(), 1)
}

func TestRegistryAcquireClaimsDefaultSlotOnce(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())

	const callers = 16
	conns := make([]database.Conn, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Acquire(fmt.Sprintf("postgresql://host%d/db", i), nil)
			assert.NoError(t, err)
			conns[i] = c
		}()
	}
	wg.Wait()

	claimed := 0
	for i, c := range conns {
		require.NotNil(t, c)
		assert.Equal(t, fmt.Sprintf("host%d", i), c.Host())
		if c == r.Default() {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Len(t, r.Connections(), callers)
}

func TestRegistryAcquireSkipsConfiguredDefault(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())
	_, err := r.Connect("postgresql://first/db", nil)
	require.NoError(t, err)

	c, err := r.Acquire("postgresql://second/db", nil)
	require.NoError(t, err)
	assert.NotSame(t, r.Default(), c)
	assert.Equal(t, "first", r.Default().Host())

	r.Reset()
	c, err = r.Acquire("postgresql://third/db", nil)
	require.NoError(t, err)
	assert.Same(t, r.Default(), c)
	_, err = r.Acquire("", nil)
	assert.ErrorIs(t, err, database.ErrNoURI)
}

func TestRegistryRejectsEmptyURI(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())

	_, err := r.Connect("", nil)
	assert.ErrorIs(t, err, database.ErrNoURI)
	_, err = r.CreateConnection("", nil)
	assert.ErrorIs(t, err, database.ErrNoURI)
}

func TestConnectionOpenAndClose(t *testing.T) {
	dialer := dbtest.NewDialer()
	r := database.NewRegistry(dialer)
	c, err := r.CreateConnection("postgresql://localhost/db", nil)
	require.NoError(t, err)

	var events []database.Event
	for _, ev := range []database.Event{
		database.EventConnecting, database.EventConnected, database.EventOpen,
		database.EventDisconnecting, database.EventDisconnected, database.EventClose,
	} {
		c.On(ev, func(error) { events = append(events, ev) })
	}

	opened := make(chan struct{})
	c.Once(database.EventOpen, func(error) { close(opened) })
	c.Open(context.Background())
	<-opened

	assert.Equal(t, database.Connected, c.ReadyState())
	require.NotNil(t, c.Session())
	require.NoError(t, c.Ping(context.Background()))

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, database.Disconnected, c.ReadyState())
	assert.Nil(t, c.Session())
	assert.ErrorIs(t, c.Ping(context.Background()), database.ErrNotConnected)
	assert.Equal(t, 1, dialer.Closes())

	assert.Equal(t, []database.Event{
		database.EventConnecting, database.EventConnected, database.EventOpen,
		database.EventDisconnecting, database.EventDisconnected, database.EventClose,
	}, events)
}

func TestConnectionOpenReportsDialError(t *testing.T) {
	dialer := dbtest.NewDialer()
	boom := errors.New("auth failed")
	dialer.FailWith(boom)
	r := database.NewRegistry(dialer)
	c, err := r.CreateConnection("postgresql://localhost/db", nil)
	require.NoError(t, err)

	errs := make(chan error, 1)
	c.Once(database.EventError, func(err error) { errs <- err })
	c.Open(context.Background())

	assert.ErrorIs(t, <-errs, boom)
	waitState(t, c, database.Disconnected)
}

func TestConnectionOpenReportsBadURI(t *testing.T) {
	r := database.NewRegistry(dbtest.NewDialer())
	c, err := r.CreateConnection("postgresql://localhost:nope/db", nil)
	require.NoError(t, err)

	errs := make(chan error, 1)
	c.Once(database.EventError, func(err error) { errs <- err })
	c.Open(context.Background())

	assert.ErrorIs(t, <-errs, uri.ErrInvalidURI)
	assert.Equal(t, database.Disconnected, c.ReadyState())
}

func TestConnectionCloseWhileConnectingAborts(t *testing.T) {
	dialer := dbtest.NewDialer()
	release := dialer.Hold()
	r := database.NewRegistry(dialer)
	c, err := r.CreateConnection("postgresql://localhost/db", nil)
	require.NoError(t, err)

	c.Once(database.EventOpen, func(error) { t.Error("aborted connection opened") })
	c.Open(context.Background())
	assert.Equal(t, database.Connecting, c.ReadyState())

	aborting := make(chan struct{})
	c.Once(database.EventDisconnecting, func(error) { close(aborting) })
	done := make(chan error, 1)
	go func() { done <- c.Close(context.Background()) }()
	<-aborting
	release()

	require.NoError(t, <-done)
	assert.Equal(t, database.Disconnected, c.ReadyState())
	assert.Equal(t, 1, dialer.Closes())
}

func TestConnectionCloseErrorIsReturnedAndEmitted(t *testing.T) {
	dialer := dbtest.NewDialer()
	boom := errors.New("close failed")
	dialer.FailCloseWith(boom)
	r := database.NewRegistry(dialer)
	c, err := r.CreateConnection("postgresql://localhost/db", nil)
	require.NoError(t, err)

	c.Open(context.Background())
	waitState(t, c, database.Connected)

	var emitted error
	c.Once(database.EventError, func(err error) { emitted = err })
	assert.ErrorIs(t, c.Close(context.Background()), boom)
	assert.ErrorIs(t, emitted, boom)
	assert.Equal(t, database.Disconnected, c.ReadyState())
}

func TestConnectionCloseWhenIdleIsNoop(t *testing.T) {
	dialer := dbtest.NewDialer()
	r := database.NewRegistry(dialer)

	require.NoError(t, r.Default().Close(context.Background()))
	assert.Equal(t, database.Uninitialized, r.Default().ReadyState())
	assert.Zero(t, dialer.Closes())
}
