// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/goldenclean/internal/credentials"
)

type serverConn struct {
	token string
	conn  *websocket.Conn
}

// newEmployeeServer upgrades /ws/employees/ and hands each connection to the test.
func newEmployeeServer(t *testing.T) (*httptest.Server, <-chan serverConn) {
	t.Helper()
	conns := make(chan serverConn, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/employees/" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- serverConn{token: r.URL.Query().Get("token"), conn: conn}
	}))
	return srv, conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/employees/"
}

func TestOpen_TokenAndFrames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := newEmployeeServer(t)
	defer srv.Close()

	frames := make(chan Frame, 4)
	opened := make(chan struct{}, 1)
	ch, err := Open(context.Background(), wsURL(srv), "tok-1",
		WithMessageHandler(func(f Frame) { frames <- f }),
		WithOpenHandler(func() { opened <- struct{}{} }),
	)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, ch.State())

	select {
	case <-opened:
	default:
		t.Fatal("open handler did not run")
	}

	sc := <-conns
	defer func() { _ = sc.conn.Close() }()
	assert.Equal(t, "tok-1", sc.token)

	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"service_notification","service_id":1,"description":"A"}`)))
	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	select {
	case f := <-frames:
		assert.Equal(t, ServiceNotification{ServiceID: 1, Description: "A"}, f)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	select {
	case f := <-frames:
		assert.Equal(t, "ping", f.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("unknown frame not delivered")
	}

	require.NoError(t, ch.Send(AcceptService{ServiceID: 1}))
	_, payload, err := sc.conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"accept_service","service_id":1}`, string(payload))

	require.NoError(t, ch.Close())
	<-ch.Done()
	assert.Empty(t, frames, "malformed frame was dropped")
}

func TestSend_NotConnectedAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := newEmployeeServer(t)
	defer srv.Close()

	ch, err := Open(context.Background(), wsURL(srv), "tok")
	require.NoError(t, err)
	sc := <-conns
	defer func() { _ = sc.conn.Close() }()

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close(), "close is idempotent")
	<-ch.Done()

	assert.Equal(t, StateClosed, ch.State())
	assert.ErrorIs(t, ch.Send(UpdateLocation{Lat: 1, Lng: 2}), ErrNotConnected)
}

func TestRemoteDropSurfacesError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := newEmployeeServer(t)
	defer srv.Close()

	errs := make(chan error, 1)
	ch, err := Open(context.Background(), wsURL(srv), "tok", WithErrorHandler(func(err error) { errs <- err }))
	require.NoError(t, err)

	sc := <-conns
	// Abrupt drop without a close frame.
	require.NoError(t, sc.conn.UnderlyingConn().Close())

	select {
	case err := <-errs:
		var ce *ChannelError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "read", ce.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("no error surfaced")
	}
	<-ch.Done()
	assert.Equal(t, StateClosed, ch.State())
	assert.ErrorIs(t, ch.Send(AcceptService{ServiceID: 1}), ErrNotConnected)
}

func TestDial_NoToken(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws/employees/", credentials.NewMemoryStore())
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, "channel dial: no token found", err.Error())
}

func TestDial_UsesStoredToken(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := newEmployeeServer(t)
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), credentials.AccessTokenKey, "stored-tok"))

	ch, err := Dial(context.Background(), wsURL(srv), store)
	require.NoError(t, err)
	sc := <-conns
	defer func() { _ = sc.conn.Close() }()
	assert.Equal(t, "stored-tok", sc.token)

	require.NoError(t, ch.Close())
	<-ch.Done()
}

func TestOpen_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), wsURL(srv), "tok")
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusForbidden, ce.Status)
}

func TestOpen_RejectsHTTPScheme(t *testing.T) {
	_, err := Open(context.Background(), "http://example.com/ws/", "tok")
	assert.Error(t, err)
}

func TestOnOpenAfterOpenRunsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := newEmployeeServer(t)
	defer srv.Close()

	ch, err := Open(context.Background(), wsURL(srv), "tok")
	require.NoError(t, err)
	sc := <-conns
	defer func() { _ = sc.conn.Close() }()

	ran := false
	ch.OnOpen(func() { ran = true })
	assert.True(t, ran)

	require.NoError(t, ch.Close())
	<-ch.Done()
}

type fakeRefresher struct {
	fresh    string
	err      error
	rejected []string
}

func (r *fakeRefresher) RefreshAccess(_ context.Context, rejected string) (string, error) {
	r.rejected = append(r.rejected, rejected)
	return r.fresh, r.err
}

// tokenServer upgrades only connections presenting accept.
func tokenServer(t *testing.T, accept string) (*httptest.Server, <-chan serverConn) {
	t.Helper()
	conns := make(chan serverConn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok != accept {
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- serverConn{token: tok, conn: conn}
	}))
	return srv, conns
}

func TestDial_RefreshesRefusedTokenOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, conns := tokenServer(t, "fresh-tok")
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), credentials.AccessTokenKey, "stale-tok"))
	ref := &fakeRefresher{fresh: "fresh-tok"}

	ch, err := Dial(context.Background(), wsURL(srv), store, WithRefresher(ref))
	require.NoError(t, err)
	sc := <-conns
	defer func() { _ = sc.conn.Close() }()

	assert.Equal(t, "fresh-tok", sc.token)
	assert.Equal(t, []string{"stale-tok"}, ref.rejected)
	assert.Equal(t, StateOpen, ch.State())

	require.NoError(t, ch.Close())
	<-ch.Done()
}

func TestDial_RefreshFailureIsReturned(t *testing.T) {
	srv, _ := tokenServer(t, "fresh-tok")
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), credentials.AccessTokenKey, "stale-tok"))
	expired := errors.New("login required")

	_, err := Dial(context.Background(), wsURL(srv), store, WithRefresher(&fakeRefresher{err: expired}))
	assert.ErrorIs(t, err, expired)
}

func TestDial_SecondRefusalIsNotRetried(t *testing.T) {
	srv, _ := tokenServer(t, "never")
	defer srv.Close()

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), credentials.AccessTokenKey, "stale-tok"))
	ref := &fakeRefresher{fresh: "still-bad"}

	_, err := Dial(context.Background(), wsURL(srv), store, WithRefresher(ref))
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.Status)
	assert.Len(t, ref.rejected, 1)
}

func TestChannelError_Unauthorized(t *testing.T) {
	tests := []struct {
		err  ChannelError
		want bool
	}{
		{ChannelError{Op: "dial", Status: http.StatusUnauthorized}, true},
		{ChannelError{Op: "dial", Status: http.StatusForbidden}, true},
		{ChannelError{Op: "dial", Status: http.StatusInternalServerError}, false},
		{ChannelError{Op: "dial"}, false},
		{ChannelError{Op: "read", Status: http.StatusUnauthorized}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Unauthorized(), "%+v", tt.err)
	}
}
