package epp

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qenex/regd/internal/epp/frame"
	"github.com/qenex/regd/pkg/config"
	"github.com/qenex/regd/pkg/registry/store"
)

// startTestServer runs a plaintext server on a random port with one
// registrar account provisioned.
func startTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(&store.Config{
		Type:   store.BackendSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.CreateRegistrar(context.Background(),
		"RG1", "Registrar One", "one@example.test", "pw-one"))

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.EPP.Host = "127.0.0.1"
	cfg.EPP.Port = 0
	cfg.EPP.ServerID = "regd-test"
	cfg.EPP.InsecureNoTLS = true
	cfg.EPP.IdleTimeout = 5 * time.Second

	srv := NewServer(cfg, st)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func dialTestServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func sendCommand(t *testing.T, conn net.Conn, inner string) string {
	t.Helper()
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">` + inner + `</epp>`
	require.NoError(t, frame.Write(conn, []byte(doc)))
	payload, err := frame.Read(conn)
	require.NoError(t, err)
	return string(payload)
}

func TestServerSessionFlow(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	// Greeting arrives unprompted on connect.
	greeting, err := frame.Read(conn)
	require.NoError(t, err)
	assert.Contains(t, string(greeting), "<greeting>")
	assert.Contains(t, string(greeting), "<svID>regd-test</svID>")

	// Hello re-sends the greeting.
	resp := sendCommand(t, conn, `<hello/>`)
	assert.Contains(t, resp, "<greeting>")

	// Commands before login are use errors.
	resp = sendCommand(t, conn, `<command><check>`+
		`<domain:check xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">`+
		`<domain:name>example.test</domain:name></domain:check></check>`+
		`<clTRID>A-1</clTRID></command>`)
	assert.Contains(t, resp, `<result code="2002">`)

	resp = sendCommand(t, conn, `<command><login>`+
		`<clID>RG1</clID><pw>pw-one</pw></login><clTRID>A-2</clTRID></command>`)
	assert.Contains(t, resp, `<result code="1000">`)
	assert.Contains(t, resp, "<clTRID>A-2</clTRID>")
	assert.Contains(t, resp, "<svTRID>regd-test-")

	resp = sendCommand(t, conn, `<command><check>`+
		`<domain:check xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">`+
		`<domain:name>example.test</domain:name></domain:check></check>`+
		`<clTRID>A-3</clTRID></command>`)
	assert.Contains(t, resp, `<result code="1000">`)
	assert.Contains(t, resp, `avail="1">example.test`)

	assert.Equal(t, 1, srv.Sessions().Count())

	// Logout ends the session and the server closes the connection.
	resp = sendCommand(t, conn, `<command><logout/><clTRID>A-4</clTRID></command>`)
	assert.Contains(t, resp, `<result code="1500">`)

	_, err = frame.Read(conn)
	assert.Error(t, err, "connection is closed after logout")
}

// A well-formed frame that is not an EPP command gets 2001 and the
// session survives because the frame boundary is intact.
func TestServerMalformedPayloadKeepsSession(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	_, err := frame.Read(conn) // greeting
	require.NoError(t, err)

	require.NoError(t, frame.Write(conn, []byte(`<epp/>`)))
	payload, err := frame.Read(conn)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `<result code="2001">`)

	// The session still answers the next command.
	resp := sendCommand(t, conn, `<command><login>`+
		`<clID>RG1</clID><pw>pw-one</pw></login></command>`)
	assert.Contains(t, resp, `<result code="1000">`)
}

// An oversize frame is drained and rejected with 2001; the stream stays
// on a frame boundary so the session survives.
func TestServerOversizeFrameKeepsSession(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	_, err := frame.Read(conn) // greeting
	require.NoError(t, err)

	oversize := make([]byte, frame.MaxFrameSize)
	var header [frame.HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(oversize)+frame.HeaderSize))
	_, err = conn.Write(header[:])
	require.NoError(t, err)
	_, err = conn.Write(oversize)
	require.NoError(t, err)

	payload, err := frame.Read(conn)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `<result code="2001">`)

	// The session still answers the next command.
	resp := sendCommand(t, conn, `<command><login>`+
		`<clID>RG1</clID><pw>pw-one</pw></login></command>`)
	assert.Contains(t, resp, `<result code="1000">`)
}

func TestServerConcurrentSessions(t *testing.T) {
	srv := startTestServer(t)

	a := dialTestServer(t, srv)
	b := dialTestServer(t, srv)
	for _, conn := range []net.Conn{a, b} {
		_, err := frame.Read(conn)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return srv.Sessions().Count() == 2
	}, time.Second, 10*time.Millisecond)

	// Login on one session does not authenticate the other.
	resp := sendCommand(t, a, `<command><login>`+
		`<clID>RG1</clID><pw>pw-one</pw></login></command>`)
	assert.Contains(t, resp, `<result code="1000">`)

	resp = sendCommand(t, b, `<command><check>`+
		`<domain:check xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">`+
		`<domain:name>example.test</domain:name></domain:check></check></command>`)
	assert.Contains(t, resp, `<result code="2002">`)
}

func TestServerStopDrainsConnections(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)
	_, err := frame.Read(conn) // greeting
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	require.Eventually(t, func() bool {
		return srv.Sessions().Count() == 0
	}, time.Second, 10*time.Millisecond)
}
