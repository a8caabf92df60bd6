package whois

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qenex/regd/pkg/config"
	"github.com/qenex/regd/pkg/registry/models"
	"github.com/qenex/regd/pkg/registry/store"
)

func startTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(&store.Config{
		Type:   store.BackendSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.EPP.ServerID = "regd-test"
	cfg.WHOIS.Host = "127.0.0.1"
	cfg.WHOIS.Port = 0

	srv := NewServer(cfg, st)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, st
}

func seedDomain(t *testing.T, st *store.Store) {
	t.Helper()
	tx := st.Begin(context.Background())
	defer tx.Rollback()

	host := &models.Host{Name: "ns1.example.test", ClID: "RG1", Statuses: models.StatusSet{"ok"}}
	require.NoError(t, tx.CreateHost(host))

	d := &models.Domain{
		Name:       "example.test",
		ClID:       "RG1",
		Registrant: "JD001",
		AuthInfo:   "2fooBAR",
		Statuses:   models.StatusSet{"ok"},
		CrDate:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ExDate:     time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, tx.CreateDomain(d))
	require.NoError(t, tx.SetDomainContacts(d.ID, []models.DomainContact{
		{Handle: "JD001", Role: "admin"},
	}))
	require.NoError(t, tx.AddDomainHost(d, host))
	require.NoError(t, tx.Commit())
}

func query(t *testing.T, srv *Server, q string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte(q + "\r\n"))
	require.NoError(t, err)
	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

func TestWhoisDomainRecord(t *testing.T) {
	srv, st := startTestServer(t)
	seedDomain(t, st)

	out := query(t, srv, "EXAMPLE.test")
	assert.Contains(t, out, "Domain Name: EXAMPLE.TEST")
	assert.Contains(t, out, "Registry Domain ID: EXAMPLE-TEST-regd-test")
	assert.Contains(t, out, "Creation Date: 2026-01-02T03:04:05Z")
	assert.Contains(t, out, "Registry Expiry Date: 2027-01-02T03:04:05Z")
	assert.Contains(t, out, "Sponsoring Registrar: RG1")
	assert.Contains(t, out, "Domain Status: ok")
	assert.Contains(t, out, "Registrant ID: JD001")
	assert.Contains(t, out, "Admin ID: JD001")
	assert.Contains(t, out, "Name Server: NS1.EXAMPLE.TEST")
	assert.Contains(t, out, "Last update of WHOIS database")
}

func TestWhoisNoMatch(t *testing.T) {
	srv, _ := startTestServer(t)

	out := query(t, srv, "missing.test")
	assert.Contains(t, out, `No match for "missing.test"`)
}

func TestWhoisEmptyQuery(t *testing.T) {
	srv, _ := startTestServer(t)

	out := query(t, srv, "")
	assert.Contains(t, out, "Query must be a domain name")
}
