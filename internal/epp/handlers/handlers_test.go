package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/pkg/registry/store"
)

// newTestEnv opens an in-memory store with two registrar accounts.
func newTestEnv(t *testing.T) *Env {
	t.Helper()
	st, err := store.Open(&store.Config{
		Type:   store.BackendSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.CreateRegistrar(ctx, "RG1", "Registrar One", "one@example.test", "pw-one"))
	require.NoError(t, st.CreateRegistrar(ctx, "RG2", "Registrar Two", "two@example.test", "pw-two"))

	return &Env{Store: st, ServerID: "regd-1"}
}

// loggedIn returns an authenticated session for the given registrar.
func loggedIn(t *testing.T, clID string) *session.Session {
	t.Helper()
	s := session.New("test")
	require.NoError(t, s.Login(clID))
	return s
}

func cmdOf(verb wire.Verb, object wire.Object, payload any) *wire.Command {
	return &wire.Command{
		Kind:    wire.KindCommand,
		Verb:    verb,
		Object:  object,
		ClTRID:  "T-1",
		Payload: payload,
	}
}

func run(t *testing.T, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	t.Helper()
	return Dispatch(context.Background(), env, sess, cmd)
}

// mustCreateContact creates a minimal valid contact and asserts success.
func mustCreateContact(t *testing.T, env *Env, sess *session.Session, handle string) {
	t.Helper()
	resp := run(t, env, sess, cmdOf(wire.VerbCreate, wire.ObjectContact, &wire.ContactCreate{
		Handle: handle,
		PostalInfo: &wire.PostalInfo{
			Type:    "loc",
			Name:    "Test Person",
			Streets: []string{"1 Main St"},
			City:    "Dulles",
			PC:      "20166",
			CC:      "US",
		},
		Voice: "+1.7035555555",
		Email: handle + "@example.test",
	}))
	require.Equal(t, wire.CodeOK, resp.Code)
}

// mustCreateDomain creates a domain with an existing registrant contact.
func mustCreateDomain(t *testing.T, env *Env, sess *session.Session, name, registrant string) {
	t.Helper()
	resp := run(t, env, sess, cmdOf(wire.VerbCreate, wire.ObjectDomain, &wire.DomainCreate{
		Name:       name,
		PeriodUnit: "y",
		Registrant: registrant,
		AuthInfo:   "2fooBAR",
	}))
	require.Equal(t, wire.CodeOK, resp.Code)
}

func TestDispatchRequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	sess := session.New("test")

	resp := run(t, env, sess, cmdOf(wire.VerbCheck, wire.ObjectDomain,
		&wire.DomainCheck{Names: []string{"example.test"}}))
	assert.Equal(t, wire.CodeUseError, resp.Code)
}

func TestDispatchStampsTransactionIDs(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, cmdOf(wire.VerbCheck, wire.ObjectDomain,
		&wire.DomainCheck{Names: []string{"example.test"}}))
	assert.Equal(t, "T-1", resp.ClTRID)
	assert.Regexp(t, `^regd-1-[0-9a-f]{16}$`, resp.SvTRID)
}

func TestDispatchUnadvertisedObject(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, cmdOf(wire.VerbCheck, wire.ObjectUnknown, nil))
	assert.Equal(t, wire.CodeUnimplemented, resp.Code)
}

func TestDispatchVerbWithoutObject(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, cmdOf(wire.VerbCheck, wire.ObjectNone, nil))
	assert.Equal(t, wire.CodeSyntaxError, resp.Code)
}

func TestDispatchVerbObjectPairNotRegistered(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, cmdOf(wire.VerbRenew, wire.ObjectContact,
		&wire.ContactInfo{Handle: "JD001"}))
	assert.Equal(t, wire.CodeUnimplemented, resp.Code)
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t)
		sess := session.New("test")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG1", Password: "pw-one"}))
		assert.Equal(t, wire.CodeOK, resp.Code)
		assert.True(t, sess.Authenticated())
		assert.Equal(t, "RG1", sess.ClID())
	})

	t.Run("BadPassword", func(t *testing.T) {
		env := newTestEnv(t)
		sess := session.New("test")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG1", Password: "wrong"}))
		assert.Equal(t, wire.CodeUseError, resp.Code)
		assert.False(t, sess.Authenticated())
	})

	t.Run("UnknownRegistrarSameCode", func(t *testing.T) {
		env := newTestEnv(t)
		sess := session.New("test")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "NOPE", Password: "pw-one"}))
		assert.Equal(t, wire.CodeUseError, resp.Code)
	})

	t.Run("RepeatedLoginIsUseError", func(t *testing.T) {
		env := newTestEnv(t)
		sess := loggedIn(t, "RG1")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG2", Password: "pw-two"}))
		assert.Equal(t, wire.CodeUseError, resp.Code)
		assert.Equal(t, "RG1", sess.ClID())
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		env := newTestEnv(t)
		sess := session.New("test")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG1"}))
		assert.Equal(t, wire.CodeMissingParameter, resp.Code)
	})

	t.Run("NewPasswordRotates", func(t *testing.T) {
		env := newTestEnv(t)
		sess := session.New("test")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG1", Password: "pw-one", NewPassword: "pw-next"}))
		require.Equal(t, wire.CodeOK, resp.Code)

		again := session.New("test")
		resp = run(t, env, again, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG1", Password: "pw-next"}))
		assert.Equal(t, wire.CodeOK, resp.Code)
	})

	t.Run("InsecureAuthSkipsPassphrase", func(t *testing.T) {
		env := newTestEnv(t)
		env.InsecureAuth = true
		sess := session.New("test")

		resp := run(t, env, sess, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "RG1", Password: "anything"}))
		assert.Equal(t, wire.CodeOK, resp.Code)

		other := session.New("test")
		resp = run(t, env, other, cmdOf(wire.VerbLogin, wire.ObjectNone,
			&wire.Login{ClID: "NOPE", Password: "anything"}))
		assert.Equal(t, wire.CodeUseError, resp.Code,
			"unknown registrar is rejected even in insecure mode")
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, cmdOf(wire.VerbLogout, wire.ObjectNone, nil))
	assert.Equal(t, wire.CodeOKEndingSession, resp.Code)
	assert.Equal(t, session.StateClosing, sess.State())
}

func TestPollQueue(t *testing.T) {
	env := newTestEnv(t)
	rg1 := loggedIn(t, "RG1")
	rg2 := loggedIn(t, "RG2")

	// Empty queue.
	resp := run(t, env, rg1, &wire.Command{Verb: wire.VerbPoll, PollOp: "req"})
	assert.Equal(t, wire.CodeNoMessages, resp.Code)

	// A transfer request enqueues a message for the losing sponsor.
	mustCreateContact(t, env, rg1, "JD001")
	mustCreateDomain(t, env, rg1, "polled.test", "JD001")
	resp = run(t, env, rg2, &wire.Command{
		Verb:       wire.VerbTransfer,
		Object:     wire.ObjectDomain,
		TransferOp: "request",
		Payload:    &wire.DomainTransfer{Name: "polled.test", AuthInfo: "2fooBAR"},
	})
	require.Equal(t, wire.CodeOKPending, resp.Code)

	resp = run(t, env, rg1, &wire.Command{Verb: wire.VerbPoll, PollOp: "req"})
	require.Equal(t, wire.CodeMessageAckToDequeue, resp.Code)
	require.NotNil(t, resp.MsgQ)
	assert.Equal(t, 1, resp.MsgQ.Count)
	assert.Contains(t, resp.MsgQ.Message, "polled.test")
	assert.Contains(t, resp.MsgQ.Message, "RG2")

	// The message stays queued until acked.
	again := run(t, env, rg1, &wire.Command{Verb: wire.VerbPoll, PollOp: "req"})
	require.Equal(t, wire.CodeMessageAckToDequeue, again.Code)
	assert.Equal(t, resp.MsgQ.ID, again.MsgQ.ID)

	acked := run(t, env, rg1, &wire.Command{
		Verb: wire.VerbPoll, PollOp: "ack", PollMsgID: resp.MsgQ.ID,
	})
	require.Equal(t, wire.CodeOK, acked.Code)
	require.NotNil(t, acked.MsgQ)
	assert.Zero(t, acked.MsgQ.Count)

	resp = run(t, env, rg1, &wire.Command{Verb: wire.VerbPoll, PollOp: "req"})
	assert.Equal(t, wire.CodeNoMessages, resp.Code)
}

func TestPollAckErrors(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, &wire.Command{Verb: wire.VerbPoll, PollOp: "ack", PollMsgID: "abc"})
	assert.Equal(t, wire.CodeParameterSyntax, resp.Code)

	resp = run(t, env, sess, &wire.Command{Verb: wire.VerbPoll, PollOp: "ack", PollMsgID: "999"})
	assert.Equal(t, wire.CodeObjectNotFound, resp.Code)
}

func TestAutoApproveTransfers(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	env.Now = func() time.Time { return base }
	rg1 := loggedIn(t, "RG1")
	rg2 := loggedIn(t, "RG2")

	mustCreateContact(t, env, rg1, "JD001")
	mustCreateDomain(t, env, rg1, "sweep.test", "JD001")

	resp := run(t, env, rg2, &wire.Command{
		Verb:       wire.VerbTransfer,
		Object:     wire.ObjectDomain,
		TransferOp: "request",
		Payload:    &wire.DomainTransfer{Name: "sweep.test", AuthInfo: "2fooBAR"},
	})
	require.Equal(t, wire.CodeOKPending, resp.Code)

	// Not yet past the window.
	n, err := AutoApproveTransfers(context.Background(), env)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Jump the clock past the window.
	env.Now = func() time.Time { return base.Add(DefaultTransferWindow + time.Hour) }
	n, err = AutoApproveTransfers(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Sponsorship moved to the requester and the registration gained a year.
	info := run(t, env, rg2, cmdOf(wire.VerbInfo, wire.ObjectDomain,
		&wire.DomainInfo{Name: "sweep.test"}))
	require.Equal(t, wire.CodeOK, info.Code)
	data := info.ResData.(*wire.DomainInfoData)
	assert.Equal(t, "RG2", data.ClID)
	assert.Equal(t, wire.FmtTime(base.Add(2*365*24*time.Hour)), data.ExDate)
	assert.NotContains(t, data.Statuses, wire.StatusOut{S: "pendingTransfer"})

	// Both parties were notified.
	for _, sess := range []*session.Session{rg1, rg2} {
		for {
			r := run(t, env, sess, &wire.Command{Verb: wire.VerbPoll, PollOp: "req"})
			if r.Code == wire.CodeNoMessages {
				break
			}
			require.Equal(t, wire.CodeMessageAckToDequeue, r.Code)
			assert.Contains(t, r.MsgQ.Message, "sweep.test")
			ack := run(t, env, sess, &wire.Command{
				Verb: wire.VerbPoll, PollOp: "ack", PollMsgID: r.MsgQ.ID,
			})
			require.Equal(t, wire.CodeOK, ack.Code)
		}
	}
}
