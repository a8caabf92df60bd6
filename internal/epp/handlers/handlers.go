// Package handlers implements the EPP command handlers. A dispatch table
// keyed by (verb, object mapping) routes each parsed command to its
// handler; handlers run inside a store transaction scoped to the command
// and return a semantic response record.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/metrics"
	"github.com/qenex/regd/pkg/registry/models"
	"github.com/qenex/regd/pkg/registry/store"
)

// DefaultTransferWindow is how long a transfer stays pending before the
// server auto-approves it.
const DefaultTransferWindow = 5 * 24 * time.Hour

// Env carries the dependencies shared by all handlers.
type Env struct {
	Store    *store.Store
	ServerID string

	// InsecureAuth accepts any passphrase for a known registrar. Lab use
	// only; off unless explicitly enabled in configuration.
	InsecureAuth bool

	// TransferWindow is the pending-transfer auto-approval window.
	// DefaultTransferWindow if zero.
	TransferWindow time.Duration

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Env) transferWindow() time.Duration {
	if e.TransferWindow > 0 {
		return e.TransferWindow
	}
	return DefaultTransferWindow
}

type handlerFunc func(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response

type dispatchKey struct {
	verb   wire.Verb
	object wire.Object
}

var dispatchTable = map[dispatchKey]handlerFunc{}

func register(verb wire.Verb, object wire.Object, fn handlerFunc) {
	dispatchTable[dispatchKey{verb: verb, object: object}] = fn
}

func init() {
	register(wire.VerbCheck, wire.ObjectDomain, domainCheck)
	register(wire.VerbInfo, wire.ObjectDomain, domainInfo)
	register(wire.VerbCreate, wire.ObjectDomain, domainCreate)
	register(wire.VerbUpdate, wire.ObjectDomain, domainUpdate)
	register(wire.VerbDelete, wire.ObjectDomain, domainDelete)
	register(wire.VerbRenew, wire.ObjectDomain, domainRenew)
	register(wire.VerbTransfer, wire.ObjectDomain, domainTransfer)

	register(wire.VerbCheck, wire.ObjectContact, contactCheck)
	register(wire.VerbInfo, wire.ObjectContact, contactInfo)
	register(wire.VerbCreate, wire.ObjectContact, contactCreate)
	register(wire.VerbUpdate, wire.ObjectContact, contactUpdate)
	register(wire.VerbDelete, wire.ObjectContact, contactDelete)

	register(wire.VerbCheck, wire.ObjectHost, hostCheck)
	register(wire.VerbInfo, wire.ObjectHost, hostInfo)
	register(wire.VerbCreate, wire.ObjectHost, hostCreate)
	register(wire.VerbUpdate, wire.ObjectHost, hostUpdate)
	register(wire.VerbDelete, wire.ObjectHost, hostDelete)
}

// Dispatch routes one parsed command to its handler and stamps the
// transaction identifiers on the response. The hello kind is answered at
// the connection layer and never reaches Dispatch.
func Dispatch(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	resp := dispatch(ctx, env, sess, cmd)
	resp.ClTRID = cmd.ClTRID
	resp.SvTRID = wire.NewSvTRID(env.ServerID)

	metrics.ObserveCommand(string(cmd.Verb), string(cmd.Object), resp.Code)
	logger.Debug("EPP command processed",
		"session", sess.ID,
		"clID", sess.ClID(),
		"verb", cmd.Verb,
		"object", cmd.Object,
		"code", resp.Code)
	return resp
}

func dispatch(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	switch cmd.Verb {
	case wire.VerbLogin:
		return login(ctx, env, sess, cmd)
	case wire.VerbLogout:
		return logout(sess)
	}

	if !sess.Authenticated() {
		return replyMsg(wire.CodeUseError, "Command use error; log in first")
	}

	if cmd.Verb == wire.VerbPoll {
		return poll(ctx, env, sess, cmd)
	}

	switch cmd.Object {
	case wire.ObjectNone:
		return reply(wire.CodeSyntaxError)
	case wire.ObjectUnknown:
		return reply(wire.CodeUnimplemented)
	}

	fn, ok := dispatchTable[dispatchKey{verb: cmd.Verb, object: cmd.Object}]
	if !ok {
		return reply(wire.CodeUnimplemented)
	}
	if cmd.Payload == nil {
		return reply(wire.CodeSyntaxError)
	}
	return fn(ctx, env, sess, cmd)
}

func reply(code int) *wire.Response {
	return &wire.Response{Code: code}
}

func replyMsg(code int, format string, args ...any) *wire.Response {
	return &wire.Response{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// ============================================================================
// Session commands
// ============================================================================

func login(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req, ok := cmd.Payload.(*wire.Login)
	if !ok {
		return reply(wire.CodeSyntaxError)
	}
	if sess.Authenticated() {
		return replyMsg(wire.CodeUseError, "Command use error; already logged in")
	}
	if req.ClID == "" || (req.Password == "" && !env.InsecureAuth) {
		return reply(wire.CodeMissingParameter)
	}

	if env.InsecureAuth {
		if _, err := env.Store.GetRegistrar(ctx, req.ClID); err != nil {
			return reply(wire.CodeUseError)
		}
	} else {
		_, err := env.Store.ValidateRegistrarCredentials(ctx, req.ClID, req.Password)
		if errors.Is(err, models.ErrInvalidCredentials) {
			logger.Warn("Login failed", "session", sess.ID, "clID", req.ClID)
			return reply(wire.CodeUseError)
		}
		if err != nil {
			return reply(wire.CodeCommandFailed)
		}
	}

	if req.NewPassword != "" {
		if err := env.Store.SetRegistrarPassword(ctx, req.ClID, req.NewPassword); err != nil {
			return reply(wire.CodeCommandFailed)
		}
	}

	if err := sess.Login(req.ClID); err != nil {
		return reply(wire.CodeUseError)
	}
	logger.Info("Registrar logged in", "session", sess.ID, "clID", req.ClID)
	return reply(wire.CodeOK)
}

func logout(sess *session.Session) *wire.Response {
	sess.Close()
	return reply(wire.CodeOKEndingSession)
}

// ============================================================================
// Poll queue
// ============================================================================

func poll(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	switch cmd.PollOp {
	case "req":
		msg, count, err := tx.NextMessage(sess.ClID())
		if errors.Is(err, models.ErrNoMessages) {
			return reply(wire.CodeNoMessages)
		}
		if err != nil {
			return reply(wire.CodeCommandFailed)
		}
		return &wire.Response{
			Code: wire.CodeMessageAckToDequeue,
			MsgQ: &wire.MsgQ{
				Count:   int(count),
				ID:      strconv.FormatUint(uint64(msg.ID), 10),
				QDate:   msg.QDate,
				Message: msg.Message,
			},
		}

	case "ack":
		id, err := strconv.ParseUint(cmd.PollMsgID, 10, 64)
		if err != nil {
			return reply(wire.CodeParameterSyntax)
		}
		if err := tx.AckMessage(sess.ClID(), uint(id)); err != nil {
			if errors.Is(err, models.ErrNoMessages) {
				return reply(wire.CodeObjectNotFound)
			}
			return reply(wire.CodeCommandFailed)
		}
		remaining, err := tx.CountMessages(sess.ClID())
		if err != nil {
			return reply(wire.CodeCommandFailed)
		}
		if err := tx.Commit(); err != nil {
			return reply(wire.CodeCommandFailed)
		}
		return &wire.Response{
			Code: wire.CodeOK,
			MsgQ: &wire.MsgQ{Count: int(remaining), ID: cmd.PollMsgID},
		}

	default:
		return reply(wire.CodeParameterRange)
	}
}
