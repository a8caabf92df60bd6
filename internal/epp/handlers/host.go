package handlers

import (
	"context"
	"errors"

	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/registry/models"
)

func hostCheck(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.HostCheck)
	if len(req.Names) == 0 {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	items := make([]wire.HostCheckItem, 0, len(req.Names))
	for _, raw := range req.Names {
		name := normalizeName(raw)
		if !validHostname(name) {
			items = append(items, wire.NewHostCheckItem(raw, false, reasonInvalidHostname))
			continue
		}
		_, err := tx.GetHost(name)
		switch {
		case err == nil:
			items = append(items, wire.NewHostCheckItem(raw, false, reasonInUse))
		case errors.Is(err, models.ErrHostNotFound):
			items = append(items, wire.NewHostCheckItem(raw, true, ""))
		default:
			return reply(wire.CodeCommandFailed)
		}
	}

	return &wire.Response{
		Code:    wire.CodeOK,
		ResData: &wire.HostCheckData{Items: items},
	}
}

func hostInfo(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.HostInfo)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	h, err := tx.GetHost(name)
	if errors.Is(err, models.ErrHostNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}

	data := &wire.HostInfoData{
		Name:     h.Name,
		ROID:     hostROID(h.Name, env.ServerID),
		Statuses: wire.StatusesOut(h.Statuses),
		ClID:     h.ClID,
		CrDate:   wire.FmtTime(h.CrDate),
	}
	if !h.UpDate.IsZero() {
		data.UpDate = wire.FmtTime(h.UpDate)
	}
	for _, a := range h.Addrs {
		data.Addrs = append(data.Addrs, wire.HostAddrOut{IP: a.Version, Address: a.Address})
	}

	return &wire.Response{Code: wire.CodeOK, ResData: data}
}

func hostCreate(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.HostCreate)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}
	if !validHostname(name) {
		return replyMsg(wire.CodeParameterSyntax,
			"Parameter value syntax error; %s", reasonInvalidHostname)
	}

	addrs, ok := collectAddrs(nil, req.Addrs)
	if !ok {
		return reply(wire.CodeParameterSyntax)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	h := &models.Host{
		Name:     name,
		ClID:     sess.ClID(),
		Statuses: models.StatusSet{models.StatusOK},
		CrDate:   env.now(),
		Addrs:    addrs,
	}
	if err := tx.CreateHost(h); err != nil {
		if errors.Is(err, models.ErrHostExists) {
			return reply(wire.CodeObjectExists)
		}
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	logger.Info("Host created", "name", name, "clID", sess.ClID(), "addrs", len(addrs))
	return &wire.Response{
		Code: wire.CodeOK,
		ResData: &wire.HostCreateData{
			Name:   name,
			CrDate: wire.FmtTime(h.CrDate),
		},
	}
}

// collectAddrs validates and appends addresses, coalescing duplicates.
func collectAddrs(existing []models.HostAddr, in []wire.HostAddr) ([]models.HostAddr, bool) {
	out := existing
	for _, a := range in {
		parsed, ok := parseHostAddr(a)
		if !ok {
			return nil, false
		}
		dup := false
		for _, e := range out {
			if e.Address == parsed.Address {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, parsed)
		}
	}
	return out, true
}

func hostUpdate(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.HostUpdate)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	h, err := tx.GetHost(name)
	if errors.Is(err, models.ErrHostNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if h.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}
	if h.Statuses.Has(models.StatusClientUpdateProhibited) &&
		!contains(req.RemStatus, models.StatusClientUpdateProhibited) {
		return reply(wire.CodeStatusProhibits)
	}

	statuses, bad := applyStatusChanges(h.Statuses, req.AddStatus, req.RemStatus)
	if bad != 0 {
		return reply(bad)
	}
	h.Statuses = statuses

	addrs := h.Addrs
	if len(req.RemAddrs) > 0 {
		for _, a := range req.RemAddrs {
			parsed, ok := parseHostAddr(a)
			if !ok {
				return reply(wire.CodeParameterSyntax)
			}
			addrs = removeAddr(addrs, parsed.Address)
		}
	}
	addrs, ok := collectAddrs(addrs, req.AddAddrs)
	if !ok {
		return reply(wire.CodeParameterSyntax)
	}
	if err := tx.ReplaceHostAddrs(h.ID, addrs); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	if err := tx.SaveHost(h); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	return reply(wire.CodeOK)
}

func removeAddr(addrs []models.HostAddr, address string) []models.HostAddr {
	out := addrs[:0:0]
	for _, a := range addrs {
		if a.Address == address {
			continue
		}
		out = append(out, a)
	}
	return out
}

func hostDelete(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.HostDelete)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	h, err := tx.GetHost(name)
	if errors.Is(err, models.ErrHostNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if h.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}
	if h.Statuses.Has(models.StatusClientDeleteProhibited) {
		return reply(wire.CodeStatusProhibits)
	}

	refs, err := tx.CountDomainsReferencingHost(name)
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if refs > 0 {
		return replyMsg(wire.CodeAssociationProhibits,
			"Object association prohibits operation; host is a nameserver for %d domain(s)", refs)
	}

	if err := tx.DeleteHost(name); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	logger.Info("Host deleted", "name", name, "clID", sess.ClID())
	return reply(wire.CodeOK)
}
