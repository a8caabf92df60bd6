package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/registry/models"
	"github.com/qenex/regd/pkg/registry/store"
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func domainCheck(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainCheck)
	if len(req.Names) == 0 {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	items := make([]wire.DomainCheckItem, 0, len(req.Names))
	for _, raw := range req.Names {
		name := normalizeName(raw)
		if !validHostname(name) {
			items = append(items, wire.NewDomainCheckItem(raw, false, reasonInvalidDomain))
			continue
		}
		_, err := tx.GetDomain(name)
		switch {
		case err == nil:
			items = append(items, wire.NewDomainCheckItem(raw, false, reasonInUse))
		case errors.Is(err, models.ErrDomainNotFound):
			items = append(items, wire.NewDomainCheckItem(raw, true, ""))
		default:
			return reply(wire.CodeCommandFailed)
		}
	}

	return &wire.Response{
		Code:    wire.CodeOK,
		ResData: &wire.DomainCheckData{Items: items},
	}
}

func domainInfo(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainInfo)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	d, err := tx.GetDomain(name)
	if errors.Is(err, models.ErrDomainNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}

	return &wire.Response{
		Code:    wire.CodeOK,
		ResData: domainInfoData(env, d, sess.ClID() == d.ClID),
	}
}

// domainInfoData renders the info resData for a domain. authInfo is only
// disclosed to the sponsoring registrar.
func domainInfoData(env *Env, d *models.Domain, sponsor bool) *wire.DomainInfoData {
	data := &wire.DomainInfoData{
		Name:       d.Name,
		ROID:       domainROID(d.Name, env.ServerID),
		Statuses:   wire.StatusesOut(d.Statuses),
		Registrant: d.Registrant,
		ClID:       d.ClID,
		CrDate:     wire.FmtTime(d.CrDate),
		ExDate:     wire.FmtTime(d.ExDate),
	}
	if !d.UpDate.IsZero() {
		data.UpDate = wire.FmtTime(d.UpDate)
	}
	for _, c := range d.Contacts {
		data.Contacts = append(data.Contacts, wire.DomainContactOut{Type: c.Role, Handle: c.Handle})
	}
	if len(d.Hosts) > 0 {
		ns := &wire.DomainNSOut{}
		for _, h := range d.Hosts {
			ns.HostObjs = append(ns.HostObjs, h.Name)
		}
		data.NS = ns
	}
	if sponsor {
		data.AuthInfo = &wire.AuthInfoOut{PW: d.AuthInfo}
	}
	return data
}

func domainCreate(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainCreate)
	name := normalizeName(req.Name)
	if name == "" || req.Registrant == "" || req.AuthInfo == "" {
		return reply(wire.CodeMissingParameter)
	}
	if !validHostname(name) {
		return reply(wire.CodeParameterSyntax)
	}
	years, bad := checkPeriod(req.Period, req.PeriodUnit)
	if bad != 0 {
		return reply(bad)
	}
	for _, c := range req.Contacts {
		if !validContactRoles[c.Role] {
			return reply(wire.CodeParameterSyntax)
		}
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	if _, err := tx.GetContact(req.Registrant); err != nil {
		if errors.Is(err, models.ErrContactNotFound) {
			return replyMsg(wire.CodeObjectNotFound, "Object does not exist; contact %s", req.Registrant)
		}
		return reply(wire.CodeCommandFailed)
	}
	contacts := make([]models.DomainContact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		if _, err := tx.GetContact(c.Handle); err != nil {
			if errors.Is(err, models.ErrContactNotFound) {
				return replyMsg(wire.CodeObjectNotFound, "Object does not exist; contact %s", c.Handle)
			}
			return reply(wire.CodeCommandFailed)
		}
		contacts = append(contacts, models.DomainContact{Handle: c.Handle, Role: c.Role})
	}

	now := env.now()
	d := &models.Domain{
		Name:       name,
		ClID:       sess.ClID(),
		Registrant: req.Registrant,
		AuthInfo:   req.AuthInfo,
		Statuses:   models.StatusSet{models.StatusOK},
		CrDate:     now,
		ExDate:     now.Add(time.Duration(years) * registrationYear),
	}
	if err := tx.CreateDomain(d); err != nil {
		if errors.Is(err, models.ErrDomainExists) {
			return reply(wire.CodeObjectExists)
		}
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.SetDomainContacts(d.ID, contacts); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	// Unknown nameservers are created implicitly as address-less hosts
	// sponsored by the creating registrar.
	for _, raw := range req.NS {
		hostName := normalizeName(raw)
		if !validHostname(hostName) {
			return reply(wire.CodeParameterSyntax)
		}
		h, err := ensureHost(tx, hostName, sess.ClID(), env)
		if err != nil {
			return reply(wire.CodeCommandFailed)
		}
		if err := tx.AddDomainHost(d, h); err != nil {
			return reply(wire.CodeCommandFailed)
		}
	}

	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	logger.Info("Domain created", "name", name, "clID", sess.ClID(), "years", years)
	return &wire.Response{
		Code: wire.CodeOK,
		ResData: &wire.DomainCreateData{
			Name:   name,
			CrDate: wire.FmtTime(d.CrDate),
			ExDate: wire.FmtTime(d.ExDate),
		},
	}
}

// ensureHost fetches a host by name, creating an implicit address-less
// host record when none exists.
func ensureHost(tx *store.Txn, name, clID string, env *Env) (*models.Host, error) {
	h, err := tx.GetHost(name)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, models.ErrHostNotFound) {
		return nil, err
	}
	h = &models.Host{
		Name:     name,
		ClID:     clID,
		Statuses: models.StatusSet{models.StatusOK},
		CrDate:   env.now(),
	}
	if err := tx.CreateHost(h); err != nil {
		return nil, err
	}
	return h, nil
}

func domainUpdate(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainUpdate)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	d, err := tx.GetDomain(name)
	if errors.Is(err, models.ErrDomainNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if d.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}

	// An update is allowed through the prohibition only when it removes
	// the prohibition itself.
	if d.Statuses.Has(models.StatusClientUpdateProhibited) &&
		!contains(req.RemStatus, models.StatusClientUpdateProhibited) {
		return reply(wire.CodeStatusProhibits)
	}
	if d.Statuses.Has(models.StatusPendingTransfer) {
		return reply(wire.CodeStatusProhibits)
	}

	statuses, bad := applyStatusChanges(d.Statuses, req.AddStatus, req.RemStatus)
	if bad != 0 {
		return reply(bad)
	}
	d.Statuses = statuses

	if req.NewRegistrant != nil {
		handle := *req.NewRegistrant
		if handle == "" {
			return reply(wire.CodeParameterSyntax)
		}
		if _, err := tx.GetContact(handle); err != nil {
			if errors.Is(err, models.ErrContactNotFound) {
				return replyMsg(wire.CodeObjectNotFound, "Object does not exist; contact %s", handle)
			}
			return reply(wire.CodeCommandFailed)
		}
		d.Registrant = handle
	}
	if req.NewAuthInfo != nil {
		if *req.NewAuthInfo == "" {
			return reply(wire.CodeParameterSyntax)
		}
		d.AuthInfo = *req.NewAuthInfo
	}

	if len(req.AddContacts) > 0 || len(req.RemContacts) > 0 {
		contacts := d.Contacts
		for _, c := range req.RemContacts {
			contacts = removeRoleContact(contacts, c)
		}
		for _, c := range req.AddContacts {
			if !validContactRoles[c.Role] {
				return reply(wire.CodeParameterSyntax)
			}
			if _, err := tx.GetContact(c.Handle); err != nil {
				if errors.Is(err, models.ErrContactNotFound) {
					return replyMsg(wire.CodeObjectNotFound, "Object does not exist; contact %s", c.Handle)
				}
				return reply(wire.CodeCommandFailed)
			}
			contacts = append(contacts, models.DomainContact{Handle: c.Handle, Role: c.Role})
		}
		if err := tx.SetDomainContacts(d.ID, contacts); err != nil {
			return reply(wire.CodeCommandFailed)
		}
	}

	for _, raw := range req.RemNS {
		h, err := tx.GetHost(normalizeName(raw))
		if errors.Is(err, models.ErrHostNotFound) {
			continue
		}
		if err != nil {
			return reply(wire.CodeCommandFailed)
		}
		if err := tx.RemoveDomainHost(d, h); err != nil {
			return reply(wire.CodeCommandFailed)
		}
	}
	for _, raw := range req.AddNS {
		hostName := normalizeName(raw)
		h, err := tx.GetHost(hostName)
		if errors.Is(err, models.ErrHostNotFound) {
			return replyMsg(wire.CodeObjectNotFound, "Object does not exist; host %s", hostName)
		}
		if err != nil {
			return reply(wire.CodeCommandFailed)
		}
		if err := tx.AddDomainHost(d, h); err != nil {
			return reply(wire.CodeCommandFailed)
		}
	}

	if err := tx.SaveDomain(d); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	return reply(wire.CodeOK)
}

func removeRoleContact(contacts []models.DomainContact, rc wire.RoleContact) []models.DomainContact {
	out := contacts[:0:0]
	for _, c := range contacts {
		if c.Handle == rc.Handle && c.Role == rc.Role {
			continue
		}
		out = append(out, c)
	}
	return out
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func domainDelete(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainDelete)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	d, err := tx.GetDomain(name)
	if errors.Is(err, models.ErrDomainNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if d.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}
	if d.Statuses.Has(models.StatusClientDeleteProhibited) ||
		d.Statuses.Has(models.StatusPendingTransfer) {
		return reply(wire.CodeStatusProhibits)
	}

	if err := tx.DeleteDomain(name); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	logger.Info("Domain deleted", "name", name, "clID", sess.ClID())
	return reply(wire.CodeOK)
}

func domainRenew(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainRenew)
	name := normalizeName(req.Name)
	if name == "" || req.CurExpDate == "" {
		return reply(wire.CodeMissingParameter)
	}
	years, bad := checkPeriod(req.Period, req.PeriodUnit)
	if bad != 0 {
		return reply(bad)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	d, err := tx.GetDomain(name)
	if errors.Is(err, models.ErrDomainNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if d.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}
	if d.Statuses.Has(models.StatusPendingTransfer) {
		return reply(wire.CodeStatusProhibits)
	}

	// The client's view of the expiration must match the stored one so a
	// renew raced by another renew cannot double-extend.
	if req.CurExpDate != wire.FmtDate(d.ExDate) {
		return replyMsg(wire.CodeParameterPolicy,
			"Parameter value policy error; curExpDate does not match current expiration")
	}

	d.ExDate = d.ExDate.Add(time.Duration(years) * registrationYear)
	if err := tx.SaveDomain(d); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	logger.Info("Domain renewed", "name", name, "clID", sess.ClID(), "years", years)
	return &wire.Response{
		Code: wire.CodeOK,
		ResData: &wire.DomainRenewData{
			Name:   name,
			ExDate: wire.FmtTime(d.ExDate),
		},
	}
}

// ============================================================================
// Transfer
// ============================================================================

func domainTransfer(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.DomainTransfer)
	name := normalizeName(req.Name)
	if name == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	d, err := tx.GetDomain(name)
	if errors.Is(err, models.ErrDomainNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}

	switch cmd.TransferOp {
	case "request":
		return transferRequest(env, tx, sess, d, req)
	case "approve":
		return transferDecide(env, tx, sess, d, models.TransferClientApproved)
	case "reject":
		return transferDecide(env, tx, sess, d, models.TransferClientRejected)
	case "cancel":
		return transferCancel(env, tx, sess, d)
	case "query":
		return transferQuery(env, tx, sess, d, req)
	default:
		return reply(wire.CodeParameterRange)
	}
}

func transferRequest(env *Env, tx *store.Txn, sess *session.Session, d *models.Domain, req *wire.DomainTransfer) *wire.Response {
	if sess.ClID() == d.ClID {
		return replyMsg(wire.CodeUseError, "Command use error; registrar already sponsors object")
	}
	if req.AuthInfo == "" || req.AuthInfo != d.AuthInfo {
		return reply(wire.CodeInvalidAuthInfo)
	}
	if d.Statuses.Has(models.StatusClientTransferProhibited) {
		return reply(wire.CodeStatusProhibits)
	}
	if d.Statuses.Has(models.StatusPendingTransfer) {
		return reply(wire.CodeObjectPendingTransfer)
	}

	now := env.now()
	tr := &models.Transfer{
		DomainID:    d.ID,
		DomainName:  d.Name,
		OldClID:     d.ClID,
		NewClID:     sess.ClID(),
		Status:      models.TransferPending,
		AuthInfo:    req.AuthInfo,
		RequestDate: now,
	}
	if err := tx.CreateTransfer(tr); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	d.Statuses = normalizeStatuses(d.Statuses.Add(models.StatusPendingTransfer))
	if err := tx.SaveDomain(d); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.EnqueueMessage(tr.OldClID,
		fmt.Sprintf("Transfer of %s requested by %s.", d.Name, tr.NewClID)); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	logger.Info("Transfer requested", "name", d.Name, "from", tr.OldClID, "to", tr.NewClID)
	return &wire.Response{
		Code:    wire.CodeOKPending,
		ResData: trnData(env, d, tr),
	}
}

// transferDecide handles approve and reject by the losing sponsor. An
// approved transfer moves sponsorship to the requester and extends the
// registration by one year.
func transferDecide(env *Env, tx *store.Txn, sess *session.Session, d *models.Domain, status string) *wire.Response {
	tr, err := tx.LatestTransfer(d.Name)
	if errors.Is(err, models.ErrTransferNotFound) || (err == nil && tr.Status != models.TransferPending) {
		return reply(wire.CodeObjectNotPendingTransfer)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if sess.ClID() != tr.OldClID {
		return reply(wire.CodeAuthorizationError)
	}

	tr.Status = status
	if err := tx.SaveTransfer(tr); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	var note string
	if status == models.TransferClientApproved {
		d.ClID = tr.NewClID
		d.ExDate = d.ExDate.Add(registrationYear)
		note = fmt.Sprintf("Transfer of %s approved.", d.Name)
	} else {
		note = fmt.Sprintf("Transfer of %s rejected.", d.Name)
	}
	d.Statuses = normalizeStatuses(d.Statuses.Remove(models.StatusPendingTransfer))
	if err := tx.SaveDomain(d); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.EnqueueMessage(tr.NewClID, note); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	logger.Info("Transfer decided", "name", d.Name, "status", status)
	return &wire.Response{Code: wire.CodeOK, ResData: trnData(env, d, tr)}
}

func transferCancel(env *Env, tx *store.Txn, sess *session.Session, d *models.Domain) *wire.Response {
	tr, err := tx.LatestTransfer(d.Name)
	if errors.Is(err, models.ErrTransferNotFound) || (err == nil && tr.Status != models.TransferPending) {
		return reply(wire.CodeObjectNotPendingTransfer)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if sess.ClID() != tr.NewClID {
		return reply(wire.CodeAuthorizationError)
	}

	tr.Status = models.TransferClientCancelled
	if err := tx.SaveTransfer(tr); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	d.Statuses = normalizeStatuses(d.Statuses.Remove(models.StatusPendingTransfer))
	if err := tx.SaveDomain(d); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.EnqueueMessage(tr.OldClID,
		fmt.Sprintf("Transfer of %s cancelled.", d.Name)); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	logger.Info("Transfer cancelled", "name", d.Name)
	return &wire.Response{Code: wire.CodeOK, ResData: trnData(env, d, tr)}
}

func transferQuery(env *Env, tx *store.Txn, sess *session.Session, d *models.Domain, req *wire.DomainTransfer) *wire.Response {
	tr, err := tx.LatestTransfer(d.Name)
	if errors.Is(err, models.ErrTransferNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}

	party := sess.ClID() == tr.OldClID || sess.ClID() == tr.NewClID
	if !party && req.AuthInfo != d.AuthInfo {
		return reply(wire.CodeAuthorizationError)
	}

	return &wire.Response{Code: wire.CodeOK, ResData: trnData(env, d, tr)}
}

// trnData renders the transfer resData. For pending transfers acDate is
// the projected auto-approval instant.
func trnData(env *Env, d *models.Domain, tr *models.Transfer) *wire.DomainTransferData {
	acDate := tr.ActionDate
	if tr.Status == models.TransferPending {
		acDate = tr.RequestDate.Add(env.transferWindow())
	}
	return &wire.DomainTransferData{
		Name:     d.Name,
		TrStatus: tr.Status,
		ReID:     tr.NewClID,
		ReDate:   wire.FmtTime(tr.RequestDate),
		AcID:     tr.OldClID,
		AcDate:   wire.FmtTime(acDate),
		ExDate:   wire.FmtTime(d.ExDate),
	}
}
