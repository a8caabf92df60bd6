package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/qenex/regd/internal/epp/session"
	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/registry/models"
)

func contactCheck(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.ContactCheck)
	if len(req.Handles) == 0 {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	items := make([]wire.ContactCheckItem, 0, len(req.Handles))
	for _, handle := range req.Handles {
		if !validHandle(handle) {
			items = append(items, wire.NewContactCheckItem(handle, false, "Invalid contact handle"))
			continue
		}
		_, err := tx.GetContact(handle)
		switch {
		case err == nil:
			items = append(items, wire.NewContactCheckItem(handle, false, reasonInUse))
		case errors.Is(err, models.ErrContactNotFound):
			items = append(items, wire.NewContactCheckItem(handle, true, ""))
		default:
			return reply(wire.CodeCommandFailed)
		}
	}

	return &wire.Response{
		Code:    wire.CodeOK,
		ResData: &wire.ContactCheckData{Items: items},
	}
}

func contactInfo(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.ContactInfo)
	if req.Handle == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	c, err := tx.GetContact(req.Handle)
	if errors.Is(err, models.ErrContactNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}

	data := &wire.ContactInfoData{
		ID:       c.Handle,
		ROID:     contactROID(c.Handle),
		Statuses: wire.StatusesOut(c.Statuses),
		Voice:    c.Voice,
		Fax:      c.Fax,
		Email:    c.Email,
		ClID:     c.ClID,
		CrDate:   wire.FmtTime(c.CrDate),
		PostalInfo: &wire.PostalInfoOut{
			Type: "loc",
			Name: c.Name,
			Org:  c.Org,
			Addr: wire.ContactAddr{
				Streets: contactStreets(c),
				City:    c.City,
				SP:      c.SP,
				PC:      c.PC,
				CC:      c.CC,
			},
		},
	}
	if !c.UpDate.IsZero() {
		data.UpDate = wire.FmtTime(c.UpDate)
	}

	return &wire.Response{Code: wire.CodeOK, ResData: data}
}

func contactStreets(c *models.Contact) []string {
	var streets []string
	for _, s := range []string{c.Street1, c.Street2, c.Street3} {
		if s != "" {
			streets = append(streets, s)
		}
	}
	return streets
}

func contactCreate(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.ContactCreate)
	if req.Handle == "" || req.Email == "" || req.Voice == "" || req.PostalInfo == nil ||
		req.PostalInfo.Name == "" || len(req.PostalInfo.Streets) == 0 ||
		req.PostalInfo.City == "" || req.PostalInfo.PC == "" || req.PostalInfo.CC == "" {
		return reply(wire.CodeMissingParameter)
	}
	if !validHandle(req.Handle) {
		return reply(wire.CodeParameterSyntax)
	}
	if len(req.PostalInfo.CC) != 2 {
		return reply(wire.CodeParameterSyntax)
	}
	if !strings.Contains(req.Email, "@") {
		return reply(wire.CodeParameterSyntax)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	c := &models.Contact{
		Handle:   req.Handle,
		ClID:     sess.ClID(),
		Name:     req.PostalInfo.Name,
		Org:      req.PostalInfo.Org,
		City:     req.PostalInfo.City,
		SP:       req.PostalInfo.SP,
		PC:       req.PostalInfo.PC,
		CC:       strings.ToUpper(req.PostalInfo.CC),
		Voice:    req.Voice,
		Fax:      req.Fax,
		Email:    req.Email,
		Statuses: models.StatusSet{models.StatusOK},
		CrDate:   env.now(),
	}
	setStreets(c, req.PostalInfo.Streets)

	if err := tx.CreateContact(c); err != nil {
		if errors.Is(err, models.ErrContactExists) {
			return reply(wire.CodeObjectExists)
		}
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}

	logger.Info("Contact created", "handle", c.Handle, "clID", sess.ClID())
	return &wire.Response{
		Code: wire.CodeOK,
		ResData: &wire.ContactCreateData{
			ID:     c.Handle,
			CrDate: wire.FmtTime(c.CrDate),
		},
	}
}

func setStreets(c *models.Contact, streets []string) {
	c.Street1, c.Street2, c.Street3 = "", "", ""
	if len(streets) > 0 {
		c.Street1 = streets[0]
	}
	if len(streets) > 1 {
		c.Street2 = streets[1]
	}
	if len(streets) > 2 {
		c.Street3 = streets[2]
	}
}

func contactUpdate(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.ContactUpdate)
	if req.Handle == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	c, err := tx.GetContact(req.Handle)
	if errors.Is(err, models.ErrContactNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if c.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}
	if c.Statuses.Has(models.StatusClientUpdateProhibited) &&
		!contains(req.RemStatus, models.StatusClientUpdateProhibited) {
		return reply(wire.CodeStatusProhibits)
	}

	statuses, bad := applyStatusChanges(c.Statuses, req.AddStatus, req.RemStatus)
	if bad != 0 {
		return reply(bad)
	}
	c.Statuses = statuses

	if chg := req.Chg; chg != nil {
		// Mandatory fields may be changed but never cleared.
		for _, field := range []struct {
			val *string
			dst *string
		}{
			{chg.Name, &c.Name},
			{chg.City, &c.City},
			{chg.PC, &c.PC},
			{chg.Voice, &c.Voice},
			{chg.Email, &c.Email},
		} {
			if field.val != nil {
				if *field.val == "" {
					return reply(wire.CodeParameterSyntax)
				}
				*field.dst = *field.val
			}
		}
		if chg.CC != nil {
			if len(*chg.CC) != 2 {
				return reply(wire.CodeParameterSyntax)
			}
			c.CC = strings.ToUpper(*chg.CC)
		}
		if chg.Email != nil && !strings.Contains(c.Email, "@") {
			return reply(wire.CodeParameterSyntax)
		}
		if chg.Org != nil {
			c.Org = *chg.Org
		}
		if chg.SP != nil {
			c.SP = *chg.SP
		}
		if chg.Fax != nil {
			c.Fax = *chg.Fax
		}
		if chg.Streets != nil {
			// The first street line is mandatory too.
			if len(chg.Streets) == 0 || chg.Streets[0] == "" {
				return reply(wire.CodeParameterSyntax)
			}
			setStreets(c, chg.Streets)
		}
	}

	if req.RemFax {
		c.Fax = ""
	}

	if err := tx.SaveContact(c); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	return reply(wire.CodeOK)
}

func contactDelete(ctx context.Context, env *Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	req := cmd.Payload.(*wire.ContactDelete)
	if req.Handle == "" {
		return reply(wire.CodeMissingParameter)
	}

	tx := env.Store.Begin(ctx)
	defer tx.Rollback()

	c, err := tx.GetContact(req.Handle)
	if errors.Is(err, models.ErrContactNotFound) {
		return reply(wire.CodeObjectNotFound)
	}
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if c.ClID != sess.ClID() {
		return reply(wire.CodeAuthorizationError)
	}
	if c.Statuses.Has(models.StatusClientDeleteProhibited) {
		return reply(wire.CodeStatusProhibits)
	}

	refs, err := tx.CountDomainsReferencingContact(req.Handle)
	if err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if refs > 0 {
		return replyMsg(wire.CodeAssociationProhibits,
			"Object association prohibits operation; contact is referenced by %d domain(s)", refs)
	}

	if err := tx.DeleteContact(req.Handle); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	if err := tx.Commit(); err != nil {
		return reply(wire.CodeCommandFailed)
	}
	logger.Info("Contact deleted", "handle", req.Handle, "clID", sess.ClID())
	return reply(wire.CodeOK)
}
