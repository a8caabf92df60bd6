package wire

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"time"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n"

// Response is the semantic record a handler returns. MarshalResponse turns
// it into a complete EPP response document.
type Response struct {
	Code    int
	Msg     string // optional override; canonical text if empty
	ClTRID  string
	SvTRID  string
	ResData any   // one of the *Data structs below, or nil
	MsgQ    *MsgQ // poll queue envelope, or nil
}

// MsgQ is the <msgQ> block of a poll response.
type MsgQ struct {
	Count   int
	ID      string
	QDate   time.Time
	Message string
}

// NewSvTRID mints a server transaction identifier of the form
// <serverID>-<16 hex chars>.
func NewSvTRID(serverID string) string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// time-derived value rather than panicking mid-session.
		now := time.Now().UnixNano()
		for i := 0; i < 8; i++ {
			b[i] = byte(now >> (8 * i))
		}
	}
	return fmt.Sprintf("%s-%s", serverID, hex.EncodeToString(b[:]))
}

// ============================================================================
// Output document shapes
// ============================================================================

type eppOut struct {
	XMLName  xml.Name     `xml:"urn:ietf:params:xml:ns:epp-1.0 epp"`
	Greeting *greetingOut `xml:"greeting,omitempty"`
	Response *responseOut `xml:"response,omitempty"`
}

type responseOut struct {
	Result  resultOut   `xml:"result"`
	MsgQ    *msgQOut    `xml:"msgQ,omitempty"`
	ResData *resDataOut `xml:"resData,omitempty"`
	TrID    trIDOut     `xml:"trID"`
}

type resultOut struct {
	Code int    `xml:"code,attr"`
	Msg  string `xml:"msg"`
}

type msgQOut struct {
	Count int     `xml:"count,attr"`
	ID    string  `xml:"id,attr"`
	QDate string  `xml:"qDate,omitempty"`
	Msg   string  `xml:"msg,omitempty"`
}

type resDataOut struct {
	Inner any
}

type trIDOut struct {
	ClTRID string `xml:"clTRID,omitempty"`
	SvTRID string `xml:"svTRID"`
}

// MarshalResponse serializes a Response into a full EPP document. All
// character content passes through the XML encoder so markup in stored
// data cannot break the document.
func MarshalResponse(r *Response) ([]byte, error) {
	msg := r.Msg
	if msg == "" {
		msg = CodeMessage(r.Code)
	}

	out := &responseOut{
		Result: resultOut{Code: r.Code, Msg: msg},
		TrID:   trIDOut{ClTRID: r.ClTRID, SvTRID: r.SvTRID},
	}
	if r.MsgQ != nil {
		q := &msgQOut{Count: r.MsgQ.Count, ID: r.MsgQ.ID, Msg: r.MsgQ.Message}
		if !r.MsgQ.QDate.IsZero() {
			q.QDate = r.MsgQ.QDate.UTC().Format(time.RFC3339)
		}
		out.MsgQ = q
	}
	if r.ResData != nil {
		out.ResData = &resDataOut{Inner: r.ResData}
	}

	body, err := xml.Marshal(&eppOut{Response: out})
	if err != nil {
		return nil, fmt.Errorf("marshal epp response: %w", err)
	}
	return append([]byte(xmlHeader), body...), nil
}

// ============================================================================
// Greeting
// ============================================================================

type greetingOut struct {
	SvID    string     `xml:"svID"`
	SvDate  string     `xml:"svDate"`
	SvcMenu svcMenuOut `xml:"svcMenu"`
	DCP     dcpOut     `xml:"dcp"`
}

type svcMenuOut struct {
	Version  string        `xml:"version"`
	Lang     string        `xml:"lang"`
	ObjURIs  []string      `xml:"objURI"`
	SvcExt   *svcExtOut    `xml:"svcExtension,omitempty"`
}

type svcExtOut struct {
	ExtURIs []string `xml:"extURI"`
}

type dcpOut struct {
	Access    dcpAccessOut    `xml:"access"`
	Statement dcpStatementOut `xml:"statement"`
}

type dcpAccessOut struct {
	All *struct{} `xml:"all,omitempty"`
}

type dcpStatementOut struct {
	Purpose   dcpPurposeOut   `xml:"purpose"`
	Recipient dcpRecipientOut `xml:"recipient"`
	Retention dcpRetentionOut `xml:"retention"`
}

type dcpPurposeOut struct {
	Admin *struct{} `xml:"admin,omitempty"`
	Prov  *struct{} `xml:"prov,omitempty"`
}

type dcpRecipientOut struct {
	Ours   *struct{} `xml:"ours,omitempty"`
	Public *struct{} `xml:"public,omitempty"`
}

type dcpRetentionOut struct {
	Stated *struct{} `xml:"stated,omitempty"`
}

// MarshalGreeting builds the server greeting sent on connect and in reply
// to <hello>. The service menu advertises the three object mappings and
// the rgp/secDNS extensions.
func MarshalGreeting(serverID string, now time.Time) ([]byte, error) {
	present := &struct{}{}
	g := &greetingOut{
		SvID:   serverID,
		SvDate: now.UTC().Format(time.RFC3339),
		SvcMenu: svcMenuOut{
			Version: "1.0",
			Lang:    "en",
			ObjURIs: []string{NSDomain, NSContact, NSHost},
			SvcExt:  &svcExtOut{ExtURIs: []string{NSRGP, NSSecDNS}},
		},
		DCP: dcpOut{
			Access: dcpAccessOut{All: present},
			Statement: dcpStatementOut{
				Purpose:   dcpPurposeOut{Admin: present, Prov: present},
				Recipient: dcpRecipientOut{Ours: present, Public: present},
				Retention: dcpRetentionOut{Stated: present},
			},
		},
	}

	body, err := xml.Marshal(&eppOut{Greeting: g})
	if err != nil {
		return nil, fmt.Errorf("marshal epp greeting: %w", err)
	}
	return append([]byte(xmlHeader), body...), nil
}
