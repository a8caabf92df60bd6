package wire

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
)

// ErrMalformed is returned for documents that are not well-formed XML or
// that are well-formed but not an EPP <hello> or <command>. Callers map it
// to result code 2001.
var ErrMalformed = errors.New("malformed epp document")

// ============================================================================
// Input document shapes
// ============================================================================

type eppIn struct {
	XMLName xml.Name    `xml:"urn:ietf:params:xml:ns:epp-1.0 epp"`
	Hello   *struct{}   `xml:"hello"`
	Command *commandIn  `xml:"command"`
}

type commandIn struct {
	Login    *loginIn    `xml:"login"`
	Logout   *struct{}   `xml:"logout"`
	Check    *objectIn   `xml:"check"`
	Info     *objectIn   `xml:"info"`
	Create   *objectIn   `xml:"create"`
	Update   *objectIn   `xml:"update"`
	Delete   *objectIn   `xml:"delete"`
	Renew    *objectIn   `xml:"renew"`
	Transfer *transferIn `xml:"transfer"`
	Poll     *pollIn     `xml:"poll"`
	ClTRID   string      `xml:"clTRID"`
}

type loginIn struct {
	ClID  string `xml:"clID"`
	PW    string `xml:"pw"`
	NewPW string `xml:"newPW"`
}

type pollIn struct {
	Op    string `xml:"op,attr"`
	MsgID string `xml:"msgID,attr"`
}

// objectIn collects the object-mapping child of a verb element. Inner
// holds every direct child so an unadvertised namespace can be reported
// as 2101 instead of silently ignored.
type objectIn struct {
	Inner []anyElem `xml:",any"`
}

type anyElem struct {
	XMLName xml.Name
	Raw     []byte `xml:",innerxml"`
}

type transferIn struct {
	Op    string    `xml:"op,attr"`
	Inner []anyElem `xml:",any"`
}

// ============================================================================
// Domain payloads
// ============================================================================

type domainPayloadIn struct {
	XMLName    xml.Name
	Names      []string          `xml:"name"`
	Period     *periodIn         `xml:"period"`
	NS         *domainNSIn       `xml:"ns"`
	Registrant string            `xml:"registrant"`
	Contacts   []domainContactIn `xml:"contact"`
	AuthInfo   *authInfoIn       `xml:"authInfo"`
	CurExpDate string            `xml:"curExpDate"`
	Add        *domainFrameIn    `xml:"add"`
	Rem        *domainFrameIn    `xml:"rem"`
	Chg        *domainChgIn      `xml:"chg"`
}

type periodIn struct {
	Unit  string `xml:"unit,attr"`
	Value string `xml:",chardata"`
}

type domainNSIn struct {
	HostObjs []string `xml:"hostObj"`
}

type domainContactIn struct {
	Type   string `xml:"type,attr"`
	Handle string `xml:",chardata"`
}

type authInfoIn struct {
	PW *string `xml:"pw"`
}

type statusIn struct {
	S string `xml:"s,attr"`
}

type domainFrameIn struct {
	NS       *domainNSIn       `xml:"ns"`
	Contacts []domainContactIn `xml:"contact"`
	Statuses []statusIn        `xml:"status"`
}

type domainChgIn struct {
	Registrant *string     `xml:"registrant"`
	AuthInfo   *authInfoIn `xml:"authInfo"`
}

// ============================================================================
// Contact payloads
// ============================================================================

type contactPayloadIn struct {
	XMLName    xml.Name
	IDs        []string         `xml:"id"`
	PostalInfo *postalInfoIn    `xml:"postalInfo"`
	Voice      *string          `xml:"voice"`
	Fax        *string          `xml:"fax"`
	Email      *string          `xml:"email"`
	AuthInfo   *authInfoIn      `xml:"authInfo"`
	Add        *contactFrameIn  `xml:"add"`
	Rem        *contactFrameIn  `xml:"rem"`
	Chg        *contactChgIn    `xml:"chg"`
}

type postalInfoIn struct {
	Type string    `xml:"type,attr"`
	Name *string   `xml:"name"`
	Org  *string   `xml:"org"`
	Addr *addrIn   `xml:"addr"`
}

type addrIn struct {
	Streets []string `xml:"street"`
	City    *string  `xml:"city"`
	SP      *string  `xml:"sp"`
	PC      *string  `xml:"pc"`
	CC      *string  `xml:"cc"`
}

type contactFrameIn struct {
	Statuses []statusIn `xml:"status"`
	Fax      *struct{}  `xml:"fax"`
}

type contactChgIn struct {
	PostalInfo *postalInfoIn `xml:"postalInfo"`
	Voice      *string       `xml:"voice"`
	Fax        *string       `xml:"fax"`
	Email      *string       `xml:"email"`
}

// ============================================================================
// Host payloads
// ============================================================================

type hostPayloadIn struct {
	XMLName xml.Name
	Names   []string      `xml:"name"`
	Addrs   []hostAddrIn  `xml:"addr"`
	Add     *hostFrameIn  `xml:"add"`
	Rem     *hostFrameIn  `xml:"rem"`
}

type hostAddrIn struct {
	IP      string `xml:"ip,attr"`
	Address string `xml:",chardata"`
}

type hostFrameIn struct {
	Addrs    []hostAddrIn `xml:"addr"`
	Statuses []statusIn   `xml:"status"`
}

// ============================================================================
// Parse
// ============================================================================

// Parse decodes one EPP frame payload into a semantic Command. It returns
// ErrMalformed for anything that is not an EPP <hello> or <command>; a
// known verb with a payload in an unadvertised namespace parses
// successfully with Object set to ObjectUnknown so the dispatcher can
// answer 2101.
func Parse(data []byte) (*Command, error) {
	var doc eppIn
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ErrMalformed
	}

	if doc.Hello != nil {
		return &Command{Kind: KindHello}, nil
	}
	if doc.Command == nil {
		return nil, ErrMalformed
	}
	c := doc.Command

	cmd := &Command{Kind: KindCommand, ClTRID: c.ClTRID}

	switch {
	case c.Login != nil:
		cmd.Verb = VerbLogin
		cmd.Payload = &Login{ClID: c.Login.ClID, Password: c.Login.PW, NewPassword: c.Login.NewPW}
	case c.Logout != nil:
		cmd.Verb = VerbLogout
	case c.Poll != nil:
		cmd.Verb = VerbPoll
		cmd.PollOp = c.Poll.Op
		if cmd.PollOp == "" {
			cmd.PollOp = "req"
		}
		cmd.PollMsgID = c.Poll.MsgID
	case c.Check != nil:
		parseObjectVerb(cmd, VerbCheck, c.Check.Inner)
	case c.Info != nil:
		parseObjectVerb(cmd, VerbInfo, c.Info.Inner)
	case c.Create != nil:
		parseObjectVerb(cmd, VerbCreate, c.Create.Inner)
	case c.Update != nil:
		parseObjectVerb(cmd, VerbUpdate, c.Update.Inner)
	case c.Delete != nil:
		parseObjectVerb(cmd, VerbDelete, c.Delete.Inner)
	case c.Renew != nil:
		parseObjectVerb(cmd, VerbRenew, c.Renew.Inner)
	case c.Transfer != nil:
		cmd.TransferOp = c.Transfer.Op
		if cmd.TransferOp == "" {
			cmd.TransferOp = "query"
		}
		parseObjectVerb(cmd, VerbTransfer, c.Transfer.Inner)
	default:
		return nil, ErrMalformed
	}

	return cmd, nil
}

// parseObjectVerb resolves the object mapping from the namespace of the
// verb's child element and decodes it into the matching payload struct.
func parseObjectVerb(cmd *Command, verb Verb, children []anyElem) {
	cmd.Verb = verb
	if len(children) == 0 {
		cmd.Object = ObjectNone
		return
	}

	child := children[0]
	switch child.XMLName.Space {
	case NSDomain:
		cmd.Object = ObjectDomain
		cmd.Payload = decodeDomain(verb, child)
	case NSContact:
		cmd.Object = ObjectContact
		cmd.Payload = decodeContact(verb, child)
	case NSHost:
		cmd.Object = ObjectHost
		cmd.Payload = decodeHost(verb, child)
	default:
		cmd.Object = ObjectUnknown
	}
}

func reassemble(e anyElem) []byte {
	// The captured innerxml lost the enclosing element, so rebuild it with
	// the namespace declared for the decoder.
	var b strings.Builder
	b.WriteString("<x xmlns=\"")
	b.WriteString(e.XMLName.Space)
	b.WriteString("\">")
	b.Write(e.Raw)
	b.WriteString("</x>")
	return []byte(b.String())
}

func decodeDomain(verb Verb, e anyElem) any {
	var p domainPayloadIn
	if err := xml.Unmarshal(reassemble(e), &p); err != nil {
		return nil
	}

	name := ""
	if len(p.Names) > 0 {
		name = p.Names[0]
	}

	switch verb {
	case VerbCheck:
		return &DomainCheck{Names: p.Names}
	case VerbInfo:
		return &DomainInfo{Name: name}
	case VerbDelete:
		return &DomainDelete{Name: name}
	case VerbCreate:
		dc := &DomainCreate{
			Name:       name,
			Registrant: p.Registrant,
			Contacts:   roleContacts(p.Contacts),
		}
		dc.Period, dc.PeriodUnit = parsePeriod(p.Period)
		if p.NS != nil {
			dc.NS = p.NS.HostObjs
		}
		if p.AuthInfo != nil && p.AuthInfo.PW != nil {
			dc.AuthInfo = *p.AuthInfo.PW
		}
		return dc
	case VerbRenew:
		dr := &DomainRenew{Name: name, CurExpDate: p.CurExpDate}
		dr.Period, dr.PeriodUnit = parsePeriod(p.Period)
		return dr
	case VerbTransfer:
		dt := &DomainTransfer{Name: name}
		if p.AuthInfo != nil && p.AuthInfo.PW != nil {
			dt.AuthInfo = *p.AuthInfo.PW
		}
		return dt
	case VerbUpdate:
		du := &DomainUpdate{Name: name}
		if p.Add != nil {
			if p.Add.NS != nil {
				du.AddNS = p.Add.NS.HostObjs
			}
			du.AddContacts = roleContacts(p.Add.Contacts)
			du.AddStatus = statusValues(p.Add.Statuses)
		}
		if p.Rem != nil {
			if p.Rem.NS != nil {
				du.RemNS = p.Rem.NS.HostObjs
			}
			du.RemContacts = roleContacts(p.Rem.Contacts)
			du.RemStatus = statusValues(p.Rem.Statuses)
		}
		if p.Chg != nil {
			du.NewRegistrant = p.Chg.Registrant
			if p.Chg.AuthInfo != nil && p.Chg.AuthInfo.PW != nil {
				du.NewAuthInfo = p.Chg.AuthInfo.PW
			}
		}
		return du
	}
	return nil
}

func decodeContact(verb Verb, e anyElem) any {
	var p contactPayloadIn
	if err := xml.Unmarshal(reassemble(e), &p); err != nil {
		return nil
	}

	handle := ""
	if len(p.IDs) > 0 {
		handle = p.IDs[0]
	}

	switch verb {
	case VerbCheck:
		return &ContactCheck{Handles: p.IDs}
	case VerbInfo:
		return &ContactInfo{Handle: handle}
	case VerbDelete:
		return &ContactDelete{Handle: handle}
	case VerbCreate:
		cc := &ContactCreate{Handle: handle}
		if p.PostalInfo != nil {
			cc.PostalInfo = postalInfo(p.PostalInfo)
		}
		if p.Voice != nil {
			cc.Voice = *p.Voice
		}
		if p.Fax != nil {
			cc.Fax = *p.Fax
		}
		if p.Email != nil {
			cc.Email = *p.Email
		}
		if p.AuthInfo != nil && p.AuthInfo.PW != nil {
			cc.AuthInfo = *p.AuthInfo.PW
		}
		return cc
	case VerbUpdate:
		cu := &ContactUpdate{Handle: handle}
		if p.Add != nil {
			cu.AddStatus = statusValues(p.Add.Statuses)
		}
		if p.Rem != nil {
			cu.RemStatus = statusValues(p.Rem.Statuses)
			cu.RemFax = p.Rem.Fax != nil
		}
		if p.Chg != nil {
			chg := &ContactChange{
				Voice: p.Chg.Voice,
				Fax:   p.Chg.Fax,
				Email: p.Chg.Email,
			}
			if pi := p.Chg.PostalInfo; pi != nil {
				chg.Name = pi.Name
				chg.Org = pi.Org
				if pi.Addr != nil {
					chg.Streets = pi.Addr.Streets
					chg.City = pi.Addr.City
					chg.SP = pi.Addr.SP
					chg.PC = pi.Addr.PC
					chg.CC = pi.Addr.CC
				}
			}
			cu.Chg = chg
		}
		return cu
	}
	return nil
}

func decodeHost(verb Verb, e anyElem) any {
	var p hostPayloadIn
	if err := xml.Unmarshal(reassemble(e), &p); err != nil {
		return nil
	}

	name := ""
	if len(p.Names) > 0 {
		name = p.Names[0]
	}

	switch verb {
	case VerbCheck:
		return &HostCheck{Names: p.Names}
	case VerbInfo:
		return &HostInfo{Name: name}
	case VerbDelete:
		return &HostDelete{Name: name}
	case VerbCreate:
		return &HostCreate{Name: name, Addrs: hostAddrs(p.Addrs)}
	case VerbUpdate:
		hu := &HostUpdate{Name: name}
		if p.Add != nil {
			hu.AddAddrs = hostAddrs(p.Add.Addrs)
			hu.AddStatus = statusValues(p.Add.Statuses)
		}
		if p.Rem != nil {
			hu.RemAddrs = hostAddrs(p.Rem.Addrs)
			hu.RemStatus = statusValues(p.Rem.Statuses)
		}
		return hu
	}
	return nil
}

func parsePeriod(p *periodIn) (int, string) {
	if p == nil {
		return 0, "y"
	}
	unit := p.Unit
	if unit == "" {
		unit = "y"
	}
	n, err := strconv.Atoi(strings.TrimSpace(p.Value))
	if err != nil {
		n = -1
	}
	return n, unit
}

func roleContacts(in []domainContactIn) []RoleContact {
	if len(in) == 0 {
		return nil
	}
	out := make([]RoleContact, 0, len(in))
	for _, c := range in {
		out = append(out, RoleContact{Role: c.Type, Handle: strings.TrimSpace(c.Handle)})
	}
	return out
}

func statusValues(in []statusIn) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, s.S)
	}
	return out
}

func hostAddrs(in []hostAddrIn) []HostAddr {
	if len(in) == 0 {
		return nil
	}
	out := make([]HostAddr, 0, len(in))
	for _, a := range in {
		v := a.IP
		if v == "" {
			v = "v4"
		}
		out = append(out, HostAddr{IP: strings.TrimSpace(a.Address), Version: v})
	}
	return out
}

func postalInfo(pi *postalInfoIn) *PostalInfo {
	out := &PostalInfo{Type: pi.Type}
	if pi.Name != nil {
		out.Name = *pi.Name
	}
	if pi.Org != nil {
		out.Org = *pi.Org
	}
	if pi.Addr != nil {
		out.Streets = pi.Addr.Streets
		if pi.Addr.City != nil {
			out.City = *pi.Addr.City
		}
		if pi.Addr.SP != nil {
			out.SP = *pi.Addr.SP
		}
		if pi.Addr.PC != nil {
			out.PC = *pi.Addr.PC
		}
		if pi.Addr.CC != nil {
			out.CC = *pi.Addr.CC
		}
	}
	return out
}
