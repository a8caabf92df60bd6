// Package wire implements the EPP XML layer: it parses incoming EPP
// documents into semantic command records and serializes response records
// back into EPP XML. Handlers only ever see the semantic records; nothing
// above this package touches XML.
package wire

// XML namespaces of the EPP envelope and the three object mappings.
const (
	NSEPP     = "urn:ietf:params:xml:ns:epp-1.0"
	NSDomain  = "urn:ietf:params:xml:ns:domain-1.0"
	NSContact = "urn:ietf:params:xml:ns:contact-1.0"
	NSHost    = "urn:ietf:params:xml:ns:host-1.0"

	// Extension namespaces advertised in the greeting. Advertised only;
	// no extension handlers are registered.
	NSRGP    = "urn:ietf:params:xml:ns:rgp-1.0"
	NSSecDNS = "urn:ietf:params:xml:ns:secDNS-1.1"
)

// Kind discriminates the top-level message kinds of an EPP document.
type Kind int

const (
	KindHello Kind = iota
	KindCommand
)

// Verb is an EPP command verb.
type Verb string

const (
	VerbLogin    Verb = "login"
	VerbLogout   Verb = "logout"
	VerbCheck    Verb = "check"
	VerbInfo     Verb = "info"
	VerbCreate   Verb = "create"
	VerbUpdate   Verb = "update"
	VerbDelete   Verb = "delete"
	VerbRenew    Verb = "renew"
	VerbTransfer Verb = "transfer"
	VerbPoll     Verb = "poll"
)

// Object identifies the object mapping of a command payload by its XML
// namespace.
type Object string

const (
	ObjectNone    Object = ""
	ObjectDomain  Object = "domain"
	ObjectContact Object = "contact"
	ObjectHost    Object = "host"
	ObjectUnknown Object = "unknown"
)

// Command is the semantic record produced by Parse. Payload holds one of
// the typed payload structs below depending on (Verb, Object).
type Command struct {
	Kind       Kind
	Verb       Verb
	Object     Object
	TransferOp string // request/approve/reject/cancel/query; query if absent
	PollOp     string // req/ack; req if absent
	PollMsgID  string // msgID attribute of poll op=ack
	ClTRID     string
	Payload    any
}

// Login carries the <login> credentials.
type Login struct {
	ClID        string
	Password    string
	NewPassword string
}

// RoleContact is a contact handle tagged with its domain role.
type RoleContact struct {
	Role   string
	Handle string
}

// DomainCheck asks for availability of one or more names.
type DomainCheck struct {
	Names []string
}

// DomainInfo asks for the full record of one domain.
type DomainInfo struct {
	Name string
}

// DomainCreate registers a new domain.
type DomainCreate struct {
	Name       string
	Period     int    // years; 0 means absent (defaults to 1)
	PeriodUnit string // "y" or the rejected unit as sent
	Registrant string
	Contacts   []RoleContact
	NS         []string // host object names
	AuthInfo   string
}

// DomainUpdate applies add/rem/chg blocks to a domain.
type DomainUpdate struct {
	Name          string
	AddNS         []string
	RemNS         []string
	AddStatus     []string
	RemStatus     []string
	AddContacts   []RoleContact
	RemContacts   []RoleContact
	NewAuthInfo   *string
	NewRegistrant *string
}

// DomainDelete removes a domain.
type DomainDelete struct {
	Name string
}

// DomainRenew extends a registration. CurExpDate is the client's view of
// the current expiration (date-only, RFC 3339 date form) used for
// optimistic concurrency.
type DomainRenew struct {
	Name       string
	CurExpDate string
	Period     int
	PeriodUnit string
}

// DomainTransfer carries the transfer target and the authInfo presented
// by the requesting client. The op attribute travels on Command.
type DomainTransfer struct {
	Name     string
	AuthInfo string
}

// PostalInfo is the contact postal block. Optional fields that must
// distinguish absent from empty are pointers.
type PostalInfo struct {
	Type    string // loc or int
	Name    string
	Org     string
	Streets []string
	City    string
	SP      string
	PC      string
	CC      string
}

// ContactCheck asks for availability of one or more handles.
type ContactCheck struct {
	Handles []string
}

// ContactInfo asks for the full record of one contact.
type ContactInfo struct {
	Handle string
}

// ContactCreate creates a new contact object.
type ContactCreate struct {
	Handle     string
	PostalInfo *PostalInfo
	Voice      string
	Fax        string
	Email      string
	AuthInfo   string
}

// ContactChange is the chg block of a contact update. Nil pointers mean
// the field is untouched; empty strings mean an attempt to clear it.
type ContactChange struct {
	Name    *string
	Org     *string
	Streets []string // nil: untouched
	City    *string
	SP      *string
	PC      *string
	CC      *string
	Voice   *string
	Fax     *string
	Email   *string
}

// ContactUpdate applies add/rem/chg blocks to a contact.
type ContactUpdate struct {
	Handle    string
	Chg       *ContactChange
	RemFax    bool // <rem><fax/></rem> clears the fax number
	AddStatus []string
	RemStatus []string
}

// ContactDelete removes a contact.
type ContactDelete struct {
	Handle string
}

// HostAddr is an IP address tagged with its version.
type HostAddr struct {
	IP      string
	Version string // v4 or v6; v4 if absent
}

// HostCheck asks for availability of one or more hostnames.
type HostCheck struct {
	Names []string
}

// HostInfo asks for the full record of one host.
type HostInfo struct {
	Name string
}

// HostCreate creates a new host object.
type HostCreate struct {
	Name  string
	Addrs []HostAddr
}

// HostUpdate applies add/rem blocks to a host.
type HostUpdate struct {
	Name      string
	AddAddrs  []HostAddr
	RemAddrs  []HostAddr
	AddStatus []string
	RemStatus []string
}

// HostDelete removes a host.
type HostDelete struct {
	Name string
}
