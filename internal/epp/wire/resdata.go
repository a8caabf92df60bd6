package wire

import (
	"encoding/xml"
	"time"
)

// FmtTime renders a timestamp in the UTC RFC 3339 form used everywhere in
// EPP responses.
func FmtTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// FmtDate renders the date-only form used for expiration comparisons.
func FmtDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// StatusOut renders one <status s="..."/> element.
type StatusOut struct {
	S string `xml:"s,attr"`
}

// StatusesOut converts status value strings to output elements.
func StatusesOut(statuses []string) []StatusOut {
	out := make([]StatusOut, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, StatusOut{S: s})
	}
	return out
}

// AuthInfoOut renders an <authInfo><pw>...</pw></authInfo> block.
type AuthInfoOut struct {
	PW string `xml:"pw"`
}

// ============================================================================
// Check responses
// ============================================================================

// CheckName is the availability element shared by the three mappings; the
// element name differs per mapping so each carries its own tag.
type checkNameOut struct {
	Avail int    `xml:"avail,attr"`
	Value string `xml:",chardata"`
}

// DomainCheckItem is one <cd> entry of a domain check response.
type DomainCheckItem struct {
	Name   checkNameOut `xml:"name"`
	Reason string       `xml:"reason,omitempty"`
}

// NewDomainCheckItem builds a <cd> entry. reason is only rendered for
// unavailable names.
func NewDomainCheckItem(name string, avail bool, reason string) DomainCheckItem {
	item := DomainCheckItem{Name: checkNameOut{Value: name}}
	if avail {
		item.Name.Avail = 1
	} else {
		item.Reason = reason
	}
	return item
}

// DomainCheckData is the resData of a domain check response.
type DomainCheckData struct {
	XMLName xml.Name          `xml:"urn:ietf:params:xml:ns:domain-1.0 chkData"`
	Items   []DomainCheckItem `xml:"cd"`
}

// ContactCheckItem is one <cd> entry of a contact check response.
type ContactCheckItem struct {
	ID     checkNameOut `xml:"id"`
	Reason string       `xml:"reason,omitempty"`
}

// NewContactCheckItem builds a <cd> entry for a contact handle.
func NewContactCheckItem(handle string, avail bool, reason string) ContactCheckItem {
	item := ContactCheckItem{ID: checkNameOut{Value: handle}}
	if avail {
		item.ID.Avail = 1
	} else {
		item.Reason = reason
	}
	return item
}

// ContactCheckData is the resData of a contact check response.
type ContactCheckData struct {
	XMLName xml.Name           `xml:"urn:ietf:params:xml:ns:contact-1.0 chkData"`
	Items   []ContactCheckItem `xml:"cd"`
}

// HostCheckItem is one <cd> entry of a host check response.
type HostCheckItem struct {
	Name   checkNameOut `xml:"name"`
	Reason string       `xml:"reason,omitempty"`
}

// NewHostCheckItem builds a <cd> entry for a hostname.
func NewHostCheckItem(name string, avail bool, reason string) HostCheckItem {
	item := HostCheckItem{Name: checkNameOut{Value: name}}
	if avail {
		item.Name.Avail = 1
	} else {
		item.Reason = reason
	}
	return item
}

// HostCheckData is the resData of a host check response.
type HostCheckData struct {
	XMLName xml.Name        `xml:"urn:ietf:params:xml:ns:host-1.0 chkData"`
	Items   []HostCheckItem `xml:"cd"`
}

// ============================================================================
// Info responses
// ============================================================================

// DomainContactOut renders one role-tagged contact reference.
type DomainContactOut struct {
	Type   string `xml:"type,attr"`
	Handle string `xml:",chardata"`
}

// DomainNSOut renders the <ns> block of a domain info response.
type DomainNSOut struct {
	HostObjs []string `xml:"hostObj"`
}

// DomainInfoData is the resData of a domain info response.
type DomainInfoData struct {
	XMLName    xml.Name           `xml:"urn:ietf:params:xml:ns:domain-1.0 infData"`
	Name       string             `xml:"name"`
	ROID       string             `xml:"roid"`
	Statuses   []StatusOut        `xml:"status"`
	Registrant string             `xml:"registrant,omitempty"`
	Contacts   []DomainContactOut `xml:"contact"`
	NS         *DomainNSOut       `xml:"ns,omitempty"`
	ClID       string             `xml:"clID"`
	CrDate     string             `xml:"crDate,omitempty"`
	UpDate     string             `xml:"upDate,omitempty"`
	ExDate     string             `xml:"exDate,omitempty"`
	AuthInfo   *AuthInfoOut       `xml:"authInfo,omitempty"`
}

// PostalInfoOut renders the contact postal block.
type PostalInfoOut struct {
	Type string      `xml:"type,attr"`
	Name string      `xml:"name"`
	Org  string      `xml:"org,omitempty"`
	Addr ContactAddr `xml:"addr"`
}

// ContactAddr renders the address block inside postalInfo.
type ContactAddr struct {
	Streets []string `xml:"street"`
	City    string   `xml:"city"`
	SP      string   `xml:"sp,omitempty"`
	PC      string   `xml:"pc,omitempty"`
	CC      string   `xml:"cc"`
}

// ContactInfoData is the resData of a contact info response.
type ContactInfoData struct {
	XMLName    xml.Name       `xml:"urn:ietf:params:xml:ns:contact-1.0 infData"`
	ID         string         `xml:"id"`
	ROID       string         `xml:"roid"`
	Statuses   []StatusOut    `xml:"status"`
	PostalInfo *PostalInfoOut `xml:"postalInfo,omitempty"`
	Voice      string         `xml:"voice,omitempty"`
	Fax        string         `xml:"fax,omitempty"`
	Email      string         `xml:"email"`
	ClID       string         `xml:"clID"`
	CrDate     string         `xml:"crDate,omitempty"`
	UpDate     string         `xml:"upDate,omitempty"`
}

// HostAddrOut renders one <addr ip="v4|v6"> element.
type HostAddrOut struct {
	IP      string `xml:"ip,attr"`
	Address string `xml:",chardata"`
}

// HostInfoData is the resData of a host info response.
type HostInfoData struct {
	XMLName  xml.Name      `xml:"urn:ietf:params:xml:ns:host-1.0 infData"`
	Name     string        `xml:"name"`
	ROID     string        `xml:"roid"`
	Statuses []StatusOut   `xml:"status"`
	Addrs    []HostAddrOut `xml:"addr"`
	ClID     string        `xml:"clID"`
	CrDate   string        `xml:"crDate,omitempty"`
	UpDate   string        `xml:"upDate,omitempty"`
}

// ============================================================================
// Create, renew, and transfer responses
// ============================================================================

// DomainCreateData is the resData of a domain create response.
type DomainCreateData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 creData"`
	Name    string   `xml:"name"`
	CrDate  string   `xml:"crDate"`
	ExDate  string   `xml:"exDate"`
}

// DomainRenewData is the resData of a domain renew response.
type DomainRenewData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 renData"`
	Name    string   `xml:"name"`
	ExDate  string   `xml:"exDate"`
}

// DomainTransferData is the resData of domain transfer responses and of
// transfer poll notifications.
type DomainTransferData struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 trnData"`
	Name     string   `xml:"name"`
	TrStatus string   `xml:"trStatus"`
	ReID     string   `xml:"reID"`
	ReDate   string   `xml:"reDate"`
	AcID     string   `xml:"acID"`
	AcDate   string   `xml:"acDate"`
	ExDate   string   `xml:"exDate,omitempty"`
}

// ContactCreateData is the resData of a contact create response.
type ContactCreateData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:contact-1.0 creData"`
	ID      string   `xml:"id"`
	CrDate  string   `xml:"crDate"`
}

// HostCreateData is the resData of a host create response.
type HostCreateData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:host-1.0 creData"`
	Name    string   `xml:"name"`
	CrDate  string   `xml:"crDate"`
}
