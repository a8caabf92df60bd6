// Package rdap implements the RDAP front end (RFC 7480/9083): read-only
// JSON lookups of domains, nameservers, and entities over HTTP.
package rdap

import (
	"strings"
	"time"

	"github.com/qenex/regd/pkg/registry/models"
)

const conformanceLevel = "rdap_level_0"

// Domain is the RDAP domain object class.
type Domain struct {
	RDAPConformance []string     `json:"rdapConformance,omitempty"`
	ObjectClassName string       `json:"objectClassName"`
	Handle          string       `json:"handle"`
	LDHName         string       `json:"ldhName"`
	Status          []string     `json:"status,omitempty"`
	Events          []Event      `json:"events,omitempty"`
	Entities        []Entity     `json:"entities,omitempty"`
	Nameservers     []Nameserver `json:"nameservers,omitempty"`
	Links           []Link       `json:"links,omitempty"`
	Port43          string       `json:"port43,omitempty"`
}

// Nameserver is the RDAP nameserver object class.
type Nameserver struct {
	RDAPConformance []string     `json:"rdapConformance,omitempty"`
	ObjectClassName string       `json:"objectClassName"`
	Handle          string       `json:"handle,omitempty"`
	LDHName         string       `json:"ldhName"`
	Status          []string     `json:"status,omitempty"`
	IPAddresses     *IPAddresses `json:"ipAddresses,omitempty"`
	Events          []Event      `json:"events,omitempty"`
	Links           []Link       `json:"links,omitempty"`
}

// IPAddresses carries the v4/v6 address lists of a nameserver.
type IPAddresses struct {
	V4 []string `json:"v4,omitempty"`
	V6 []string `json:"v6,omitempty"`
}

// Entity is the RDAP entity object class. Contact details are rendered
// as a jCard per RFC 9083 §5.1.
type Entity struct {
	RDAPConformance []string `json:"rdapConformance,omitempty"`
	ObjectClassName string   `json:"objectClassName"`
	Handle          string   `json:"handle"`
	Roles           []string `json:"roles,omitempty"`
	VCardArray      []any    `json:"vcardArray,omitempty"`
	Status          []string `json:"status,omitempty"`
	Events          []Event  `json:"events,omitempty"`
}

// Event is a dated lifecycle event.
type Event struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

// Link is an RDAP link object.
type Link struct {
	Value string `json:"value,omitempty"`
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
}

// ErrorResponse is the RDAP error body.
type ErrorResponse struct {
	RDAPConformance []string `json:"rdapConformance"`
	ErrorCode       int      `json:"errorCode"`
	Title           string   `json:"title"`
	Description     []string `json:"description,omitempty"`
}

// Help is the /help response.
type Help struct {
	RDAPConformance []string  `json:"rdapConformance"`
	Notices         []Notice  `json:"notices"`
}

// Notice is an RDAP notice object.
type Notice struct {
	Title       string   `json:"title"`
	Description []string `json:"description"`
}

func rdapTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// domainObject renders a stored domain as an RDAP domain.
func domainObject(d *models.Domain, serverID, baseURL string) *Domain {
	roid := strings.ToUpper(strings.ReplaceAll(d.Name, ".", "-")) + "-" + serverID
	out := &Domain{
		RDAPConformance: []string{conformanceLevel},
		ObjectClassName: "domain",
		Handle:          roid,
		LDHName:         d.Name,
		Status:          d.Statuses,
		Events: []Event{
			{Action: "registration", Date: rdapTime(d.CrDate)},
			{Action: "expiration", Date: rdapTime(d.ExDate)},
		},
	}
	if !d.UpDate.IsZero() {
		out.Events = append(out.Events, Event{Action: "last changed", Date: rdapTime(d.UpDate)})
	}

	if d.Registrant != "" {
		out.Entities = append(out.Entities, Entity{
			ObjectClassName: "entity",
			Handle:          d.Registrant,
			Roles:           []string{"registrant"},
		})
	}
	for _, c := range d.Contacts {
		role := c.Role
		if role == "admin" {
			role = "administrative"
		}
		out.Entities = append(out.Entities, Entity{
			ObjectClassName: "entity",
			Handle:          c.Handle,
			Roles:           []string{role},
		})
	}
	for _, h := range d.Hosts {
		out.Nameservers = append(out.Nameservers, Nameserver{
			ObjectClassName: "nameserver",
			LDHName:         h.Name,
		})
	}
	if baseURL != "" {
		out.Links = []Link{{
			Value: baseURL + "/domain/" + d.Name,
			Rel:   "self",
			Href:  baseURL + "/domain/" + d.Name,
			Type:  "application/rdap+json",
		}}
	}
	return out
}

// nameserverObject renders a stored host as an RDAP nameserver.
func nameserverObject(h *models.Host, serverID string) *Nameserver {
	roid := strings.ToUpper(strings.ReplaceAll(h.Name, ".", "-")) + "-" + serverID
	out := &Nameserver{
		RDAPConformance: []string{conformanceLevel},
		ObjectClassName: "nameserver",
		Handle:          roid,
		LDHName:         h.Name,
		Status:          h.Statuses,
	}
	if !h.CrDate.IsZero() {
		out.Events = append(out.Events, Event{Action: "registration", Date: rdapTime(h.CrDate)})
	}
	var v4, v6 []string
	for _, a := range h.Addrs {
		if a.Version == "v6" {
			v6 = append(v6, a.Address)
		} else {
			v4 = append(v4, a.Address)
		}
	}
	if len(v4) > 0 || len(v6) > 0 {
		out.IPAddresses = &IPAddresses{V4: v4, V6: v6}
	}
	return out
}

// entityObject renders a stored contact as an RDAP entity with a jCard.
func entityObject(c *models.Contact) *Entity {
	adr := []string{"", "", c.Street1, c.City, c.SP, c.PC, c.CC}
	vcard := []any{
		"vcard",
		[]any{
			[]any{"version", map[string]any{}, "text", "4.0"},
			[]any{"fn", map[string]any{}, "text", c.Name},
			[]any{"org", map[string]any{}, "text", c.Org},
			[]any{"adr", map[string]any{}, "text", adr},
			[]any{"tel", map[string]any{"type": "voice"}, "uri", "tel:" + c.Voice},
			[]any{"email", map[string]any{}, "text", c.Email},
		},
	}
	out := &Entity{
		RDAPConformance: []string{conformanceLevel},
		ObjectClassName: "entity",
		Handle:          c.Handle,
		VCardArray:      vcard,
		Status:          c.Statuses,
		Events: []Event{
			{Action: "registration", Date: rdapTime(c.CrDate)},
		},
	}
	if !c.UpDate.IsZero() {
		out.Events = append(out.Events, Event{Action: "last changed", Date: rdapTime(c.UpDate)})
	}
	return out
}
