// Package models defines the persisted registry objects shared by the EPP,
// RDAP, and WHOIS front ends: domains, contacts, hosts, their associations,
// transfer records, and registrar accounts.
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Status tokens attached to registry objects. A token gates operations on
// the object it is attached to (RFC 5731/5732/5733 status values).
const (
	StatusOK                     = "ok"
	StatusClientDeleteProhibited = "clientDeleteProhibited"
	StatusClientUpdateProhibited = "clientUpdateProhibited"
	StatusClientTransferProhibited = "clientTransferProhibited"
	StatusClientHold             = "clientHold"
	StatusPendingTransfer        = "pendingTransfer"
)

// Transfer states as they appear on the wire in <domain:trStatus>.
const (
	TransferPending         = "pending"
	TransferClientApproved  = "clientApproved"
	TransferClientRejected  = "clientRejected"
	TransferClientCancelled = "clientCancelled"
	TransferServerApproved  = "serverApproved"
	TransferServerCancelled = "serverCancelled"
)

// StatusSet is an unordered set of status tokens persisted as a single
// space-joined column so it works identically on SQLite and PostgreSQL.
type StatusSet []string

// Value implements driver.Valuer.
func (s StatusSet) Value() (driver.Value, error) {
	return strings.Join(s, " "), nil
}

// Scan implements sql.Scanner.
func (s *StatusSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case string:
		*s = splitStatuses(v)
	case []byte:
		*s = splitStatuses(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StatusSet", src)
	}
	return nil
}

func splitStatuses(v string) StatusSet {
	if v == "" {
		return nil
	}
	return StatusSet(strings.Fields(v))
}

// Has reports whether the set contains the given token.
func (s StatusSet) Has(token string) bool {
	for _, t := range s {
		if t == token {
			return true
		}
	}
	return false
}

// Add returns the set with token added. Adding an existing token is a no-op.
func (s StatusSet) Add(token string) StatusSet {
	if s.Has(token) {
		return s
	}
	return append(s, token)
}

// Remove returns the set with token removed. Removing a missing token is a
// no-op.
func (s StatusSet) Remove(token string) StatusSet {
	out := s[:0:0]
	for _, t := range s {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}

// Registrar is an accredited EPP client account. The ID is the clID used at
// login and recorded as the sponsoring client of registry objects.
type Registrar struct {
	ID           string `gorm:"primaryKey;size:16"`
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Domain is a registered domain name. Name is the lowercased FQDN and is
// globally unique. Contacts are referenced by handle: the registrant
// directly, the role-tagged contacts through DomainContact rows.
type Domain struct {
	ID         uint      `gorm:"primaryKey"`
	Name       string    `gorm:"uniqueIndex;size:255;not null"`
	ClID       string    `gorm:"index;size:16;not null"`
	Registrant string    `gorm:"index;size:64"`
	AuthInfo   string    `gorm:"not null"`
	Statuses   StatusSet `gorm:"type:text"`
	CrDate     time.Time
	ExDate     time.Time
	UpDate     time.Time

	Contacts []DomainContact `gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE"`
	Hosts    []Host          `gorm:"many2many:domain_nameservers;"`
}

// DomainContact associates a contact handle with a domain under a role
// (admin, tech, billing). The registrant is stored on Domain directly.
type DomainContact struct {
	ID       uint   `gorm:"primaryKey"`
	DomainID uint   `gorm:"uniqueIndex:idx_domain_contact_role;not null"`
	Handle   string `gorm:"uniqueIndex:idx_domain_contact_role;index;size:64;not null"`
	Role     string `gorm:"uniqueIndex:idx_domain_contact_role;size:16;not null"`
}

// Contact is a registrant/admin/tech/billing contact object. The handle is
// the protocol identity and is stored verbatim (case-sensitive).
type Contact struct {
	ID       uint      `gorm:"primaryKey"`
	Handle   string    `gorm:"uniqueIndex;size:64;not null"`
	ClID     string    `gorm:"index;size:16;not null"`
	Name     string    `gorm:"not null"`
	Org      string
	Street1  string
	Street2  string
	Street3  string
	City     string `gorm:"not null"`
	SP       string
	PC       string `gorm:"not null"`
	CC       string `gorm:"size:2;not null"`
	Voice    string `gorm:"not null"`
	Fax      string
	Email    string    `gorm:"not null"`
	Statuses StatusSet `gorm:"type:text"`
	CrDate   time.Time
	UpDate   time.Time
}

// Host is a name-server object. Name is the lowercased hostname and is
// globally unique. A host created implicitly by a domain:create hostObj
// reference has no addresses.
type Host struct {
	ID       uint      `gorm:"primaryKey"`
	Name     string    `gorm:"uniqueIndex;size:255;not null"`
	ClID     string    `gorm:"index;size:16"`
	Statuses StatusSet `gorm:"type:text"`
	CrDate   time.Time
	UpDate   time.Time

	Addrs []HostAddr `gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE"`
}

// HostAddr is a single IP address attached to a host, tagged v4 or v6.
// An address is unique per host.
type HostAddr struct {
	ID      uint   `gorm:"primaryKey"`
	HostID  uint   `gorm:"uniqueIndex:idx_host_addr;not null"`
	Address string `gorm:"uniqueIndex:idx_host_addr;size:45;not null"`
	Version string `gorm:"size:2;not null"`
}

// Transfer records one sponsorship-transfer exchange for a domain. The
// AuthInfo captured at request time is kept so a later query by authInfo
// can be authorized against the value that opened the transfer.
type Transfer struct {
	ID          string `gorm:"primaryKey;size:36"`
	DomainID    uint   `gorm:"index;not null"`
	DomainName  string `gorm:"index;size:255;not null"`
	OldClID     string `gorm:"size:16;not null"`
	NewClID     string `gorm:"size:16;not null"`
	Status      string `gorm:"size:32;not null"`
	AuthInfo    string
	RequestDate time.Time
	ActionDate  time.Time
}

// PollMessage is a queued service message for a registrar, dequeued via
// poll op=ack. Transfer activity enqueues messages for the losing sponsor.
type PollMessage struct {
	ID      uint   `gorm:"primaryKey"`
	ClID    string `gorm:"index;size:16;not null"`
	Message string `gorm:"not null"`
	QDate   time.Time
}

// AllModels returns every model for store auto-migration, association
// tables included implicitly by GORM.
func AllModels() []any {
	return []any{
		&Registrar{},
		&Domain{},
		&DomainContact{},
		&Contact{},
		&Host{},
		&HostAddr{},
		&Transfer{},
		&PollMessage{},
	}
}
