package store

import (
	"context"
	"strings"

	"github.com/qenex/regd/pkg/registry/models"
)

// Read-only lookups used by the RDAP and WHOIS front ends. They run
// outside command transactions; a single consistent row read is enough
// for a point-in-time answer.

// LookupDomain returns a domain by name (case-insensitive), with role
// contacts and nameservers loaded.
func (s *Store) LookupDomain(ctx context.Context, name string) (*models.Domain, error) {
	var d models.Domain
	err := s.db.WithContext(ctx).
		Preload("Contacts").
		Preload("Hosts").
		Where("name = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&d).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrDomainNotFound)
	}
	return &d, nil
}

// LookupContact returns a contact by its verbatim handle.
func (s *Store) LookupContact(ctx context.Context, handle string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.WithContext(ctx).Where("handle = ?", handle).First(&c).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrContactNotFound)
	}
	return &c, nil
}

// LookupHost returns a host by name (case-insensitive), addresses loaded.
func (s *Store) LookupHost(ctx context.Context, name string) (*models.Host, error) {
	var h models.Host
	err := s.db.WithContext(ctx).
		Preload("Addrs").
		Where("name = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&h).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrHostNotFound)
	}
	return &h, nil
}
