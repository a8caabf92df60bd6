package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qenex/regd/pkg/registry/models"
)

// Txn is a store transaction scoped to a single EPP command. Handlers hold
// exactly one Txn for the duration of a command and must end it with
// Commit or Rollback; Rollback after Commit is a no-op so callers can
// `defer tx.Rollback()` on every path.
type Txn struct {
	db   *gorm.DB
	done bool
}

// Commit commits the transaction.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.db.Commit().Error
}

// Rollback rolls the transaction back. Safe to call after Commit.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.db.Rollback()
}

// ============================================
// DOMAIN OPERATIONS
// ============================================

// GetDomain returns the domain with the given (lowercased) name, with
// role contacts and nameserver hosts loaded.
func (t *Txn) GetDomain(name string) (*models.Domain, error) {
	var d models.Domain
	err := t.db.
		Preload("Contacts").
		Preload("Hosts").
		Where("name = ?", name).
		First(&d).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrDomainNotFound)
	}
	return &d, nil
}

// CreateDomain inserts a new domain. A duplicate name maps to
// models.ErrDomainExists.
func (t *Txn) CreateDomain(d *models.Domain) error {
	if err := t.db.Create(d).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDomainExists
		}
		return err
	}
	return nil
}

// SaveDomain persists mutations to an existing domain record, stamping
// the last-update timestamp.
func (t *Txn) SaveDomain(d *models.Domain) error {
	d.UpDate = time.Now().UTC()
	return t.db.Omit("Contacts", "Hosts").Save(d).Error
}

// DeleteDomain removes a domain and its association rows. Contacts and
// hosts are never cascade-deleted.
func (t *Txn) DeleteDomain(name string) error {
	d, err := t.GetDomain(name)
	if err != nil {
		return err
	}
	if err := t.db.Model(d).Association("Hosts").Clear(); err != nil {
		return err
	}
	if err := t.db.Where("domain_id = ?", d.ID).Delete(&models.DomainContact{}).Error; err != nil {
		return err
	}
	return t.db.Delete(d).Error
}

// SetDomainContacts replaces the role-tagged contact rows of a domain.
func (t *Txn) SetDomainContacts(domainID uint, contacts []models.DomainContact) error {
	if err := t.db.Where("domain_id = ?", domainID).Delete(&models.DomainContact{}).Error; err != nil {
		return err
	}
	for i := range contacts {
		contacts[i].DomainID = domainID
		contacts[i].ID = 0
	}
	if len(contacts) == 0 {
		return nil
	}
	return t.db.Create(&contacts).Error
}

// AddDomainHost links a host to a domain as a nameserver. Linking an
// already-linked host is a no-op.
func (t *Txn) AddDomainHost(d *models.Domain, h *models.Host) error {
	for _, existing := range d.Hosts {
		if existing.ID == h.ID {
			return nil
		}
	}
	return t.db.Model(d).Association("Hosts").Append(h)
}

// RemoveDomainHost unlinks a host from a domain. Removing a host that is
// not linked is a no-op.
func (t *Txn) RemoveDomainHost(d *models.Domain, h *models.Host) error {
	return t.db.Model(d).Association("Hosts").Delete(h)
}

// ============================================
// CONTACT OPERATIONS
// ============================================

// GetContact returns the contact with the given handle.
func (t *Txn) GetContact(handle string) (*models.Contact, error) {
	var c models.Contact
	err := t.db.Where("handle = ?", handle).First(&c).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrContactNotFound)
	}
	return &c, nil
}

// CreateContact inserts a new contact. A duplicate handle maps to
// models.ErrContactExists.
func (t *Txn) CreateContact(c *models.Contact) error {
	if err := t.db.Create(c).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrContactExists
		}
		return err
	}
	return nil
}

// SaveContact persists mutations to an existing contact, stamping the
// last-update timestamp.
func (t *Txn) SaveContact(c *models.Contact) error {
	c.UpDate = time.Now().UTC()
	return t.db.Save(c).Error
}

// DeleteContact removes a contact. A contact referenced by any domain in
// any role fails with models.ErrContactInUse.
func (t *Txn) DeleteContact(handle string) error {
	c, err := t.GetContact(handle)
	if err != nil {
		return err
	}
	n, err := t.CountDomainsReferencingContact(handle)
	if err != nil {
		return err
	}
	if n > 0 {
		return models.ErrContactInUse
	}
	return t.db.Delete(c).Error
}

// CountDomainsReferencingContact counts distinct domains that reference
// the handle either as registrant or through any contact role.
func (t *Txn) CountDomainsReferencingContact(handle string) (int64, error) {
	var n int64
	err := t.db.Raw(`
		SELECT COUNT(*) FROM (
			SELECT id FROM domains WHERE registrant = ?
			UNION
			SELECT domain_id FROM domain_contacts WHERE handle = ?
		) AS refs`, handle, handle).Scan(&n).Error
	return n, err
}

// ============================================
// HOST OPERATIONS
// ============================================

// GetHost returns the host with the given (lowercased) name, addresses
// loaded.
func (t *Txn) GetHost(name string) (*models.Host, error) {
	var h models.Host
	err := t.db.Preload("Addrs").Where("name = ?", name).First(&h).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrHostNotFound)
	}
	return &h, nil
}

// CreateHost inserts a new host. A duplicate name maps to
// models.ErrHostExists.
func (t *Txn) CreateHost(h *models.Host) error {
	if err := t.db.Create(h).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrHostExists
		}
		return err
	}
	return nil
}

// SaveHost persists mutations to an existing host, stamping the
// last-update timestamp.
func (t *Txn) SaveHost(h *models.Host) error {
	h.UpDate = time.Now().UTC()
	return t.db.Omit("Addrs").Save(h).Error
}

// ReplaceHostAddrs replaces the address set of a host. Duplicates in the
// input must already be coalesced by the caller.
func (t *Txn) ReplaceHostAddrs(hostID uint, addrs []models.HostAddr) error {
	if err := t.db.Where("host_id = ?", hostID).Delete(&models.HostAddr{}).Error; err != nil {
		return err
	}
	for i := range addrs {
		addrs[i].HostID = hostID
		addrs[i].ID = 0
	}
	if len(addrs) == 0 {
		return nil
	}
	return t.db.Create(&addrs).Error
}

// DeleteHost removes a host. A host still linked as a nameserver fails
// with models.ErrHostInUse.
func (t *Txn) DeleteHost(name string) error {
	h, err := t.GetHost(name)
	if err != nil {
		return err
	}
	n, err := t.CountDomainsReferencingHost(name)
	if err != nil {
		return err
	}
	if n > 0 {
		return models.ErrHostInUse
	}
	if err := t.db.Where("host_id = ?", h.ID).Delete(&models.HostAddr{}).Error; err != nil {
		return err
	}
	return t.db.Delete(h).Error
}

// CountDomainsReferencingHost counts domains linked to the host through
// the nameserver association table.
func (t *Txn) CountDomainsReferencingHost(name string) (int64, error) {
	var n int64
	err := t.db.Raw(`
		SELECT COUNT(*) FROM domain_nameservers dn
		JOIN hosts h ON h.id = dn.host_id
		WHERE h.name = ?`, name).Scan(&n).Error
	return n, err
}

// ============================================
// TRANSFER OPERATIONS
// ============================================

// CreateTransfer records a new transfer exchange for a domain.
func (t *Txn) CreateTransfer(tr *models.Transfer) error {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	if tr.RequestDate.IsZero() {
		tr.RequestDate = time.Now().UTC()
	}
	return t.db.Create(tr).Error
}

// LatestTransfer returns the most recent transfer record for a domain.
func (t *Txn) LatestTransfer(domainName string) (*models.Transfer, error) {
	var tr models.Transfer
	err := t.db.
		Where("domain_name = ?", domainName).
		Order("request_date DESC").
		First(&tr).Error
	if err != nil {
		return nil, convertNotFound(err, models.ErrTransferNotFound)
	}
	return &tr, nil
}

// SaveTransfer persists a status change to a transfer record, stamping
// the action timestamp.
func (t *Txn) SaveTransfer(tr *models.Transfer) error {
	tr.ActionDate = time.Now().UTC()
	return t.db.Save(tr).Error
}

// PendingTransfersBefore returns pending transfers requested before the
// cutoff. The auto-approval sweeper applies the server-approval path to
// each inside its own transaction.
func (t *Txn) PendingTransfersBefore(cutoff time.Time) ([]*models.Transfer, error) {
	var trs []*models.Transfer
	err := t.db.
		Where("status = ? AND request_date < ?", models.TransferPending, cutoff).
		Order("request_date").
		Find(&trs).Error
	return trs, err
}

// ============================================
// POLL QUEUE OPERATIONS
// ============================================

// EnqueueMessage queues a service message for a registrar.
func (t *Txn) EnqueueMessage(clID, message string) error {
	return t.db.Create(&models.PollMessage{
		ClID:    clID,
		Message: message,
		QDate:   time.Now().UTC(),
	}).Error
}

// NextMessage returns the oldest queued message for a registrar, together
// with the number of messages remaining in the queue.
func (t *Txn) NextMessage(clID string) (*models.PollMessage, int64, error) {
	var count int64
	if err := t.db.Model(&models.PollMessage{}).Where("cl_id = ?", clID).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return nil, 0, models.ErrNoMessages
	}
	var msg models.PollMessage
	err := t.db.Where("cl_id = ?", clID).Order("q_date, id").First(&msg).Error
	if err != nil {
		return nil, 0, convertNotFound(err, models.ErrNoMessages)
	}
	return &msg, count, nil
}

// CountMessages returns the number of queued messages for a registrar.
func (t *Txn) CountMessages(clID string) (int64, error) {
	var n int64
	err := t.db.Model(&models.PollMessage{}).Where("cl_id = ?", clID).Count(&n).Error
	return n, err
}

// AckMessage dequeues a message previously returned by NextMessage. An
// unknown message ID for this registrar maps to models.ErrNoMessages.
func (t *Txn) AckMessage(clID string, id uint) error {
	res := t.db.Where("cl_id = ? AND id = ?", clID, id).Delete(&models.PollMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNoMessages
	}
	return nil
}
