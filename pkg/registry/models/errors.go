package models

import "errors"

// Sentinel errors returned by the registry store. Handlers translate these
// to EPP result codes; nothing below this layer knows about result codes.
var (
	// Domain errors
	ErrDomainNotFound = errors.New("domain does not exist")
	ErrDomainExists   = errors.New("domain already exists")

	// Contact errors
	ErrContactNotFound = errors.New("contact does not exist")
	ErrContactExists   = errors.New("contact already exists")
	ErrContactInUse    = errors.New("contact is referenced by domains")

	// Host errors
	ErrHostNotFound = errors.New("host does not exist")
	ErrHostExists   = errors.New("host already exists")
	ErrHostInUse    = errors.New("host is referenced by domains")

	// Transfer errors
	ErrTransferNotFound = errors.New("no transfer found")

	// Registrar errors
	ErrRegistrarNotFound   = errors.New("registrar not found")
	ErrRegistrarExists     = errors.New("registrar already exists")
	ErrInvalidCredentials  = errors.New("invalid registrar credentials")

	// Poll errors
	ErrNoMessages = errors.New("no queued messages")
)
