package handlers

import (
	"net/netip"
	"strings"
	"time"

	"github.com/qenex/regd/internal/epp/wire"
	"github.com/qenex/regd/pkg/registry/models"
)

// registrationYear is the length of one registration period. Expiration
// arithmetic is day-based, not calendar-based.
const registrationYear = 365 * 24 * time.Hour

const (
	reasonInUse           = "In use"
	reasonInvalidDomain   = "Invalid domain name format"
	reasonInvalidHostname = "Invalid hostname format"
)

// validHostname checks RFC 952/1123 hostname syntax: at least two labels,
// each 1..63 octets of letters, digits, and interior hyphens, at most 253
// octets overall. The same rules apply to domain names.
func validHostname(name string) bool {
	if len(name) == 0 || len(name) > 253 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '-':
			default:
				return false
			}
		}
	}
	return true
}

// validHandle checks contact handle syntax (clIDType: 3..16 octets).
func validHandle(handle string) bool {
	if len(handle) < 3 || len(handle) > 16 {
		return false
	}
	for i := 0; i < len(handle); i++ {
		c := handle[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// domainROID derives the repository object identifier of a domain: the
// uppercased name with dots replaced by hyphens, suffixed with the server
// identifier.
func domainROID(name, serverID string) string {
	return strings.ToUpper(strings.ReplaceAll(name, ".", "-")) + "-" + serverID
}

// contactROID derives the repository object identifier of a contact.
func contactROID(handle string) string {
	return strings.ToUpper(handle) + "-REP"
}

// hostROID derives the repository object identifier of a host.
func hostROID(name, serverID string) string {
	return strings.ToUpper(strings.ReplaceAll(name, ".", "-")) + "-" + serverID
}

// checkPeriod validates a registration period. Zero (absent) defaults to
// one year. Returns the validated year count and a failing result code,
// 0 when the period is acceptable.
func checkPeriod(years int, unit string) (int, int) {
	if unit != "y" {
		return 0, wire.CodeUnimplementedOption
	}
	if years == 0 {
		years = 1
	}
	if years < 1 || years > 10 {
		return 0, wire.CodeParameterRange
	}
	return years, 0
}

// settableStatuses are the client-managed status tokens accepted in
// update add/rem blocks. Server-managed tokens are rejected.
var settableStatuses = map[string]bool{
	models.StatusClientHold:               true,
	models.StatusClientDeleteProhibited:   true,
	models.StatusClientUpdateProhibited:   true,
	models.StatusClientTransferProhibited: true,
}

// applyStatusChanges applies add/rem status tokens to a status set. It
// returns a failing result code when a token is not client-settable.
func applyStatusChanges(statuses models.StatusSet, add, rem []string) (models.StatusSet, int) {
	for _, s := range rem {
		if !settableStatuses[s] {
			return nil, wire.CodeParameterSyntax
		}
		statuses = statuses.Remove(s)
	}
	for _, s := range add {
		if !settableStatuses[s] {
			return nil, wire.CodeParameterSyntax
		}
		statuses = statuses.Add(s)
	}
	return normalizeStatuses(statuses), 0
}

// normalizeStatuses keeps the "ok" token exactly when no other status is
// present.
func normalizeStatuses(statuses models.StatusSet) models.StatusSet {
	rest := statuses.Remove(models.StatusOK)
	if len(rest) == 0 {
		return models.StatusSet{models.StatusOK}
	}
	return rest
}

// validContactRoles are the role attributes accepted on domain contact
// references.
var validContactRoles = map[string]bool{
	"admin":   true,
	"tech":    true,
	"billing": true,
}

// parseHostAddr validates one host address against its declared version
// tag. Returns the canonical text form.
func parseHostAddr(a wire.HostAddr) (models.HostAddr, bool) {
	addr, err := netip.ParseAddr(a.IP)
	if err != nil {
		return models.HostAddr{}, false
	}
	switch a.Version {
	case "v4":
		if !addr.Is4() {
			return models.HostAddr{}, false
		}
	case "v6":
		if !addr.Is6() || addr.Is4In6() {
			return models.HostAddr{}, false
		}
	default:
		return models.HostAddr{}, false
	}
	return models.HostAddr{Address: addr.String(), Version: a.Version}, true
}
