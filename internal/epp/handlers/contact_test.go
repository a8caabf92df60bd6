package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qenex/regd/internal/epp/wire"
)

func TestContactCheck(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")

	resp := run(t, env, sess, cmdOf(wire.VerbCheck, wire.ObjectContact,
		&wire.ContactCheck{Handles: []string{"JD001", "FREE01", "x"}}))
	require.Equal(t, wire.CodeOK, resp.Code)

	data := resp.ResData.(*wire.ContactCheckData)
	require.Len(t, data.Items, 3)
	assert.Equal(t, wire.NewContactCheckItem("JD001", false, "In use"), data.Items[0])
	assert.Equal(t, wire.NewContactCheckItem("FREE01", true, ""), data.Items[1])
	assert.Equal(t, wire.NewContactCheckItem("x", false, "Invalid contact handle"), data.Items[2])
}

func TestContactHandleCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")

	// Handles are stored verbatim; a different casing is a different handle.
	resp := run(t, env, sess, cmdOf(wire.VerbInfo, wire.ObjectContact,
		&wire.ContactInfo{Handle: "jd001"}))
	assert.Equal(t, wire.CodeObjectNotFound, resp.Code)
}

func TestContactCreateAndInfo(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")

	resp := run(t, env, sess, cmdOf(wire.VerbCreate, wire.ObjectContact, &wire.ContactCreate{
		Handle: "JD001",
		PostalInfo: &wire.PostalInfo{
			Type:    "loc",
			Name:    "John Doe",
			Org:     "Example Ltd",
			Streets: []string{"1 Main St", "Suite 7"},
			City:    "Dulles",
			SP:      "VA",
			PC:      "20166",
			CC:      "us",
		},
		Voice: "+1.7035555555",
		Fax:   "+1.7035555556",
		Email: "jdoe@example.test",
	}))
	require.Equal(t, wire.CodeOK, resp.Code)
	assert.Equal(t, "JD001", resp.ResData.(*wire.ContactCreateData).ID)

	info := run(t, env, sess, cmdOf(wire.VerbInfo, wire.ObjectContact,
		&wire.ContactInfo{Handle: "JD001"}))
	require.Equal(t, wire.CodeOK, info.Code)
	data := info.ResData.(*wire.ContactInfoData)
	assert.Equal(t, "JD001-REP", data.ROID)
	assert.Equal(t, "RG1", data.ClID)
	assert.Equal(t, "John Doe", data.PostalInfo.Name)
	assert.Equal(t, []string{"1 Main St", "Suite 7"}, data.PostalInfo.Addr.Streets)
	assert.Equal(t, "US", data.PostalInfo.Addr.CC, "country code is stored uppercased")
	assert.Equal(t, "jdoe@example.test", data.Email)
}

func TestContactCreateErrors(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")

	postal := func() *wire.PostalInfo {
		return &wire.PostalInfo{Name: "P", Streets: []string{"1 Main St"}, City: "C", PC: "20166", CC: "US"}
	}
	voice := "+1.7035555555"

	cases := []struct {
		name string
		req  *wire.ContactCreate
		code int
	}{
		{"Duplicate", &wire.ContactCreate{Handle: "JD001", PostalInfo: postal(), Voice: voice, Email: "a@b.test"}, wire.CodeObjectExists},
		{"MissingPostalInfo", &wire.ContactCreate{Handle: "NEW001", Voice: voice, Email: "a@b.test"}, wire.CodeMissingParameter},
		{"MissingEmail", &wire.ContactCreate{Handle: "NEW001", PostalInfo: postal(), Voice: voice}, wire.CodeMissingParameter},
		{"MissingVoice", &wire.ContactCreate{Handle: "NEW001", PostalInfo: postal(), Email: "a@b.test"}, wire.CodeMissingParameter},
		{"MissingStreet", &wire.ContactCreate{Handle: "NEW001",
			PostalInfo: &wire.PostalInfo{Name: "P", City: "C", PC: "20166", CC: "US"}, Voice: voice, Email: "a@b.test"}, wire.CodeMissingParameter},
		{"MissingPostalCode", &wire.ContactCreate{Handle: "NEW001",
			PostalInfo: &wire.PostalInfo{Name: "P", Streets: []string{"1 Main St"}, City: "C", CC: "US"}, Voice: voice, Email: "a@b.test"}, wire.CodeMissingParameter},
		{"HandleTooShort", &wire.ContactCreate{Handle: "ab", PostalInfo: postal(), Voice: voice, Email: "a@b.test"}, wire.CodeParameterSyntax},
		{"HandleBadChars", &wire.ContactCreate{Handle: "bad handle", PostalInfo: postal(), Voice: voice, Email: "a@b.test"}, wire.CodeParameterSyntax},
		{"BadEmail", &wire.ContactCreate{Handle: "NEW001", PostalInfo: postal(), Voice: voice, Email: "nope"}, wire.CodeParameterSyntax},
		{"BadCountryCode", &wire.ContactCreate{Handle: "NEW001",
			PostalInfo: &wire.PostalInfo{Name: "P", Streets: []string{"1 Main St"}, City: "C", PC: "20166", CC: "USA"}, Voice: voice, Email: "a@b.test"}, wire.CodeParameterSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := run(t, env, sess, cmdOf(wire.VerbCreate, wire.ObjectContact, tc.req))
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestContactUpdate(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")

	newEmail := "moved@example.test"
	clearOrg := ""
	resp := run(t, env, sess, cmdOf(wire.VerbUpdate, wire.ObjectContact, &wire.ContactUpdate{
		Handle: "JD001",
		Chg: &wire.ContactChange{
			Email:   &newEmail,
			Org:     &clearOrg,
			Streets: []string{"9 New Rd"},
		},
	}))
	require.Equal(t, wire.CodeOK, resp.Code)

	info := run(t, env, sess, cmdOf(wire.VerbInfo, wire.ObjectContact,
		&wire.ContactInfo{Handle: "JD001"}))
	data := info.ResData.(*wire.ContactInfoData)
	assert.Equal(t, "moved@example.test", data.Email)
	assert.Empty(t, data.PostalInfo.Org, "optional fields may be cleared")
	assert.Equal(t, []string{"9 New Rd"}, data.PostalInfo.Addr.Streets)
	assert.NotEmpty(t, data.UpDate)
}

func TestContactUpdateCannotClearMandatoryFields(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")

	empty := ""
	for name, chg := range map[string]*wire.ContactChange{
		"Email":  {Email: &empty},
		"Name":   {Name: &empty},
		"City":   {City: &empty},
		"PC":     {PC: &empty},
		"Voice":  {Voice: &empty},
		"Street": {Streets: []string{""}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := run(t, env, sess, cmdOf(wire.VerbUpdate, wire.ObjectContact,
				&wire.ContactUpdate{Handle: "JD001", Chg: chg}))
			assert.Equal(t, wire.CodeParameterSyntax, resp.Code)
		})
	}
}

func TestContactUpdateRemovesFax(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")

	fax := "+1.7035555556"
	resp := run(t, env, sess, cmdOf(wire.VerbUpdate, wire.ObjectContact,
		&wire.ContactUpdate{Handle: "JD001", Chg: &wire.ContactChange{Fax: &fax}}))
	require.Equal(t, wire.CodeOK, resp.Code)

	resp = run(t, env, sess, cmdOf(wire.VerbUpdate, wire.ObjectContact,
		&wire.ContactUpdate{Handle: "JD001", RemFax: true}))
	require.Equal(t, wire.CodeOK, resp.Code)

	info := run(t, env, sess, cmdOf(wire.VerbInfo, wire.ObjectContact,
		&wire.ContactInfo{Handle: "JD001"}))
	assert.Empty(t, info.ResData.(*wire.ContactInfoData).Fax)
}

func TestContactUpdateGuards(t *testing.T) {
	env := newTestEnv(t)
	rg1 := loggedIn(t, "RG1")
	rg2 := loggedIn(t, "RG2")
	mustCreateContact(t, env, rg1, "JD001")

	resp := run(t, env, rg2, cmdOf(wire.VerbUpdate, wire.ObjectContact,
		&wire.ContactUpdate{Handle: "JD001", AddStatus: []string{"clientHold"}}))
	assert.Equal(t, wire.CodeAuthorizationError, resp.Code)

	resp = run(t, env, rg1, cmdOf(wire.VerbUpdate, wire.ObjectContact,
		&wire.ContactUpdate{Handle: "JD001", AddStatus: []string{"clientUpdateProhibited"}}))
	require.Equal(t, wire.CodeOK, resp.Code)

	newVoice := "+1.7030000000"
	resp = run(t, env, rg1, cmdOf(wire.VerbUpdate, wire.ObjectContact,
		&wire.ContactUpdate{Handle: "JD001", Chg: &wire.ContactChange{Voice: &newVoice}}))
	assert.Equal(t, wire.CodeStatusProhibits, resp.Code)
}

func TestContactDeleteInUse(t *testing.T) {
	env := newTestEnv(t)
	sess := loggedIn(t, "RG1")
	mustCreateContact(t, env, sess, "JD001")
	mustCreateDomain(t, env, sess, "one.test", "JD001")
	mustCreateDomain(t, env, sess, "two.test", "JD001")

	resp := run(t, env, sess, cmdOf(wire.VerbDelete, wire.ObjectContact,
		&wire.ContactDelete{Handle: "JD001"}))
	assert.Equal(t, wire.CodeAssociationProhibits, resp.Code)
	assert.Contains(t, resp.Msg, "referenced by 2 domain(s)")

	// Deleting the domains frees the contact.
	for _, name := range []string{"one.test", "two.test"} {
		del := run(t, env, sess, cmdOf(wire.VerbDelete, wire.ObjectDomain,
			&wire.DomainDelete{Name: name}))
		require.Equal(t, wire.CodeOK, del.Code)
	}
	resp = run(t, env, sess, cmdOf(wire.VerbDelete, wire.ObjectContact,
		&wire.ContactDelete{Handle: "JD001"}))
	assert.Equal(t, wire.CodeOK, resp.Code)
}

func TestContactDeleteGuards(t *testing.T) {
	env := newTestEnv(t)
	rg1 := loggedIn(t, "RG1")
	rg2 := loggedIn(t, "RG2")
	mustCreateContact(t, env, rg1, "JD001")

	resp := run(t, env, rg2, cmdOf(wire.VerbDelete, wire.ObjectContact,
		&wire.ContactDelete{Handle: "JD001"}))
	assert.Equal(t, wire.CodeAuthorizationError, resp.Code)

	resp = run(t, env, rg1, cmdOf(wire.VerbDelete, wire.ObjectContact,
		&wire.ContactDelete{Handle: "GHOST1"}))
	assert.Equal(t, wire.CodeObjectNotFound, resp.Code)
}
