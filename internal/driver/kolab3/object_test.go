package kolab3

import (
	"bytes"
	"testing"

	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mholva/gwmigrate/internal/model"
)

const eventXML = `<?xml version="1.0"?>
<icalendar xmlns="urn:ietf:params:xml:ns:icalendar-2.0">
  <vcalendar><components><vevent>
    <properties><uid><text>ev-42</text></uid></properties>
  </vevent></components></vcalendar>
</icalendar>`

func TestWrapUnwrapObject(t *testing.T) {
	raw, err := wrapObject("ev-42", "alice@example.com",
		kolabTypes[model.TypeEvent], partTypes[model.TypeEvent], []byte(eventXML))
	require.NoError(t, err)

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "ev-42", entity.Header.Get("Subject"))
	assert.Equal(t, "application/x-vnd.kolab.event", entity.Header.Get("X-Kolab-Type"))
	ct, _, err := entity.Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", ct)

	payload, err := unwrapObject(raw)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "<uid><text>ev-42</text></uid>")
}

func TestUnwrapObjectRejectsPlainMail(t *testing.T) {
	raw := []byte("Subject: just mail\r\nContent-Type: text/plain\r\n\r\nhello\r\n")
	_, err := unwrapObject(raw)
	assert.Error(t, err)
}

const relationXML = `<?xml version="1.0"?>
<configuration xmlns="http://kolab.org">
  <uid>rel-1</uid>
  <type>relation</type>
  <relation-type>tag</relation-type>
  <name>Important</name>
  <member>urn:uuid:ev-42</member>
  <member>imap:///INBOX?message-id=%3Csync1%40x%3E</member>
  <member>gopher://unresolvable</member>
</configuration>`

func TestParseRelation(t *testing.T) {
	rel, err := parseRelation([]byte(relationXML))
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "rel-1", rel.UID)
	assert.Equal(t, "Important", rel.Name)

	tag := rel.tag()
	assert.Equal(t, "Important", tag.Name)
	// Unresolvable members are dropped, not mistranslated.
	assert.Equal(t, []string{"ev-42", "sync1@x"}, tag.MemberUIDs)
}

func TestParseRelationIgnoresOtherConfigObjects(t *testing.T) {
	rel, err := parseRelation([]byte(`<?xml version="1.0"?>
<configuration xmlns="http://kolab.org">
  <uid>dict-1</uid>
  <type>dictionary</type>
</configuration>`))
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestRelationRoundTrip(t *testing.T) {
	rel := &relation{
		UID:          "rel-2",
		Type:         "relation",
		RelationType: "tag",
		Name:         "Projects",
		Members:      relationMembers([]string{"sync1@x", "ev-42"}),
	}
	payload, err := rel.marshal()
	require.NoError(t, err)

	parsed, err := parseRelation(payload)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, "rel-2", parsed.UID)
	assert.Equal(t, "tag", parsed.RelationType)
	assert.Equal(t, []string{"sync1@x", "ev-42"}, parsed.tag().MemberUIDs)
}

func TestRelationMembers(t *testing.T) {
	members := relationMembers([]string{"sync1@x", "ev-42"})
	assert.Equal(t, "imap:///?message-id="+`%3Csync1%40x%3E`, members[0])
	assert.Equal(t, "urn:uuid:ev-42", members[1])
}

func TestMemberUID(t *testing.T) {
	assert.Equal(t, "ev-42", memberUID("urn:uuid:ev-42"))
	assert.Equal(t, "sync1@x", memberUID("imap://alice@host/INBOX;UIDVALIDITY=3/?message-id=%3Csync1%40x%3E"))
	assert.Equal(t, "", memberUID("https://example.com/whatever"))
}
