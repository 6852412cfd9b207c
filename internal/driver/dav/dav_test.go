package dav

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mholva/gwmigrate/internal/model"
)

const davListing = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav"
    xmlns:card="urn:ietf:params:xml:ns:carddav" xmlns:cs="http://calendarserver.org/ns/">
  <d:response>
    <d:href>/calendars/alice/calendar/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:displayname>Calendar</d:displayname>
        <d:resourcetype><d:collection/><cal:calendar/></d:resourcetype>
        <cs:getctag>ctag-17</cs:getctag>
        <d:sync-token>http://example.com/sync/44</d:sync-token>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/alice/tasks/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:resourcetype><d:collection/><cal:calendar/></d:resourcetype>
        <cal:supported-calendar-component-set>
          <cal:comp name="VTODO"/>
        </cal:supported-calendar-component-set>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/addressbooks/alice/contacts/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:resourcetype><d:collection/><card:addressbook/></d:resourcetype>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/alice/gone.ics</d:href>
    <d:status>HTTP/1.1 404 Not Found</d:status>
  </d:response>
</d:multistatus>`

func TestMultistatusUnmarshal(t *testing.T) {
	var ms multistatus
	require.NoError(t, xml.Unmarshal([]byte(davListing), &ms))
	require.Len(t, ms.Responses, 4)

	cal := ms.Responses[0]
	p := cal.findProp()
	require.NotNil(t, p)
	assert.Equal(t, "Calendar", p.DisplayName)
	assert.NotNil(t, p.ResourceType.Calendar)
	assert.Equal(t, "ctag-17", p.CTag)
	assert.Equal(t, "http://example.com/sync/44", p.SyncToken)

	tasks := ms.Responses[1].findProp()
	require.NotNil(t, tasks)
	require.NotNil(t, tasks.ComponentSet)
	require.Len(t, tasks.ComponentSet.Comps, 1)
	assert.Equal(t, "VTODO", tasks.ComponentSet.Comps[0].Name)

	contacts := ms.Responses[2].findProp()
	require.NotNil(t, contacts)
	assert.NotNil(t, contacts.ResourceType.AddressBook)

	assert.True(t, ms.Responses[3].notFound())
	assert.False(t, ms.Responses[0].notFound())
}

func TestCollectionKind(t *testing.T) {
	calendar := &prop{ResourceType: resourceType{Calendar: &struct{}{}}}
	assert.Equal(t, model.KindEventDefault, collectionKind("/calendars/alice/calendar/", calendar))
	assert.Equal(t, model.KindEvent, collectionKind("/calendars/alice/team-events/", calendar))

	todoOnly := &prop{
		ResourceType: resourceType{Calendar: &struct{}{}},
		ComponentSet: &componentSet{Comps: []comp{{Name: "VTODO"}}},
	}
	assert.Equal(t, model.KindTaskDefault, collectionKind("/calendars/alice/tasks/", todoOnly))
	assert.Equal(t, model.KindTask, collectionKind("/calendars/alice/chores/", todoOnly))

	// A calendar allowing both VEVENT and VTODO is an event collection.
	mixed := &prop{
		ResourceType: resourceType{Calendar: &struct{}{}},
		ComponentSet: &componentSet{Comps: []comp{{Name: "VEVENT"}, {Name: "VTODO"}}},
	}
	assert.Equal(t, model.KindEvent, collectionKind("/calendars/alice/mixed/", mixed))

	book := &prop{ResourceType: resourceType{AddressBook: &struct{}{}}}
	assert.Equal(t, model.KindContactDefault, collectionKind("/addressbooks/alice/contacts/", book))
	assert.Equal(t, model.KindContact, collectionKind("/addressbooks/alice/leads/", book))

	plain := &prop{ResourceType: resourceType{Collection: &struct{}{}}}
	assert.Equal(t, model.KindOther, collectionKind("/files/alice/", plain))
}

func TestHrefUID(t *testing.T) {
	assert.Equal(t, "1f2e3d", hrefUID("/calendars/alice/calendar/1f2e3d.ics"))
	assert.Equal(t, "card-7", hrefUID("/addressbooks/alice/contacts/card-7.vcf"))
	assert.Equal(t, "plain", hrefUID("/some/plain"))
	assert.Equal(t, "trailing", hrefUID("/some/trailing/"))
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "ev-1.ics", resourceName("ev-1", model.TypeEvent))
	assert.Equal(t, "td-1.ics", resourceName("td-1", model.TypeTask))
	assert.Equal(t, "c-1.vcf", resourceName("c-1", model.TypeContact))
	// UIDs with unsafe characters are slugged, deterministically.
	assert.Equal(t, resourceName("a b/c", model.TypeEvent), resourceName("a b/c", model.TypeEvent))
	assert.NotContains(t, resourceName("a b/c", model.TypeEvent), " ")
	assert.NotContains(t, resourceName("a b/c", model.TypeEvent), "/")
}

func TestEnsureTrailingSlash(t *testing.T) {
	assert.Equal(t, "/a/b/", ensureTrailingSlash("/a/b"))
	assert.Equal(t, "/a/b/", ensureTrailingSlash("/a/b/"))
}
