package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mholva/gwmigrate/internal/model"
)

const invitation = "BEGIN:VCALENDAR\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev1\r\n" +
	"ORGANIZER;CN=Alice:mailto:alice@old.example.com\r\n" +
	"ATTENDEE;PARTSTAT=ACCEPTED:mailto:ALICE@OLD.EXAMPLE.COM\r\n" +
	"ATTENDEE:mailto:bob@other.example.com\r\n" +
	"DESCRIPTION:ping alice@old.example.com before the call\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR"

func TestRemapIdentityOrganizerAndAttendee(t *testing.T) {
	item := &model.Item{Type: model.TypeEvent, Content: []byte(invitation)}
	remapIdentity(item, "alice@old.example.com", "alice@new.example.com")

	got := string(item.Content)
	assert.Contains(t, got, "ORGANIZER;CN=Alice:mailto:alice@new.example.com")
	// Case-insensitive match, replaced with the configured address.
	assert.Contains(t, got, "ATTENDEE;PARTSTAT=ACCEPTED:mailto:alice@new.example.com")
	// Other attendees and non-addressing lines stay untouched.
	assert.Contains(t, got, "ATTENDEE:mailto:bob@other.example.com")
	assert.Contains(t, got, "DESCRIPTION:ping alice@old.example.com before the call")
}

func TestRemapIdentityOnlyEventsAndTasks(t *testing.T) {
	mail := &model.Item{
		Type:    model.TypeMail,
		Content: []byte("From: alice@old.example.com\r\n\r\nbody"),
	}
	remapIdentity(mail, "alice@old.example.com", "alice@new.example.com")
	assert.Contains(t, string(mail.Content), "alice@old.example.com")

	todo := &model.Item{
		Type:    model.TypeTask,
		Content: []byte("BEGIN:VTODO\nORGANIZER:mailto:alice@old.example.com\nEND:VTODO"),
	}
	remapIdentity(todo, "alice@old.example.com", "alice@new.example.com")
	assert.Contains(t, string(todo.Content), "ORGANIZER:mailto:alice@new.example.com")
}

func TestRemapIdentityRequiresBothAddresses(t *testing.T) {
	item := &model.Item{Type: model.TypeEvent, Content: []byte(invitation)}
	remapIdentity(item, "", "alice@new.example.com")
	assert.Equal(t, invitation, string(item.Content))
}
