package ews

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mholva/gwmigrate/internal/ics"
	"github.com/mholva/gwmigrate/internal/model"
)

// deriveUID produces a stable cross-system identity for an Exchange
// item. Exchange item ids are server-assigned and change on move, so
// the identity is derived from stable content fields instead; the
// derivation is deterministic, making repeated runs recognize the same
// item.
func deriveUID(item ewsItem, t model.ObjectType) string {
	switch t {
	case model.TypeMail:
		if id := strings.Trim(item.InternetMessageID, "<>"); id != "" {
			return id
		}
		return fmt.Sprintf("sha1:%x", sha1.Sum([]byte("mail|"+item.Subject)))
	case model.TypeEvent:
		if item.UID != "" {
			return item.UID
		}
		return namedUID("event", item.Organizer.Email, item.Start, item.Subject)
	case model.TypeContact:
		return namedUID("contact", item.DisplayName, item.firstEmail())
	case model.TypeTask:
		return namedUID("task", item.Subject, item.DueDate)
	}
	return namedUID("item", item.ItemID.ID)
}

func namedUID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ews://"+strings.Join(parts, "|"))).String()
}

// contactVCard serializes a Contact's fields as a vCard 3.0 payload.
// Exchange has no MIME export for contacts.
func contactVCard(uid string, item ewsItem) []byte {
	var b bytes.Buffer
	b.WriteString("BEGIN:VCARD\r\nVERSION:3.0\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", uid)
	fn := item.DisplayName
	if fn == "" {
		fn = strings.TrimSpace(item.GivenName + " " + item.Surname)
	}
	fmt.Fprintf(&b, "FN:%s\r\n", escapeText(fn))
	fmt.Fprintf(&b, "N:%s;%s;;;\r\n", escapeText(item.Surname), escapeText(item.GivenName))
	if item.CompanyName != "" {
		fmt.Fprintf(&b, "ORG:%s\r\n", escapeText(item.CompanyName))
	}
	for _, e := range item.EmailEntries {
		if e.Value != "" {
			fmt.Fprintf(&b, "EMAIL;TYPE=INTERNET:%s\r\n", escapeText(e.Value))
		}
	}
	for _, p := range item.PhoneEntries {
		if p.Value != "" {
			fmt.Fprintf(&b, "TEL;TYPE=%s:%s\r\n", phoneType(p.Key), escapeText(p.Value))
		}
	}
	b.WriteString("END:VCARD\r\n")
	return b.Bytes()
}

// taskCalendar serializes a Task as a VTODO payload.
func taskCalendar(uid string, item ewsItem) []byte {
	var b bytes.Buffer
	b.WriteString("BEGIN:VTODO\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", uid)
	fmt.Fprintf(&b, "SUMMARY:%s\r\n", escapeText(item.Subject))
	if item.BodyText != "" {
		fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", escapeText(item.BodyText))
	}
	if due := icsTime(item.DueDate); due != "" {
		fmt.Fprintf(&b, "DUE:%s\r\n", due)
	}
	if start := icsTime(item.StartDate); start != "" {
		fmt.Fprintf(&b, "DTSTART:%s\r\n", start)
	}
	if status := todoStatus(item.Status); status != "" {
		fmt.Fprintf(&b, "STATUS:%s\r\n", status)
	}
	b.WriteString("END:VTODO\r\n")
	return ics.Calendar(b.Bytes())
}

// icsTime converts Exchange's RFC 3339 timestamps to the basic
// iCalendar UTC form.
func icsTime(s string) string {
	if s == "" {
		return ""
	}
	repl := strings.NewReplacer("-", "", ":", "")
	s = repl.Replace(s)
	if !strings.HasSuffix(s, "Z") {
		s += "Z"
	}
	return s
}

func todoStatus(s string) string {
	switch s {
	case "NotStarted":
		return "NEEDS-ACTION"
	case "InProgress":
		return "IN-PROCESS"
	case "Completed":
		return "COMPLETED"
	case "Deferred", "WaitingOnOthers":
		return "NEEDS-ACTION"
	}
	return ""
}

func ewsTaskStatus(s string) string {
	switch s {
	case "IN-PROCESS":
		return "InProgress"
	case "COMPLETED":
		return "Completed"
	}
	return "NotStarted"
}

func phoneType(key string) string {
	switch {
	case strings.Contains(key, "Home"):
		return "HOME"
	case strings.Contains(key, "Mobile"):
		return "CELL"
	}
	return "WORK"
}

func escapeText(s string) string {
	repl := strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\r", "", ",", "\\,", ";", "\\;")
	return repl.Replace(s)
}

// unescapeText reverses iCalendar/vCard text escaping.
func unescapeText(s string) string {
	repl := strings.NewReplacer("\\\\", "\\", "\\n", "\n", "\\N", "\n", "\\,", ",", "\\;", ";")
	return repl.Replace(s)
}
