package engine

import (
	"bytes"
	"strings"

	"github.com/mholva/gwmigrate/internal/model"
)

// remapIdentity rewrites the source account's address to the
// destination account's address in ORGANIZER and ATTENDEE properties
// of iCalendar content. Applied only when explicitly enabled; no
// remapping happens by default.
func remapIdentity(item *model.Item, from, to string) {
	if from == "" || to == "" {
		return
	}
	switch item.Type {
	case model.TypeEvent, model.TypeTask:
	default:
		return
	}

	lines := bytes.Split(item.Content, []byte("\r\n"))
	sep := []byte("\r\n")
	if len(lines) == 1 {
		lines = bytes.Split(item.Content, []byte("\n"))
		sep = []byte("\n")
	}

	changed := false
	for i, line := range lines {
		upper := strings.ToUpper(string(line))
		if !strings.HasPrefix(upper, "ORGANIZER") && !strings.HasPrefix(upper, "ATTENDEE") {
			continue
		}
		idx := strings.Index(strings.ToLower(string(line)), strings.ToLower(from))
		if idx < 0 {
			continue
		}
		lines[i] = append(append(append([]byte{}, line[:idx]...), []byte(to)...), line[idx+len(from):]...)
		changed = true
	}

	if changed {
		item.Content = bytes.Join(lines, sep)
	}
}
