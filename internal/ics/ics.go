// Package ics provides minimal line-level access to iCalendar and
// vCard payloads: unfolding, property extraction and component
// grouping. The migration pipeline treats these payloads as opaque
// content and only needs identity (UID) and component boundaries, not
// a full semantic parse.
package ics

import (
	"bytes"
	"strings"
)

// Unfold joins folded continuation lines (RFC 5545 §3.1) into single
// logical lines.
func Unfold(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n "), nil)
	data = bytes.ReplaceAll(data, []byte("\r\n\t"), nil)
	data = bytes.ReplaceAll(data, []byte("\n "), nil)
	data = bytes.ReplaceAll(data, []byte("\n\t"), nil)
	return data
}

// lines splits unfolded payload into logical lines.
func lines(data []byte) [][]byte {
	normalized := bytes.ReplaceAll(Unfold(data), []byte("\r\n"), []byte("\n"))
	return bytes.Split(normalized, []byte("\n"))
}

// Property returns the value of the first occurrence of the named
// property, ignoring parameters ("DTSTART;TZID=..." matches "DTSTART").
func Property(data []byte, name string) string {
	upper := strings.ToUpper(name)
	for _, line := range lines(data) {
		s := string(line)
		head, value, ok := strings.Cut(s, ":")
		if !ok {
			continue
		}
		propName, _, _ := strings.Cut(head, ";")
		if strings.ToUpper(propName) == upper {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// UID returns the payload's UID property, which identifies both
// iCalendar components and vCards.
func UID(data []byte) string {
	return Property(data, "UID")
}

// Components returns the raw blocks of the named component
// (BEGIN:name through END:name inclusive), in order of appearance.
// Nested components of other names stay inside their parent block.
func Components(data []byte, name string) [][]byte {
	upper := strings.ToUpper(name)
	begin := "BEGIN:" + upper
	end := "END:" + upper

	var (
		blocks  [][]byte
		current [][]byte
		depth   int
	)
	for _, line := range lines(data) {
		s := strings.ToUpper(strings.TrimSpace(string(line)))
		if s == begin {
			depth++
		}
		if depth > 0 {
			current = append(current, line)
		}
		if s == end && depth > 0 {
			depth--
			if depth == 0 {
				blocks = append(blocks, bytes.Join(current, []byte("\r\n")))
				current = nil
			}
		}
	}
	return blocks
}

// Calendar wraps component blocks into a complete VCALENDAR payload.
// A recurring component's exceptions belong in the same payload as
// their master, so one call produces one self-contained object.
func Calendar(components ...[]byte) []byte {
	var b bytes.Buffer
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//gwmigrate//EN\r\n")
	for _, c := range components {
		b.Write(c)
		b.WriteString("\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.Bytes()
}

// GroupByUID collects the named components of a calendar stream into
// one VCALENDAR per UID, keeping each recurrence master together with
// its RECURRENCE-ID exceptions, masters first.
func GroupByUID(data []byte, component string) map[string][]byte {
	order := make(map[string]int)
	grouped := make(map[string][][]byte)

	for i, block := range Components(data, component) {
		uid := UID(block)
		if uid == "" {
			continue
		}
		if _, seen := grouped[uid]; !seen {
			order[uid] = i
		}
		if Property(block, "RECURRENCE-ID") == "" {
			// Master goes first regardless of stream order.
			grouped[uid] = append([][]byte{block}, grouped[uid]...)
		} else {
			grouped[uid] = append(grouped[uid], block)
		}
	}

	out := make(map[string][]byte, len(grouped))
	for uid, blocks := range grouped {
		out[uid] = Calendar(blocks...)
	}
	return out
}
