package imap

import (
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// Normalized flag vocabulary, independent of the IMAP wire form.
const (
	FlagSeen     = "seen"
	FlagFlagged  = "flagged"
	FlagAnswered = "answered"
	FlagDraft    = "draft"
	FlagDeleted  = "deleted"
)

var wireToFlag = map[imap.Flag]string{
	imap.FlagSeen:     FlagSeen,
	imap.FlagFlagged:  FlagFlagged,
	imap.FlagAnswered: FlagAnswered,
	imap.FlagDraft:    FlagDraft,
	imap.FlagDeleted:  FlagDeleted,
}

var flagToWire = map[string]imap.Flag{
	FlagSeen:     imap.FlagSeen,
	FlagFlagged:  imap.FlagFlagged,
	FlagAnswered: imap.FlagAnswered,
	FlagDraft:    imap.FlagDraft,
	FlagDeleted:  imap.FlagDeleted,
}

// normalizeFlags maps wire flags to the fixed vocabulary, dropping
// anything outside it.
func normalizeFlags(flags []imap.Flag) []string {
	var out []string
	for _, f := range flags {
		if n, ok := wireToFlag[f]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// wireFlags maps normalized flags back to their IMAP form.
func wireFlags(flags []string) []imap.Flag {
	var out []imap.Flag
	for _, f := range flags {
		if w, ok := flagToWire[f]; ok {
			out = append(out, w)
		}
	}
	return out
}

// flagsFingerprint renders a stable digest component from a flag set.
func flagsFingerprint(flags []string) string {
	sorted := append([]string(nil), flags...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
