package model

// ItemRef addresses one item without its content, carrying just enough
// to decide whether a transfer is needed.
type ItemRef struct {
	// UID is the item's cross-system identity: a Message-ID for mail,
	// the iCalendar/vCard UID for groupware objects, or a
	// deterministically derived value when the source protocol has no
	// native UID.
	UID string

	// Fingerprint is the item's version marker (ETag, "uid/flags"
	// pair, or content hash). Two equal fingerprints mean the item is
	// unchanged since it was last seen.
	Fingerprint string

	// Address is the driver-private locator used to fetch the item's
	// content (IMAP UID, DAV href, EWS item id). Opaque outside the
	// driver that produced it.
	Address string
}

// Item is one discrete object in transit: the serialized content plus
// the metadata needed to write it at the destination. Items are read on
// demand and never retained past the transfer that processes them.
type Item struct {
	Ref     ItemRef
	Type    ObjectType
	Content []byte

	// Flags holds normalized mail flags ("seen", "flagged", "answered",
	// "draft", "deleted"); empty for non-mail items.
	Flags []string
}

// ItemSet is a transient batch of item references transferred by one
// unit of work, amortizing per-round-trip cost at the destination.
type ItemSet struct {
	Refs []ItemRef
}

// Tag is a named label over a set of items, migrated by the dedicated
// tag path rather than the generic item pipeline.
type Tag struct {
	Name string

	// MemberUIDs lists the UIDs of the items carrying the tag.
	MemberUIDs []string
}
