package kolab3

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-message"

	"github.com/mholva/gwmigrate/internal/model"
)

// Kolab3 tunnels groupware objects as MIME messages: the message
// subject carries the object UID, the X-Kolab-Type header the object
// kind, and an attachment part named kolab.xml the serialized object.
const mimeVersionHeader = "3.0"

var kolabTypes = map[model.ObjectType]string{
	model.TypeEvent:   "application/x-vnd.kolab.event",
	model.TypeContact: "application/x-vnd.kolab.contact",
	model.TypeTask:    "application/x-vnd.kolab.task",
}

var partTypes = map[model.ObjectType]string{
	model.TypeEvent:   "application/calendar+xml",
	model.TypeContact: "application/vcard+xml",
	model.TypeTask:    "application/calendar+xml",
}

const (
	relationKolabType = "application/x-vnd.kolab.configuration.relation"
	relationPartType  = "application/vnd.kolab+xml"
)

// wrapObject builds the MIME message carrying one groupware object.
func wrapObject(uid, sender, kolabType, partType string, payload []byte) ([]byte, error) {
	var buf bytes.Buffer

	var h message.Header
	h.SetContentType("multipart/mixed", nil)
	h.Set("Subject", uid)
	h.Set("From", sender)
	h.Set("To", sender)
	h.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	h.Set("X-Kolab-Type", kolabType)
	h.Set("X-Kolab-Mime-Version", mimeVersionHeader)
	h.Set("User-Agent", "gwmigrate")

	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating kolab message: %w", err)
	}

	var th message.Header
	th.SetContentType("text/plain", map[string]string{"charset": "us-ascii"})
	tw, err := w.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating kolab text part: %w", err)
	}
	io.WriteString(tw, "This is a Kolab Groupware object. To view this object you will need a client that can understand the Kolab Groupware format.\r\n")
	tw.Close()

	var ah message.Header
	ah.SetContentType(partType, nil)
	ah.SetContentDisposition("attachment", map[string]string{"filename": "kolab.xml"})
	aw, err := w.CreatePart(ah)
	if err != nil {
		return nil, fmt.Errorf("creating kolab payload part: %w", err)
	}
	aw.Write(payload)
	aw.Close()

	w.Close()
	return buf.Bytes(), nil
}

// unwrapObject extracts the serialized object from a Kolab MIME
// message: the first XML part that is not plain text.
func unwrapObject(raw []byte) ([]byte, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing kolab message: %w", err)
	}

	mr := entity.MultipartReader()
	if mr == nil {
		t, _, _ := entity.Header.ContentType()
		if strings.Contains(t, "xml") {
			return io.ReadAll(entity.Body)
		}
		return nil, fmt.Errorf("kolab message is not multipart")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading kolab message part: %w", err)
		}
		t, _, _ := part.Header.ContentType()
		if strings.Contains(t, "xml") {
			return io.ReadAll(part.Body)
		}
	}
	return nil, fmt.Errorf("kolab message has no payload part")
}

// relation is the configuration object representing one tag and its
// member links.
type relation struct {
	XMLName      xml.Name `xml:"http://kolab.org configuration"`
	UID          string   `xml:"uid"`
	Type         string   `xml:"type"`
	RelationType string   `xml:"relation-type,omitempty"`
	Name         string   `xml:"name"`
	Members      []string `xml:"member"`
}

func parseRelation(payload []byte) (*relation, error) {
	var rel relation
	if err := xml.Unmarshal(payload, &rel); err != nil {
		return nil, fmt.Errorf("parsing relation object: %w", err)
	}
	if rel.Type != "relation" {
		return nil, nil
	}
	return &rel, nil
}

func (r *relation) marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing relation object: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// tag converts a relation to the normalized form, resolving member
// links to item UIDs.
func (r *relation) tag() model.Tag {
	t := model.Tag{Name: r.Name}
	for _, m := range r.Members {
		if uid := memberUID(m); uid != "" {
			t.MemberUIDs = append(t.MemberUIDs, uid)
		}
	}
	return t
}

// memberUID resolves one member link: groupware members are
// "urn:uuid:<uid>" references, mail members are imap URLs carrying a
// message-id parameter.
func memberUID(member string) string {
	if uid, ok := strings.CutPrefix(member, "urn:uuid:"); ok {
		return uid
	}
	if strings.HasPrefix(member, "imap:") {
		u, err := url.Parse(member)
		if err != nil {
			return ""
		}
		if id := u.Query().Get("message-id"); id != "" {
			return strings.Trim(id, "<>")
		}
	}
	return ""
}

// relationMembers renders member UIDs back into link form.
func relationMembers(uids []string) []string {
	members := make([]string, 0, len(uids))
	for _, uid := range uids {
		if strings.ContainsAny(uid, "@") {
			members = append(members, "imap:///?message-id="+url.QueryEscape("<"+uid+">"))
		} else {
			members = append(members, "urn:uuid:"+uid)
		}
	}
	return members
}
