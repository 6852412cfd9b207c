package dav

import (
	"encoding/xml"
	"strings"
)

// multistatus is the WebDAV 207 response envelope shared by PROPFIND
// and REPORT.
type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
	SyncToken string        `xml:"sync-token"`
}

type davResponse struct {
	Href      string     `xml:"href"`
	Status    string     `xml:"status"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	DisplayName  string        `xml:"displayname"`
	ResourceType resourceType  `xml:"resourcetype"`
	ETag         string        `xml:"getetag"`
	CTag         string        `xml:"http://calendarserver.org/ns/ getctag"`
	SyncToken    string        `xml:"sync-token"`
	ComponentSet *componentSet `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
	CalendarData string        `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	AddressData  string        `xml:"urn:ietf:params:xml:ns:carddav address-data"`
}

type resourceType struct {
	Collection  *struct{} `xml:"DAV: collection"`
	Calendar    *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
	AddressBook *struct{} `xml:"urn:ietf:params:xml:ns:carddav addressbook"`
}

type componentSet struct {
	Comps []comp `xml:"comp"`
}

type comp struct {
	Name string `xml:"name,attr"`
}

// ok reports whether a propstat carries a 2xx status. Status lines
// look like "HTTP/1.1 200 OK".
func (p propstat) ok() bool {
	return p.Status == "" || strings.Contains(p.Status, " 2")
}

// findProp returns the first 2xx prop of a response.
func (r davResponse) findProp() *prop {
	for i := range r.Propstats {
		if r.Propstats[i].ok() {
			return &r.Propstats[i].Prop
		}
	}
	return nil
}

// notFound reports whether the response carries a 404 status, which
// sync-collection REPORTs use to signal removed resources.
func (r davResponse) notFound() bool {
	return len(r.Propstats) == 0 && strings.Contains(r.Status, "404")
}
