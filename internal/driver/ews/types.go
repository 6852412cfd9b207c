package ews

import "encoding/xml"

// Exchange folder classes.
const (
	classMail    = "IPF.Note"
	classEvent   = "IPF.Appointment"
	classContact = "IPF.Contact"
	classTask    = "IPF.Task"
)

type ewsID struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr"`
}

type ewsFolder struct {
	ID          ewsID  `xml:"FolderId"`
	ParentID    ewsID  `xml:"ParentFolderId"`
	DisplayName string `xml:"DisplayName"`
	FolderClass string `xml:"FolderClass"`
}

// ewsItem is the shared shape for Message, CalendarItem, Contact and
// Task elements: identity and the stable fields UID derivation and
// content synthesis need.
type ewsItem struct {
	XMLName xml.Name

	ItemID    ewsID  `xml:"ItemId"`
	ItemClass string `xml:"ItemClass"`
	Subject   string `xml:"Subject"`

	MimeContent string `xml:"MimeContent"`

	// Message.
	InternetMessageID string   `xml:"InternetMessageId"`
	IsRead            bool     `xml:"IsRead"`
	Flagged           bool     `xml:"IsFlagStatusSet"`
	Categories        []string `xml:"Categories>String"`

	// CalendarItem.
	UID       string `xml:"UID"`
	Start     string `xml:"Start"`
	Organizer struct {
		Email string `xml:"Mailbox>EmailAddress"`
	} `xml:"Organizer"`

	// Contact.
	DisplayName  string     `xml:"DisplayName"`
	GivenName    string     `xml:"GivenName"`
	Surname      string     `xml:"Surname"`
	CompanyName  string     `xml:"CompanyName"`
	EmailEntries []ewsEntry `xml:"EmailAddresses>Entry"`
	PhoneEntries []ewsEntry `xml:"PhoneNumbers>Entry"`

	// Task.
	DueDate   string `xml:"DueDate"`
	Status    string `xml:"Status"`
	StartDate string `xml:"StartDate"`
	BodyText  string `xml:"Body"`
}

type ewsEntry struct {
	Key   string `xml:"Key,attr"`
	Value string `xml:",chardata"`
}

// Response envelopes. encoding/xml matches unqualified local names
// against any namespace, so the t:/m: prefixes on the wire need no
// special handling.

type findFolderResponse struct {
	Messages []struct {
		ResponseClass string    `xml:"ResponseClass,attr"`
		MessageText   string    `xml:"MessageText"`
		RootFolder    folderSet `xml:"RootFolder"`
	} `xml:"Body>FindFolderResponse>ResponseMessages>FindFolderResponseMessage"`
}

type folderSet struct {
	Folders         []ewsFolder `xml:"Folders>Folder"`
	CalendarFolders []ewsFolder `xml:"Folders>CalendarFolder"`
	ContactsFolders []ewsFolder `xml:"Folders>ContactsFolder"`
	TasksFolders    []ewsFolder `xml:"Folders>TasksFolder"`
}

func (s folderSet) all() []ewsFolder {
	var out []ewsFolder
	out = append(out, s.Folders...)
	for _, f := range s.CalendarFolders {
		if f.FolderClass == "" {
			f.FolderClass = classEvent
		}
		out = append(out, f)
	}
	for _, f := range s.ContactsFolders {
		if f.FolderClass == "" {
			f.FolderClass = classContact
		}
		out = append(out, f)
	}
	for _, f := range s.TasksFolders {
		if f.FolderClass == "" {
			f.FolderClass = classTask
		}
		out = append(out, f)
	}
	return out
}

type getFolderResponse struct {
	Messages []struct {
		ResponseClass string `xml:"ResponseClass,attr"`
		MessageText   string `xml:"MessageText"`
		folderSet
	} `xml:"Body>GetFolderResponse>ResponseMessages>GetFolderResponseMessage"`
}

type createFolderResponse struct {
	Messages []struct {
		ResponseClass string `xml:"ResponseClass,attr"`
		MessageText   string `xml:"MessageText"`
		folderSet
	} `xml:"Body>CreateFolderResponse>ResponseMessages>CreateFolderResponseMessage"`
}

type syncFolderItemsResponse struct {
	Messages []syncMessage `xml:"Body>SyncFolderItemsResponse>ResponseMessages>SyncFolderItemsResponseMessage"`
}

type syncMessage struct {
	ResponseClass string       `xml:"ResponseClass,attr"`
	MessageText   string       `xml:"MessageText"`
	SyncState     string       `xml:"SyncState"`
	LastInRange   bool         `xml:"IncludesLastItemInRange"`
	Creates       []syncChange `xml:"Changes>Create"`
	Updates       []syncChange `xml:"Changes>Update"`
	Deletes       []syncDelete `xml:"Changes>Delete"`
}

type syncDelete struct {
	ItemID ewsID `xml:"ItemId"`
}

type syncChange struct {
	Item ewsItem `xml:",any"`
}

type getItemResponse struct {
	Messages []struct {
		ResponseClass string    `xml:"ResponseClass,attr"`
		ResponseCode  string    `xml:"ResponseCode"`
		MessageText   string    `xml:"MessageText"`
		Items         []ewsItem `xml:"Items>Message"`
		Calendar      []ewsItem `xml:"Items>CalendarItem"`
		Contacts      []ewsItem `xml:"Items>Contact"`
		Tasks         []ewsItem `xml:"Items>Task"`
	} `xml:"Body>GetItemResponse>ResponseMessages>GetItemResponseMessage"`
}

type createItemResponse struct {
	Messages []struct {
		ResponseClass string    `xml:"ResponseClass,attr"`
		MessageText   string    `xml:"MessageText"`
		Items         []ewsItem `xml:"Items>Message"`
		Calendar      []ewsItem `xml:"Items>CalendarItem"`
		Contacts      []ewsItem `xml:"Items>Contact"`
		Tasks         []ewsItem `xml:"Items>Task"`
	} `xml:"Body>CreateItemResponse>ResponseMessages>CreateItemResponseMessage"`
}

type respStatus struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
}

type deleteItemResponse struct {
	Messages []respStatus `xml:"Body>DeleteItemResponse>ResponseMessages>DeleteItemResponseMessage"`
}

type deleteFolderResponse struct {
	Messages []respStatus `xml:"Body>DeleteFolderResponse>ResponseMessages>DeleteFolderResponseMessage"`
}

type emptyFolderResponse struct {
	Messages []respStatus `xml:"Body>EmptyFolderResponse>ResponseMessages>EmptyFolderResponseMessage"`
}

type soapFault struct {
	String string `xml:"Body>Fault>faultstring"`
	Code   string `xml:"Body>Fault>faultcode"`
}

func (i ewsItem) firstEmail() string {
	for _, e := range i.EmailEntries {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}
