package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
	"github.com/mholva/gwmigrate/internal/transport"
)

const soapEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
               xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types"
               xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
  <soap:Header>
    <t:RequestServerVersion Version="Exchange2013"/>%s
  </soap:Header>
  <soap:Body>%s</soap:Body>
</soap:Envelope>`

// client posts SOAP requests to an Exchange Web Services endpoint.
// Admin credentials may impersonate the migrated mailbox via the
// ExchangeImpersonation header.
type client struct {
	endpoint    string
	username    string
	password    string
	impersonate string
	http        transport.Doer
}

func newClient(cfg model.Config, account *model.Account) *client {
	impersonate := ""
	if account.Option("user") != "" {
		impersonate = account.Option("user")
	}
	return &client{
		endpoint:    fmt.Sprintf("https://%s/EWS/Exchange.asmx", account.Addr("443")),
		username:    account.Username,
		password:    account.Password,
		impersonate: impersonate,
		http:        transport.NewClient(cfg, account.InsecureTLS()),
	}
}

// call posts one operation body and decodes the response envelope into
// out.
func (c *client) call(ctx context.Context, body string, out any) error {
	header := ""
	if c.impersonate != "" {
		header = fmt.Sprintf(`
    <t:ExchangeImpersonation>
      <t:ConnectingSID><t:PrimarySmtpAddress>%s</t:PrimarySmtpAddress></t:ConnectingSID>
    </t:ExchangeImpersonation>`, xmlEscape(c.impersonate))
	}
	payload := fmt.Sprintf(soapEnvelope, header, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte(payload)))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ews request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ews response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &driver.AuthError{Protocol: model.ProtocolEWS, Message: resp.Status}
	case resp.StatusCode == http.StatusInternalServerError:
		var fault soapFault
		if xml.Unmarshal(raw, &fault) == nil && fault.String != "" {
			return fmt.Errorf("ews fault: %s", fault.String)
		}
		return fmt.Errorf("ews: unexpected status %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("ews: unexpected status %s", resp.Status)
	}

	if err := xml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding ews response: %w", err)
	}
	return nil
}

// checkResponse folds EWS per-message status into an error.
func checkResponse(class, code, text string) error {
	if class == "" || class == "Success" || class == "Warning" {
		return nil
	}
	if code == "ErrorItemNotFound" {
		return driver.ErrNotFound
	}
	if text == "" {
		text = code
	}
	return fmt.Errorf("ews: %s", text)
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
