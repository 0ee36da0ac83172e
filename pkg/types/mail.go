// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

var _ Record = (*MailRecord)(nil)

// MailRecord is a message pulled from a mailbox.
type MailRecord struct {
	// Identifier is the Message-ID without angle brackets, or the protocol
	// UID when the message has none.
	Identifier string `json:"id" yaml:"id"`

	// SourceID is the configured source the message was pulled from.
	SourceID string `json:"source" yaml:"source"`

	// UID is the protocol-level message identifier (IMAP UID or POP3 UIDL).
	UID string `json:"uid" yaml:"uid"`

	// Folder is the mailbox folder (IMAP) the message was read from.
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`

	// Subject is the decoded Subject header.
	Subject string `json:"subject" yaml:"subject"`

	// Body is the decoded text body.
	Body string `json:"body" yaml:"body"`

	// Sender is the decoded From header.
	Sender string `json:"sender" yaml:"sender"`

	// Recipients lists the decoded To addresses.
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`

	// Received is the Date header; zero when absent or unparseable.
	Received time.Time `json:"received,omitempty" yaml:"received,omitempty"`

	// Pulled is the time the record was normalized.
	Pulled time.Time `json:"pulled" yaml:"pulled"`

	// Link locates the message on its server.
	Link string `json:"link" yaml:"link"`

	// Attachments describes the attached parts without their content.
	Attachments []Attachment `json:"attachments" yaml:"attachments"`
}

func (m *MailRecord) Kind() Kind             { return KindMail }
func (m *MailRecord) ID() string             { return m.Identifier }
func (m *MailRecord) Source() string         { return m.SourceID }
func (m *MailRecord) Heading() string        { return m.Subject }
func (m *MailRecord) Content() string        { return m.Body }
func (m *MailRecord) PublishedAt() time.Time { return m.Received }
func (m *MailRecord) PulledAt() time.Time    { return m.Pulled }
func (m *MailRecord) Files() []Attachment    { return m.Attachments }

// People returns the sender as a one-element list.
func (m *MailRecord) People() []string {
	if m.Sender == "" {
		return nil
	}
	return []string{m.Sender}
}

// Attr exposes recipient, folder, link, and uid.
func (m *MailRecord) Attr(name string) ([]string, bool) {
	switch name {
	case "recipient", "recipients", "to":
		return m.Recipients, true
	case "folder":
		return []string{m.Folder}, true
	case "link":
		return []string{m.Link}, true
	case "uid":
		return []string{m.UID}, true
	}
	return nil, false
}

// Prompt renders the message as a heading, sender line, and the body.
func (m *MailRecord) Prompt() string {
	var b strings.Builder
	b.WriteString("# " + m.Subject + "\n")
	b.WriteString("From: " + m.Sender + "\n")
	if !m.Received.IsZero() {
		b.WriteString("Date: " + m.Received.Format(time.RFC1123Z) + "\n")
	}
	b.WriteString("\n" + m.Body)
	if len(m.Attachments) > 0 {
		b.WriteString("\n\nAttachments: " + attachmentNames(m.Attachments))
	}
	return b.String()
}

// Flatten serializes the message to a flat mapping.
func (m *MailRecord) Flatten() map[string]string {
	f := flatBase(m)
	f[keyUID] = m.UID
	f[keyFolder] = m.Folder
	f[keyLink] = m.Link
	f[keyRecipients] = encodeList(m.Recipients)
	return f
}

// Equal reports whether other is a MailRecord with the same content.
func (m *MailRecord) Equal(other Record) bool {
	o, ok := other.(*MailRecord)
	if !ok || o == nil {
		return false
	}
	return m.Identifier == o.Identifier &&
		m.SourceID == o.SourceID &&
		m.UID == o.UID &&
		m.Folder == o.Folder &&
		m.Subject == o.Subject &&
		m.Body == o.Body &&
		m.Sender == o.Sender &&
		equalStrings(m.Recipients, o.Recipients) &&
		m.Received.Equal(o.Received) &&
		m.Pulled.Equal(o.Pulled) &&
		m.Link == o.Link &&
		equalAttachments(m.Attachments, o.Attachments)
}

func unflattenMail(f map[string]string) (Record, error) {
	m := &MailRecord{
		Identifier: f[keyID],
		SourceID:   f[keySource],
		UID:        f[keyUID],
		Folder:     f[keyFolder],
		Subject:    f[keyTitle],
		Body:       f[keyBody],
		Link:       f[keyLink],
	}
	senders, err := decodeList(f, keyAuthors)
	if err != nil {
		return nil, err
	}
	if len(senders) > 0 {
		m.Sender = senders[0]
	}
	if m.Recipients, err = decodeList(f, keyRecipients); err != nil {
		return nil, err
	}
	if m.Attachments, err = decodeAttachments(f); err != nil {
		return nil, err
	}
	if m.Received, err = parseTime(f, keyPublished); err != nil {
		return nil, err
	}
	if m.Pulled, err = parseTime(f, keyPulled); err != nil {
		return nil, err
	}
	return m, nil
}
