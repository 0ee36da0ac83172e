// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

var multipartMessage = crlf(
	"Message-ID: <abc123@mail.example.org>",
	"From: =?UTF-8?Q?Ren=C3=A9e_Alerts?= <alerts@example.org>",
	"To: Me <me@example.org>, other@example.org",
	"Subject: =?UTF-8?B?V2Vla2x5IGRpZ2VzdCDinJM=?=",
	"Date: Fri, 01 Mar 2024 08:30:00 +0100",
	"MIME-Version: 1.0",
	`Content-Type: multipart/mixed; boundary="outer"`,
	"",
	"preamble",
	"--outer",
	`Content-Type: multipart/alternative; boundary="inner"`,
	"",
	"--inner",
	`Content-Type: text/plain; charset="iso-8859-1"`,
	"Content-Transfer-Encoding: quoted-printable",
	"",
	"Caf=E9 news,",
	"line two",
	"--inner",
	"Content-Type: text/html",
	"",
	"<p>Caf&eacute; news</p>",
	"--inner--",
	"--outer",
	`Content-Type: application/pdf; name="ignored.pdf"`,
	`Content-Disposition: attachment; filename="report, final.pdf"`,
	"Content-Transfer-Encoding: base64",
	"",
	"JVBERi0xLjQK",
	"--outer",
	"Content-Type: text/plain; name=notes.txt",
	"",
	"plain attachment",
	"--outer--",
	"",
)

func TestParseMultipart(t *testing.T) {
	m, err := parseMessage(multipartMessage)
	require.NoError(t, err)

	assert.Equal(t, "abc123@mail.example.org", m.MessageID)
	assert.Equal(t, "Renée Alerts <alerts@example.org>", m.From)
	assert.Equal(t, "Weekly digest ✓", m.Subject)
	assert.Equal(t, []string{"Me <me@example.org>", "other@example.org"}, m.To)
	assert.True(t, m.Date.Equal(time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)))
	assert.Equal(t, "Café news,\nline two", m.Body)

	require.Len(t, m.Attachments, 2)
	assert.Equal(t, part{Path: "2", Name: "report, final.pdf", ContentType: "application/pdf", Size: int64(len("JVBERi0xLjQK"))}, m.Attachments[0])
	assert.Equal(t, "3", m.Attachments[1].Path)
	assert.Equal(t, "notes.txt", m.Attachments[1].Name)
}

func TestParseSinglePart(t *testing.T) {
	m, err := parseMessage(crlf(
		"From: a@example.org",
		"Subject: hello",
		"",
		"first line",
		"second line",
	))
	require.NoError(t, err)
	assert.Empty(t, m.MessageID)
	assert.True(t, m.Date.IsZero())
	assert.Nil(t, m.To)
	assert.Equal(t, "first line\nsecond line", m.Body)
	assert.Empty(t, m.Attachments)
}

func TestParseHTMLOnly(t *testing.T) {
	m, err := parseMessage(crlf(
		"Subject: html",
		"Content-Type: text/html; charset=utf-8",
		"Content-Transfer-Encoding: base64",
		"",
		"PGgxPlRpdGxlPC9oMT4KPHA+Qm9keSB0ZXh0PC9wPg==",
	))
	require.NoError(t, err)
	assert.Equal(t, "Title\nBody text", m.Body)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"no header terminator", []byte("Subject")},
		{"multipart without boundary", crlf("Content-Type: multipart/mixed", "", "body")},
		{"unterminated multipart", crlf(`Content-Type: multipart/mixed; boundary="b"`, "", "--b", "Content-Type: text/plain", "", "x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMessage(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "Grüße", decodeText([]byte("Gr=FC=DFe"), "quoted-printable", "ISO-8859-1"))
	assert.Equal(t, "plain", decodeText([]byte("plain"), "7bit", ""))
	assert.Equal(t, "a\nb", decodeText([]byte("a\r\nb"), "", "utf-8"))
	assert.Equal(t, "x", decodeText([]byte("x"), "", "no-such-charset"))
}
