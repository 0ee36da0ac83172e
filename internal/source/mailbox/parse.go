// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// message is the decoded content of one RFC 5322 message.
type message struct {
	MessageID   string
	Subject     string
	From        string
	To          []string
	Date        time.Time
	Body        string
	Attachments []part
}

// part describes an attached MIME part. Path numbers parts the way IMAP
// BODY[] sections do ("2", "1.3").
type part struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeHeader decodes RFC 2047 encoded words, returning the raw value when
// decoding fails.
func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

func parseMessage(raw []byte) (*message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty message")
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	m := &message{
		MessageID: strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      decodeHeader(msg.Header.Get("From")),
		To:        recipients(msg.Header),
	}
	if t, err := msg.Header.Date(); err == nil {
		m.Date = t
	}

	var w walker
	if err := w.walk(textproto.MIMEHeader(msg.Header), msg.Body, ""); err != nil {
		return nil, err
	}
	m.Attachments = w.attachments
	switch {
	case len(w.plain) > 0:
		m.Body = strings.TrimSpace(strings.Join(w.plain, "\n"))
	case len(w.html) > 0:
		m.Body = stripHTMLTags(strings.Join(w.html, "\n"))
	}
	return m, nil
}

func recipients(h mail.Header) []string {
	list, err := h.AddressList("To")
	if err != nil {
		raw := decodeHeader(h.Get("To"))
		if raw == "" {
			return nil
		}
		var out []string
		for _, r := range strings.Split(raw, ",") {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
		return out
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Name != "" {
			out = append(out, a.Name+" <"+a.Address+">")
		} else {
			out = append(out, a.Address)
		}
	}
	return out
}

type walker struct {
	plain       []string
	html        []string
	attachments []part
}

// walk visits a MIME entity. path is the IMAP section number of the entity;
// the top-level entity of a single-part message is section "1".
func (w *walker) walk(h textproto.MIMEHeader, body io.Reader, path string) error {
	ctype := h.Get("Content-Type")
	if ctype == "" {
		ctype = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(ctype)
	if err != nil {
		mediaType, params = "text/plain", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%s entity without boundary", mediaType)
		}
		mr := multipart.NewReader(body, boundary)
		for i := 1; ; i++ {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading MIME part %s: %w", childPath(path, i), err)
			}
			err = w.walk(p.Header, p, childPath(path, i))
			p.Close()
			if err != nil {
				return err
			}
		}
	}

	if path == "" {
		path = "1"
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading MIME part %s: %w", path, err)
	}

	if name := partFilename(h, params); name != "" {
		w.attachments = append(w.attachments, part{
			Path:        path,
			Name:        name,
			ContentType: mediaType,
			Size:        int64(len(raw)),
		})
		return nil
	}

	switch mediaType {
	case "text/plain":
		w.plain = append(w.plain, decodeText(raw, h.Get("Content-Transfer-Encoding"), params["charset"]))
	case "text/html":
		w.html = append(w.html, decodeText(raw, h.Get("Content-Transfer-Encoding"), params["charset"]))
	}
	return nil
}

func childPath(parent string, i int) string {
	if parent == "" {
		return strconv.Itoa(i)
	}
	return parent + "." + strconv.Itoa(i)
}

// partFilename returns the announced file name of a part, from the
// Content-Disposition filename or the Content-Type name parameter.
func partFilename(h textproto.MIMEHeader, ctypeParams map[string]string) string {
	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, p, err := mime.ParseMediaType(cd); err == nil && p["filename"] != "" {
			return decodeHeader(p["filename"])
		}
	}
	if n := ctypeParams["name"]; n != "" {
		return decodeHeader(n)
	}
	return ""
}

// decodeText undoes the transfer encoding and converts the charset to UTF-8.
func decodeText(raw []byte, transferEncoding, charset string) string {
	var r io.Reader = bytes.NewReader(raw)
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		data = raw
	}

	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
	default:
		if enc, err := htmlindex.Get(charset); err == nil {
			if out, err := enc.NewDecoder().Bytes(data); err == nil {
				data = out
			}
		}
	}
	s := string(data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// stripHTMLTags removes HTML tags for basic text extraction.
func stripHTMLTags(html string) string {
	var result strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	var cleaned []string
	for _, line := range strings.Split(result.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
