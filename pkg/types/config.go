// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// HTTPConfig holds shared HTTP settings used by adapters that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "watchcat/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries bounds retries on HTTP 429 and 503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0"`
}

// ArxivConfig holds settings for the paper-feed adapter.
type ArxivConfig struct {
	HTTPConfig `yaml:",inline"`

	// Categories are always ANDed into the query (e.g. ["cs.LG", "cs.AI"]
	// becomes "(cat:cs.LG OR cat:cs.AI)").
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// PageSize is the number of entries requested per page (default 100).
	PageSize int `json:"page_size" yaml:"page_size" validate:"gte=0,lte=2000"`

	// MaxResults caps the entries fetched per pull (default 1000).
	MaxResults int `json:"max_results" yaml:"max_results" validate:"gte=0"`

	// RequestInterval is the minimum delay between API requests (default 3s).
	RequestInterval time.Duration `json:"request_interval" yaml:"request_interval"`
}

// MailProtocol is the closed set of mail retrieval protocols.
type MailProtocol int

const (
	ProtocolIMAP MailProtocol = iota + 1
	ProtocolPOP3
)

// ParseMailProtocol maps a configured protocol name to a MailProtocol.
// Names are case-insensitive; anything other than imap or pop3 fails.
func ParseMailProtocol(name string) (MailProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "imap":
		return ProtocolIMAP, nil
	case "pop3":
		return ProtocolPOP3, nil
	}
	return 0, fmt.Errorf("unsupported mail protocol %q (want imap or pop3)", name)
}

// String returns the protocol name.
func (p MailProtocol) String() string {
	switch p {
	case ProtocolIMAP:
		return "imap"
	case ProtocolPOP3:
		return "pop3"
	}
	return fmt.Sprintf("MailProtocol(%d)", int(p))
}

// DefaultPort returns the well-known port for the protocol with or without
// implicit TLS.
func (p MailProtocol) DefaultPort(useSSL bool) int {
	switch p {
	case ProtocolIMAP:
		if useSSL {
			return 993
		}
		return 143
	case ProtocolPOP3:
		if useSSL {
			return 995
		}
		return 110
	}
	return 0
}

// SupportsSearch reports whether the server can evaluate search criteria.
func (p MailProtocol) SupportsSearch() bool { return p == ProtocolIMAP }

// MailboxConfig holds settings for the mailbox adapter.
type MailboxConfig struct {
	// Protocol is "imap" or "pop3".
	Protocol string `json:"protocol" yaml:"protocol" validate:"required"`

	// Host is the mail server hostname.
	Host string `json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`

	// Port overrides the protocol default when non-zero.
	Port int `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`

	// UseSSL selects implicit TLS.
	UseSSL bool `json:"use_ssl" yaml:"use_ssl"`

	// Username is the login name.
	Username string `json:"username" yaml:"username" validate:"required"`

	// Password is the login password. Prefer PasswordSecret.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// PasswordSecret names a file in the secrets directory holding the password.
	PasswordSecret string `json:"password_secret,omitempty" yaml:"password_secret,omitempty"`

	// Folder is the IMAP folder to read (default "INBOX").
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`

	// MaxMessages caps the messages retrieved per POP3 pull (default 100).
	// In-window messages beyond the cap are retrieved by later pulls.
	MaxMessages int `json:"max_messages,omitempty" yaml:"max_messages,omitempty" validate:"gte=0"`

	// Timeout bounds dialing the server (default 30s).
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
