// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mailbox is the mail source adapter. IMAP mailboxes are searched
// server side with criteria compiled from the filter; POP3 mailboxes have no
// search, so the newest messages are retrieved and filtered in memory.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/source"
	"github.com/pdiddy/watchcat/pkg/types"
)

// Defaults applied by New to zero config fields.
const (
	DefaultFolder      = "INBOX"
	DefaultMaxMessages = 100
	DefaultTimeout     = 30 * time.Second
)

var _ source.Adapter = (*Adapter)(nil)

// Adapter reads one mailbox over IMAP or POP3.
type Adapter struct {
	id       string
	protocol types.MailProtocol
	host     string
	port     int
	useSSL   bool
	username string
	password string
	folder   string
	max      int
	timeout  time.Duration
	now      func() time.Time
}

// New validates cfg and returns an adapter for source id. Every
// configuration problem is reported here, before any network I/O.
func New(id string, cfg types.MailboxConfig) (*Adapter, error) {
	if id == "" {
		return nil, types.ConfigError(id, errors.New("source id is required"))
	}
	proto, err := types.ParseMailProtocol(cfg.Protocol)
	if err != nil {
		return nil, types.ConfigError(id, err)
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, types.ConfigError(id, errors.New("mailbox: host is required"))
	}
	if cfg.Username == "" {
		return nil, types.ConfigError(id, errors.New("mailbox: username is required"))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, types.ConfigError(id, fmt.Errorf("mailbox: port %d out of range", cfg.Port))
	}
	if cfg.MaxMessages < 0 {
		return nil, types.ConfigError(id, errors.New("mailbox: max_messages must not be negative"))
	}

	a := &Adapter{
		id:       id,
		protocol: proto,
		host:     host,
		port:     cfg.Port,
		useSSL:   cfg.UseSSL,
		username: cfg.Username,
		password: cfg.Password,
		folder:   cfg.Folder,
		max:      cfg.MaxMessages,
		timeout:  cfg.Timeout,
		now:      time.Now,
	}
	if a.port == 0 {
		a.port = proto.DefaultPort(cfg.UseSSL)
	}
	if a.folder == "" {
		a.folder = DefaultFolder
	}
	if a.max == 0 {
		a.max = DefaultMaxMessages
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a, nil
}

func (a *Adapter) ID() string                   { return a.id }
func (a *Adapter) Kind() types.Kind             { return types.KindMail }
func (a *Adapter) Protocol() types.MailProtocol { return a.protocol }
func (a *Adapter) Port() int                    { return a.port }
func (a *Adapter) Folder() string               { return a.folder }

func (a *Adapter) addr() string {
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}

// Connect dials the server and authenticates. IMAP sessions also select the
// folder read-only.
func (a *Adapter) Connect(ctx context.Context) (source.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch a.protocol {
	case types.ProtocolIMAP:
		return a.connectIMAP(ctx)
	case types.ProtocolPOP3:
		return a.connectPOP3(ctx)
	}
	return nil, fmt.Errorf("unsupported protocol %s", a.protocol)
}

// Compile partitions expr. POP3 has no search, so its plans are fully
// residual.
func (a *Adapter) Compile(expr filter.Expr) source.Plan {
	var tr source.Translator = source.Residual{}
	if a.protocol.SupportsSearch() {
		tr = Translator{}
	}
	plan := source.Partition(expr, types.KindMail, tr)
	if plan.Native != nil {
		plan.Query = plan.Native.String()
	}
	return plan
}

// Fetch retrieves raw messages through conn, which must come from Connect.
func (a *Adapter) Fetch(ctx context.Context, conn source.Conn, plan source.Plan, w source.Window) ([]source.RawItem, error) {
	var (
		items []source.RawItem
		err   error
	)
	switch s := conn.(type) {
	case *imapSession:
		items, err = s.fetch(ctx, searchCriteria(plan.Native, w), a.now)
	case *pop3Session:
		items, err = s.fetch(ctx, a.max, w, a.now)
	default:
		return nil, fmt.Errorf("mailbox: unexpected connection type %T", conn)
	}
	if err != nil {
		return nil, err
	}
	return w.Keep(items), nil
}

// Normalize parses one raw RFC 5322 message into a MailRecord.
func (a *Adapter) Normalize(item source.RawItem) (types.Record, error) {
	msg, err := parseMessage(item.Data)
	if err != nil {
		return nil, err
	}

	link := a.Link(item.ID)
	m := &types.MailRecord{
		Identifier: msg.MessageID,
		SourceID:   a.id,
		UID:        item.ID,
		Folder:     a.folder,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Sender:     msg.From,
		Recipients: msg.To,
		Received:   msg.Date,
		Pulled:     item.Fetched,
		Link:       link,
	}
	if m.Identifier == "" {
		m.Identifier = item.ID
	}
	if m.Identifier == "" {
		return nil, errors.New("message has neither Message-ID nor uid")
	}
	if m.Pulled.IsZero() {
		m.Pulled = a.now()
	}
	for _, p := range msg.Attachments {
		m.Attachments = append(m.Attachments, types.Attachment{
			Name:        p.Name,
			Ref:         link + "#part=" + p.Path,
			ContentType: p.ContentType,
			Size:        p.Size,
		})
	}
	return m, nil
}

// Link returns the mailbox URL of a message.
func (a *Adapter) Link(uid string) string {
	return fmt.Sprintf("mailbox://%s/%s/%s", a.host, a.folder, uid)
}
