package mailbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/domainset"
	"go.uber.org/zap"
)

// DefaultInboxCapacity bounds the messages held per user between syncs
const DefaultInboxCapacity = 1000

// SMTPInbox accepts forwarded mail over SMTP and holds it per user until a
// sync pulls it. It implements core.MailProviderFactory and ports.Service.
type SMTPInbox struct {
	logger     *zap.Logger
	listenAddr string
	domain     string
	capacity   int
	server     *smtp.Server

	// address -> user id
	owners map[string]string
	// user id -> the user's own addresses, for outbound detection
	own map[string]map[string]struct{}

	mu       sync.RWMutex
	messages map[string][]*core.MailMessage
	now      func() time.Time
}

// NewSMTPInbox creates an inbox. accounts maps a user id to a comma separated
// list of that user's addresses; mail to <user>@domain is accepted as well.
func NewSMTPInbox(logger *zap.Logger, listenAddr, domain string, accounts map[string]string) *SMTPInbox {
	in := &SMTPInbox{
		logger:     logger,
		listenAddr: listenAddr,
		domain:     strings.ToLower(domain),
		capacity:   DefaultInboxCapacity,
		owners:     make(map[string]string),
		own:        make(map[string]map[string]struct{}),
		messages:   make(map[string][]*core.MailMessage),
		now:        time.Now,
	}
	for user, list := range accounts {
		user = strings.ToLower(strings.TrimSpace(user))
		in.own[user] = make(map[string]struct{})
		for _, addr := range strings.Split(list, ",") {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if addr == "" {
				continue
			}
			in.owners[addr] = user
			in.own[user][addr] = struct{}{}
		}
	}
	return in
}

// Start starts the SMTP listener
func (in *SMTPInbox) Start() error {
	in.server = smtp.NewServer(&smtpBackend{inbox: in})

	in.server.Addr = in.listenAddr
	in.server.Domain = in.domain
	in.server.ReadTimeout = 30 * time.Second
	in.server.WriteTimeout = 30 * time.Second
	in.server.MaxMessageBytes = 30 * 1024 * 1024
	in.server.MaxRecipients = 50

	in.logger.Info("SMTP inbox starting",
		zap.String("address", in.listenAddr),
		zap.Int("accounts", len(in.own)))

	go func() {
		if err := in.server.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			in.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the SMTP listener
func (in *SMTPInbox) Stop() error {
	if in.server != nil {
		return in.server.Close()
	}
	return nil
}

// ForUser returns the held mailbox of a configured user
func (in *SMTPInbox) ForUser(ctx context.Context, userID string) (core.MailProvider, error) {
	userID = strings.ToLower(userID)
	if _, ok := in.own[userID]; !ok {
		return nil, &core.NotFoundError{Kind: "mailbox", ID: userID}
	}
	return &inboxMailbox{inbox: in, userID: userID}, nil
}

// resolve maps an envelope recipient onto a user id
func (in *SMTPInbox) resolve(rcpt string) (string, bool) {
	addr := strings.ToLower(strings.Trim(strings.TrimSpace(rcpt), "<>"))
	if user, ok := in.owners[addr]; ok {
		return user, true
	}
	local, domain, ok := domainset.SplitAddress(addr)
	if ok && domain == in.domain {
		if _, known := in.own[local]; known {
			return local, true
		}
	}
	return "", false
}

func (in *SMTPInbox) isOwnAddress(userID, addr string) bool {
	_, ok := in.own[userID][strings.ToLower(strings.Trim(addr, "<> "))]
	return ok
}

func (in *SMTPInbox) deliver(userID string, msg *core.MailMessage) {
	in.mu.Lock()
	defer in.mu.Unlock()

	held := in.messages[userID]
	for _, m := range held {
		if m.ID == msg.ID {
			return
		}
	}
	held = append(held, msg)
	if len(held) > in.capacity {
		dropped := len(held) - in.capacity
		in.logger.Warn("SMTP inbox full, dropping oldest messages",
			zap.String("user_id", userID),
			zap.Int("dropped", dropped))
		held = held[dropped:]
	}
	in.messages[userID] = held
}

// inboxMailbox is the core.MailProvider view of one user's held messages
type inboxMailbox struct {
	inbox  *SMTPInbox
	userID string
}

// ListCandidateMessages returns the newest held messages. The inbox only
// holds forwarded mail, so the query is not used.
func (m *inboxMailbox) ListCandidateMessages(ctx context.Context, query string, maxResults int) ([]core.MessageRef, error) {
	m.inbox.mu.RLock()
	held := append([]*core.MailMessage(nil), m.inbox.messages[m.userID]...)
	m.inbox.mu.RUnlock()

	sort.SliceStable(held, func(i, j int) bool {
		return held[i].ReceivedAt.After(held[j].ReceivedAt)
	})
	if maxResults > 0 && len(held) > maxResults {
		held = held[:maxResults]
	}

	refs := make([]core.MessageRef, 0, len(held))
	for _, msg := range held {
		refs = append(refs, core.MessageRef{ID: msg.ID, ThreadID: msg.ThreadID})
	}
	return refs, nil
}

func (m *inboxMailbox) GetMessage(ctx context.Context, id string) (*core.MailMessage, error) {
	m.inbox.mu.RLock()
	defer m.inbox.mu.RUnlock()

	for _, msg := range m.inbox.messages[m.userID] {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, &core.NotFoundError{Kind: "mail message", ID: id}
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	inbox *SMTPInbox
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{inbox: b.inbox}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	inbox  *SMTPInbox
	sender string
	users  []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.users = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt accepts only recipients that belong to a configured user
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	user, ok := s.inbox.resolve(to)
	if !ok {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "No such mailbox",
		}
	}
	for _, u := range s.users {
		if u == user {
			return nil
		}
	}
	s.users = append(s.users, user)
	return nil
}

// Data parses the message and holds a copy for every resolved user
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.inbox.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := readMessage(raw)
	if err != nil {
		s.inbox.logger.Error("Failed to parse email message", zap.Error(err))
		return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 6, 0}, Message: "Malformed message"}
	}

	text, err := extractTextFromMessage(msg)
	if err != nil {
		s.inbox.logger.Warn("Failed to extract text content", zap.Error(err))
		text = noTextContent
	}

	receivedAt := s.inbox.now().UTC()
	if date, err := msg.Header.Date(); err == nil {
		receivedAt = date.UTC()
	}

	id := trimAngles(strings.TrimSpace(msg.Header.Get("Message-Id")))
	if id == "" {
		sum := sha256.Sum256(raw)
		id = hex.EncodeToString(sum[:16])
	}
	thread := threadKey(msg.Header)
	if thread == "" {
		thread = id
	}

	from := decodeEncodedHeader(msg.Header.Get("From"))
	if from == "" {
		from = s.sender
	}

	for _, user := range s.users {
		s.inbox.deliver(user, &core.MailMessage{
			ID:         "smtp:" + id,
			ThreadID:   "smtp:" + thread,
			From:       from,
			To:         decodeEncodedHeader(msg.Header.Get("To")),
			Subject:    decodeEncodedHeader(msg.Header.Get("Subject")),
			Body:       text,
			ReceivedAt: receivedAt,
			IsOutbound: s.inbox.isOwnAddress(user, s.sender),
		})
	}

	s.inbox.logger.Info("Received forwarded email",
		zap.String("message_id", id),
		zap.Int("users", len(s.users)))

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}

// String describes the inbox for logs
func (in *SMTPInbox) String() string {
	return fmt.Sprintf("smtp inbox on %s", in.listenAddr)
}
