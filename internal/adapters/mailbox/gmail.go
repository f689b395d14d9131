package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailProvider = "gmail"

// GmailFactory opens Gmail mailboxes with a bearer token
type GmailFactory struct {
	user   string
	tokens oauth2.TokenSource
	opts   []option.ClientOption
	logger *zap.Logger
}

// NewGmailFactory creates a factory for the given Gmail user ("me" when
// empty). Extra options are appended after the token source.
func NewGmailFactory(user, accessToken string, logger *zap.Logger, opts ...option.ClientOption) *GmailFactory {
	if user == "" {
		user = "me"
	}
	return &GmailFactory{
		user:   user,
		tokens: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		opts:   opts,
		logger: logger,
	}
}

// ForUser returns a Gmail mailbox. Every user shares the configured account.
func (f *GmailFactory) ForUser(ctx context.Context, userID string) (core.MailProvider, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(f.tokens)}, f.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, &core.ProviderError{Provider: gmailProvider, Err: fmt.Errorf("create service: %w", err), Fatal: true}
	}
	return &GmailMailbox{svc: svc, user: f.user, logger: f.logger.With(zap.String("user_id", userID))}, nil
}

// GmailMailbox is a core.MailProvider over the Gmail REST API
type GmailMailbox struct {
	svc    *gmail.Service
	user   string
	logger *zap.Logger
}

// ListCandidateMessages pages through the search results until maxResults refs are collected
func (g *GmailMailbox) ListCandidateMessages(ctx context.Context, query string, maxResults int) ([]core.MessageRef, error) {
	var refs []core.MessageRef
	pageToken := ""
	for {
		call := g.svc.Users.Messages.List(g.user).Q(query).Context(ctx)
		if maxResults > 0 {
			call = call.MaxResults(int64(maxResults - len(refs)))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, gmailError("list messages", err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, core.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" || (maxResults > 0 && len(refs) >= maxResults) {
			break
		}
		pageToken = resp.NextPageToken
	}
	if maxResults > 0 && len(refs) > maxResults {
		refs = refs[:maxResults]
	}
	g.logger.Debug("Listed Gmail messages", zap.String("query", query), zap.Int("count", len(refs)))
	return refs, nil
}

// GetMessage fetches one message in full format and flattens it
func (g *GmailMailbox) GetMessage(ctx context.Context, id string) (*core.MailMessage, error) {
	m, err := g.svc.Users.Messages.Get(g.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, gmailError("get message "+id, err)
	}
	return convertGmailMessage(m), nil
}

func convertGmailMessage(m *gmail.Message) *core.MailMessage {
	msg := &core.MailMessage{
		ID:         m.Id,
		ThreadID:   m.ThreadId,
		ReceivedAt: time.UnixMilli(m.InternalDate).UTC(),
	}
	for _, label := range m.LabelIds {
		if label == "SENT" {
			msg.IsOutbound = true
		}
	}
	if m.Payload == nil {
		msg.Body = m.Snippet
		return msg
	}
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = decodeEncodedHeader(h.Value)
		case "to":
			msg.To = decodeEncodedHeader(h.Value)
		case "subject":
			msg.Subject = decodeEncodedHeader(h.Value)
		}
	}

	var plain, html strings.Builder
	walkParts(m.Payload, &plain, &html)
	switch {
	case strings.TrimSpace(plain.String()) != "":
		msg.Body = strings.TrimSpace(plain.String())
	case strings.TrimSpace(html.String()) != "":
		msg.Body = stripHTML(html.String())
	case m.Snippet != "":
		msg.Body = m.Snippet
	default:
		msg.Body = noTextContent
	}
	return msg
}

func walkParts(p *gmail.MessagePart, plain, html *strings.Builder) {
	if p == nil {
		return
	}
	if p.Filename == "" && p.Body != nil && p.Body.Data != "" {
		switch strings.ToLower(p.MimeType) {
		case "text/plain":
			appendPart(plain, decodeBase64URL(p.Body.Data))
		case "text/html":
			appendPart(html, decodeBase64URL(p.Body.Data))
		}
	}
	for _, child := range p.Parts {
		walkParts(child, plain, html)
	}
}

func decodeBase64URL(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// gmailError wraps API failures; rejected credentials are fatal for the run
func gmailError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return &core.ProviderError{
			Provider: gmailProvider,
			Err:      fmt.Errorf("%s: %w: %v", op, core.ErrUnauthorized, err),
			Fatal:    true,
		}
	}
	return &core.ProviderError{Provider: gmailProvider, Err: fmt.Errorf("%s: %w", op, err)}
}
