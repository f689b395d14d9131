package mailbox

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
)

const noTextContent = "[No text content found in message]"

var (
	wordDecoder = &mime.WordDecoder{}
	htmlTags    = regexp.MustCompile(`(?s)<(?:script|style)[^>]*>.*?</(?:script|style)>|<[^>]+>`)
)

// decodeEncodedHeader decodes RFC 2047 encoded words, returning the input on failure
func decodeEncodedHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractTextFromMessage returns the plain text of a message. text/plain
// parts are preferred at any nesting depth; text/html is stripped of tags
// when no plain part exists.
func extractTextFromMessage(msg *mail.Message) (string, error) {
	plain, html, err := collectText(
		msg.Header.Get("Content-Type"),
		msg.Header.Get("Content-Transfer-Encoding"),
		msg.Body,
	)
	if err != nil {
		return "", err
	}
	switch {
	case strings.TrimSpace(plain) != "":
		return strings.TrimSpace(plain), nil
	case strings.TrimSpace(html) != "":
		return stripHTML(html), nil
	}
	return noTextContent, nil
}

func collectText(contentType, encoding string, body io.Reader) (plain, html string, err error) {
	mediaType, params, perr := mime.ParseMediaType(contentType)
	if contentType == "" || perr != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok {
			return "", "", fmt.Errorf("multipart message without boundary")
		}
		var plainBuf, htmlBuf strings.Builder
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				// keep whatever was read before the broken part
				if plainBuf.Len() > 0 || htmlBuf.Len() > 0 {
					break
				}
				return "", "", fmt.Errorf("read multipart: %w", err)
			}
			if strings.HasPrefix(strings.ToLower(part.Header.Get("Content-Disposition")), "attachment") {
				continue
			}
			p, h, err := collectText(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				continue
			}
			appendPart(&plainBuf, p)
			appendPart(&htmlBuf, h)
		}
		return plainBuf.String(), htmlBuf.String(), nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}

	data, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	if mediaType == "text/html" {
		return "", string(data), nil
	}
	return string(data), "", nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

// newlineStripper drops CR and LF so base64 line breaks do not break decoding
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		count, err := n.r.Read(p)
		kept := p[:0]
		for _, b := range p[:count] {
			if b != '\r' && b != '\n' {
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 || err != nil {
			return len(kept), err
		}
	}
}

func appendPart(b *strings.Builder, s string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(s)
}

func stripHTML(html string) string {
	text := htmlTags.ReplaceAllString(html, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// threadKey picks the root of the reference chain so replies share a thread
func threadKey(h mail.Header) string {
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		return trimAngles(refs[0])
	}
	if irt := strings.TrimSpace(h.Get("In-Reply-To")); irt != "" {
		return trimAngles(strings.Fields(irt)[0])
	}
	return trimAngles(strings.TrimSpace(h.Get("Message-Id")))
}

func trimAngles(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(id, "<"), ">")
}

func readMessage(raw []byte) (*mail.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}
