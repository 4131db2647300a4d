package mailbox

import (
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// otpPatterns is ordered most specific first. The console's security emails
// read "Your login security code: 482913"; later patterns tolerate template
// drift, the last one is a bare 6-digit fallback.
var otpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Your login security code:\s*(\d{6})`),
	regexp.MustCompile(`(?i)login security code:\s*(\d{6})`),
	regexp.MustCompile(`(?i)security code:\s*(\d{6})`),
	regexp.MustCompile(`(?i)code:\s*(\d{6})`),
	regexp.MustCompile(`\b(\d{6})\b`),
}

// ExtractCode pulls a 6-digit OTP out of an email body, trying patterns
// from most to least specific. Returns "" when nothing matches.
func ExtractCode(body string) string {
	for _, pattern := range otpPatterns {
		m := pattern.FindStringSubmatch(body)
		if len(m) == 2 && len(m[1]) == 6 {
			return m[1]
		}
	}
	return ""
}

// ExtractBody reads the text body out of a raw RFC 822 message, preferring
// the first text/plain part of a multipart message.
func ExtractBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}

	var fallback string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := header.ContentType()
		if err != nil {
			contentType = ""
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		if strings.HasPrefix(contentType, "text/plain") {
			return string(data), nil
		}
		if fallback == "" {
			fallback = string(data)
		}
	}

	return fallback, nil
}
