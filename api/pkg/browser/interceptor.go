package browser

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/types"
)

// minTokenLength filters header noise; real console tokens are long JWTs.
const minTokenLength = 20

// Interceptor is a one-way tap on the page's outgoing request headers.
// It never rewrites traffic and its callback never blocks the request it
// observes. First-seen-wins per token kind: later observations of the same
// kind are ignored.
type Interceptor struct {
	mu     sync.Mutex
	tokens map[types.TokenKind]string
}

func NewInterceptor() *Interceptor {
	return &Interceptor{
		tokens: map[types.TokenKind]string{},
	}
}

// Attach subscribes to outgoing-request events on the page. Must run before
// the first navigation; the initial authenticated request may already carry
// a bearer token.
func (i *Interceptor) Attach(page *rod.Page) {
	go page.EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		if e.Request == nil {
			return
		}
		headers := make(map[string]string, len(e.Request.Headers))
		for k, v := range e.Request.Headers {
			headers[strings.ToLower(k)] = v.Str()
		}
		i.Observe(headers)
	})()
}

// Observe inspects one request's headers for the fixed credential set: a
// bearer Authorization header and the secondary session-identity header.
func (i *Interceptor) Observe(headers map[string]string) {
	if auth := headers["authorization"]; strings.HasPrefix(auth, "Bearer ") {
		value := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if len(value) > minTokenLength {
			i.record(types.TokenKindBearer, value)
		}
	}

	if tokenID := headers["token-id"]; len(tokenID) > minTokenLength {
		i.record(types.TokenKindSession, tokenID)
	}
}

func (i *Interceptor) record(kind types.TokenKind, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, seen := i.tokens[kind]; seen {
		return
	}
	i.tokens[kind] = value
	log.Info().
		Str("kind", string(kind)).
		Int("length", len(value)).
		Msg("captured token from network traffic")
}

// Captured returns a snapshot of everything observed so far.
func (i *Interceptor) Captured() map[types.TokenKind]string {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make(map[types.TokenKind]string, len(i.tokens))
	for k, v := range i.tokens {
		out[k] = v
	}
	return out
}

// Has reports whether a token of the given kind was captured.
func (i *Interceptor) Has(kind types.TokenKind) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.tokens[kind]
	return ok
}

// ScrapeStorage is the fallback for when live interception captured
// nothing: after authentication the console parks tokens in web storage,
// including a base64-encoded blob under the key "a".
func (i *Interceptor) ScrapeStorage(page *rod.Page) error {
	for _, store := range []string{"localStorage", "sessionStorage"} {
		obj, err := page.Eval("() => Object.assign({}, window." + store + ")")
		if err != nil {
			return err
		}

		entries := map[string]string{}
		for key, value := range obj.Value.Map() {
			entries[key] = value.Str()
		}

		for kind, value := range scanStorageEntries(entries) {
			i.record(kind, value)
		}
	}
	return nil
}

// scanStorageEntries applies the known token shapes to raw storage entries.
func scanStorageEntries(entries map[string]string) map[types.TokenKind]string {
	found := map[types.TokenKind]string{}

	keep := func(kind types.TokenKind, value string) {
		if len(value) > minTokenLength {
			if _, ok := found[kind]; !ok {
				found[kind] = value
			}
		}
	}

	for key, raw := range entries {
		if key == "a" && raw != "" {
			if blob := decodeBase64Blob(raw); blob != nil {
				keep(types.TokenKindBearer, blob["authToken"])
				keep(types.TokenKindBearer, blob["jwt"])
				keep(types.TokenKindRefresh, blob["refreshToken"])
				keep(types.TokenKindRefresh, blob["refreshJwt"])
			}
			continue
		}

		lower := strings.ToLower(key)
		if !strings.Contains(lower, "token") && !strings.Contains(lower, "access") {
			continue
		}

		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			if v, ok := parsed["access_token"].(string); ok {
				keep(types.TokenKindBearer, v)
			}
			if v, ok := parsed["refresh_token"].(string); ok {
				keep(types.TokenKindRefresh, v)
			}
			continue
		}

		// Not JSON; a long opaque value under a token-ish key is taken as a
		// bearer candidate.
		keep(types.TokenKindBearer, raw)
	}

	return found
}

// decodeBase64Blob re-pads and decodes the console's packed token blob.
func decodeBase64Blob(raw string) map[string]string {
	padded := raw
	if rem := len(padded) % 4; rem != 0 {
		padded += strings.Repeat("=", 4-rem)
	}

	data, err := base64.StdEncoding.DecodeString(padded)
	if err != nil {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}

	out := map[string]string{}
	for k, v := range parsed {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
