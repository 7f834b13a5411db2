package llm

import (
	"encoding/base64"
	"strings"
)

// EmbeddedKey is a base64 encoded fallback credential injected at build time:
//
//	go build -ldflags "-X github.com/zombar/litmatrix/internal/llm.EmbeddedKey=c2stLi4u"
//
// Anyone holding the binary can recover it. It is a deployment convenience, not a secret.
var EmbeddedKey string

// Credential sources reported by ResolveCredentialSource
const (
	SourceUser     = "user"
	SourceEmbedded = "embedded"
	SourceNone     = "none"
)

// ResolveCredential picks the user supplied key, then the decoded embedded key.
// It fails with a ConfigurationError when neither is usable.
func ResolveCredential(user, embedded string) (string, error) {
	key, _, err := resolve(user, embedded)
	return key, err
}

// ResolveCredentialSource reports where ResolveCredential would take its key from
func ResolveCredentialSource(user, embedded string) string {
	_, source, _ := resolve(user, embedded)
	return source
}

func resolve(user, embedded string) (string, string, error) {
	if key := strings.TrimSpace(user); key != "" {
		return key, SourceUser, nil
	}

	if embedded = strings.TrimSpace(embedded); embedded != "" {
		decoded, err := base64.StdEncoding.DecodeString(embedded)
		if err == nil {
			if key := strings.TrimSpace(string(decoded)); key != "" {
				return key, SourceEmbedded, nil
			}
		}
	}

	return "", SourceNone, &ConfigurationError{Reason: "no API key configured"}
}
