// Package anonymize replaces warehouse identifiers with stable, reversible
// tokens so pattern reports can leave the boundary of the data platform
// without leaking schema names. The same identifier always maps to the same
// token within one process, and a reverse map restores originals on the way
// back in.
package anonymize

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
)

// Kind selects the token prefix for an identifier class.
type Kind string

const (
	KindTable    Kind = "TBL"
	KindColumn   Kind = "COL"
	KindDatabase Kind = "DB"
	KindSchema   Kind = "SCH"
	KindProject  Kind = "PROJECT"
	KindPlatform Kind = "PLATFORM"
)

// Anonymizer issues and resolves identifier tokens. Safe for concurrent use.
type Anonymizer struct {
	mu      sync.RWMutex
	forward map[string]string
	reverse map[string]string
}

func New() *Anonymizer {
	return &Anonymizer{
		forward: make(map[string]string),
		reverse: make(map[string]string),
	}
}

// Token returns the stable token for one identifier, minting it on first
// use. Tokens look like __TBL_3FA85F64__: the prefix names the identifier
// class and the suffix is the first eight hex digits of the identifier's
// SHA-256, uppercased.
func (a *Anonymizer) Token(kind Kind, name string) string {
	if name == "" {
		return ""
	}
	key := string(kind) + "\x00" + name

	a.mu.RLock()
	tok, ok := a.forward[key]
	a.mu.RUnlock()
	if ok {
		return tok
	}

	sum := sha256.Sum256([]byte(name))
	tok = fmt.Sprintf("__%s_%s__", kind, strings.ToUpper(fmt.Sprintf("%x", sum[:4])))

	a.mu.Lock()
	a.forward[key] = tok
	a.reverse[tok] = name
	a.mu.Unlock()
	return tok
}

// TableToken tokenizes a dotted table path part by part, so the database,
// schema, and table segments each get their own class-prefixed token.
func (a *Anonymizer) TableToken(dotted string) string {
	parts := strings.Split(dotted, ".")
	switch len(parts) {
	case 1:
		return a.Token(KindTable, parts[0])
	case 2:
		return a.Token(KindSchema, parts[0]) + "." + a.Token(KindTable, parts[1])
	default:
		out := make([]string, 0, len(parts))
		out = append(out, a.Token(KindDatabase, parts[0]))
		for _, p := range parts[1 : len(parts)-1] {
			out = append(out, a.Token(KindSchema, p))
		}
		out = append(out, a.Token(KindTable, parts[len(parts)-1]))
		return strings.Join(out, ".")
	}
}

// Restore replaces every known token in text with its original identifier.
// Unknown tokens are left as-is.
func (a *Anonymizer) Restore(text string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for tok, name := range a.reverse {
		text = strings.ReplaceAll(text, tok, name)
	}
	return text
}

// Lookup resolves one exact token.
func (a *Anonymizer) Lookup(token string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	name, ok := a.reverse[token]
	return name, ok
}
