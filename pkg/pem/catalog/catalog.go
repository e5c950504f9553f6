// Package catalog resolves entity titles, ids and redirects against a
// knowledge-base snapshot.
package catalog

import (
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Catalog maps entity names to ids and back.
type Catalog interface {
	// NormalizeTitle cleans a raw title into catalog form.
	NormalizeTitle(raw string) string
	IDForName(name string) (int64, bool)
	NameForID(id int64) (string, bool)
	// RedirectTarget resolves a redirect page id to its canonical entity id.
	RedirectTarget(id int64) (int64, bool)
}

// Memory is an in-memory Catalog.
type Memory struct {
	mu        sync.RWMutex
	nameToID  map[string]int64
	idToName  map[int64]string
	redirects map[int64]string
}

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		nameToID:  make(map[string]int64),
		idToName:  make(map[int64]string),
		redirects: make(map[int64]string),
	}
}

// AddEntity registers a canonical entity. Later registrations of the same
// name or id win.
func (m *Memory) AddEntity(name string, id int64) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameToID[name] = id
	m.idToName[id] = name
}

// AddRedirect registers a redirect page id pointing at a target title.
func (m *Memory) AddRedirect(redirectID int64, target string) {
	if target == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects[redirectID] = target
}

// Len returns the number of canonical entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.idToName)
}

// NormalizeTitle implements Catalog.
func (m *Memory) NormalizeTitle(raw string) string {
	return NormalizeTitle(raw)
}

// IDForName implements Catalog.
func (m *Memory) IDForName(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.nameToID[name]
	return id, ok
}

// NameForID implements Catalog.
func (m *Memory) NameForID(id int64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.idToName[id]
	return name, ok
}

// RedirectTarget implements Catalog. A redirect whose target title is not
// a known entity is reported as not found.
func (m *Memory) RedirectTarget(id int64) (int64, bool) {
	m.mu.RLock()
	target, ok := m.redirects[id]
	m.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return m.IDForName(NormalizeTitle(target))
}

// NormalizeTitle trims, unescapes &amp; and &quot;, turns underscores into
// spaces and upper-cases the first character.
func NormalizeTitle(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return cases.Upper(language.Und).String(s[:size]) + s[size:]
}

// EntityKey is the stored form of a catalog title: spaces become
// underscores.
func EntityKey(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}
