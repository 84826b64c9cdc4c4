// Package session holds transient per-session state: the extracted text of
// the most recent successful upload, kept until it is cleared or overwritten.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Panel identifies which analysis panel a cached document belongs to.
type Panel string

const (
	// PanelModel is the ML analysis panel.
	PanelModel Panel = "model"
	// PanelRule is the rule analysis panel.
	PanelRule Panel = "rule"
)

// Document is the cached result of a successful upload: extracted text plus
// whatever structured metadata the extractor recovered.
type Document struct {
	Filename string   `json:"filename"`
	Text     string   `json:"text"`
	Title    string   `json:"title,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     string   `json:"year,omitempty"`
}

// Cache maps (session, panel) to the current cached document. A new upload
// overwrites the slot; Clear empties it.
type Cache struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{docs: make(map[string]*Document)}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

func key(session string, panel Panel) string {
	return session + "/" + string(panel)
}

// Set stores doc for the given session and panel, replacing any previous one.
func (c *Cache) Set(session string, panel Panel, doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[key(session, panel)] = doc
}

// Get returns the cached document for the session and panel if present.
func (c *Cache) Get(session string, panel Panel) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[key(session, panel)]
	return doc, ok
}

// Clear removes the cached document for the session and panel.
func (c *Cache) Clear(session string, panel Panel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, key(session, panel))
}

// ClearSession removes every cached document for the session.
func (c *Cache) ClearSession(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.docs {
		if len(k) > len(session) && k[:len(session)] == session && k[len(session)] == '/' {
			delete(c.docs, k)
		}
	}
}
