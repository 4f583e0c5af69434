// Package storage persists experiment results through pluggable backends.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no result exists for a task id.
var ErrNotFound = errors.New("result not found")

// Metadata describes where a result came from.
type Metadata struct {
	Experiment string   `json:"experiment_id"`
	TaskIndex  int      `json:"task_index"`
	Mode       string   `json:"mode"`
	SeedIDs    []string `json:"seed_ids"`
}

// Document is the stored envelope for one task result.
type Document struct {
	TaskID   string          `json:"task_id"`
	Result   json.RawMessage `json:"result"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// Backend stores and retrieves task results.
type Backend interface {
	// Save persists a result under taskID. result is marshaled to JSON.
	Save(taskID string, result any, meta *Metadata) error
	// Load retrieves a stored document, or ErrNotFound.
	Load(taskID string) (*Document, error)
	// List returns all stored task ids, sorted.
	List() ([]string, error)
	// Close releases backend resources.
	Close() error
}

func encodeDocument(taskID string, result any, meta *Metadata) (*Document, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result %s: %w", taskID, err)
	}
	return &Document{TaskID: taskID, Result: raw, Metadata: meta}, nil
}

// Composite fans writes out to several backends and reads from the first
// one that has the document.
type Composite struct {
	backends []Backend
}

// NewComposite combines backends. Panics on an empty list to surface the
// wiring mistake immediately.
func NewComposite(backends ...Backend) *Composite {
	if len(backends) == 0 {
		panic("storage: composite requires at least one backend")
	}
	return &Composite{backends: backends}
}

// Save writes to every backend; the first error aborts.
func (c *Composite) Save(taskID string, result any, meta *Metadata) error {
	for _, b := range c.backends {
		if err := b.Save(taskID, result, meta); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the document from the first backend that has it.
func (c *Composite) Load(taskID string) (*Document, error) {
	for _, b := range c.backends {
		doc, err := b.Load(taskID)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// List lists from the first backend.
func (c *Composite) List() ([]string, error) {
	return c.backends[0].List()
}

// Close closes every backend, returning the first error.
func (c *Composite) Close() error {
	var first error
	for _, b := range c.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
