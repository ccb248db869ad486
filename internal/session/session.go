// Package session holds per-visitor request state and persists it between
// requests through a Store.
package session

import (
	"encoding/json"
	"fmt"
)

// Session is one visitor's values for the current request. It is not safe
// for concurrent use.
type Session struct {
	token    string
	values   map[string]any
	modified bool
	isNew    bool
}

func newSession(token string) *Session {
	return &Session{token: token, values: map[string]any{}, isNew: true}
}

// decode rebuilds a session from stored bytes. Values stay as raw JSON until
// a reader decodes them into its own types.
func decode(token string, data []byte) (*Session, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s := &Session{token: token, values: make(map[string]any, len(raw))}
	for k, v := range raw {
		s.values[k] = v
	}
	return s, nil
}

func (s *Session) encode() ([]byte, error) {
	b, err := json.Marshal(s.values)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b, nil
}

func (s *Session) Token() string { return s.token }

func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key string, value any) {
	s.values[key] = value
	s.modified = true
}

func (s *Session) Contains(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

func (s *Session) MarkModified() { s.modified = true }

func (s *Session) Modified() bool { return s.modified }

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool { return s.isNew }
