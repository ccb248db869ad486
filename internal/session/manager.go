package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey struct{}

// FromContext returns the session the Manager attached to ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// NewContext attaches s to ctx.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Manager loads a session for every request and saves it when modified.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewManager(store Store, cookieName string, ttl time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		cookieName: cookieName,
		ttl:        ttl,
		log:        log,
		now:        time.Now,
	}
}

// Load returns the request's stored session, or a fresh one when the cookie
// is missing, unknown, expired or holds undecodable data.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return newSession(uuid.NewString()), nil
	}
	token := strings.TrimSpace(c.Value)
	data, found, err := m.store.Get(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if !found {
		return newSession(uuid.NewString()), nil
	}
	s, err := decode(token, data)
	if err != nil {
		m.log.Warn().Err(err).Msg("discarding corrupt session")
		return newSession(uuid.NewString()), nil
	}
	return s, nil
}

// Save persists s and writes the session cookie.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	if err := m.store.Set(r.Context(), s.token, data, m.now().Add(m.ttl)); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    s.token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.modified = false
	s.isNew = false
	return nil
}

// Middleware attaches the session to the request context and saves it,
// when modified, right before the response headers go out.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r)
		if err != nil {
			m.log.Error().Err(err).Msg("load session")
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		r = r.WithContext(NewContext(r.Context(), s))
		sw := &sessionWriter{ResponseWriter: w, commit: func() { m.commit(w, r, s) }}
		next.ServeHTTP(sw, r)
		sw.flushCommit()
	})
}

func (m *Manager) commit(w http.ResponseWriter, r *http.Request, s *Session) {
	if !s.Modified() {
		return
	}
	if err := m.Save(w, r, s); err != nil {
		m.log.Error().Err(err).Str("path", r.URL.Path).Msg("save session")
	}
}

// sessionWriter runs commit once, before the first header or body write.
type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *sessionWriter) flushCommit() {
	if w.committed {
		return
	}
	w.committed = true
	w.commit()
}

func (w *sessionWriter) WriteHeader(code int) {
	w.flushCommit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
