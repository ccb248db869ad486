// Package storefront serves the cart pages and the cart JSON API.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ahinestrog/mybookstore-cart/internal/cart"
	"github.com/ahinestrog/mybookstore-cart/internal/events"
	"github.com/ahinestrog/mybookstore-cart/internal/session"
)

type Options struct {
	SessionKey     string
	TemplateTag    string
	TemplatesDir   string
	AllowedOrigins []string
}

type Server struct {
	tpl        *template.Template
	sessions   *session.Manager
	events     events.Publisher
	log        zerolog.Logger
	sessionKey string
	origins    []string
}

func NewServer(opts Options, sessions *session.Manager, pub events.Publisher, log zerolog.Logger) (*Server, error) {
	if opts.SessionKey == "" {
		opts.SessionKey = cart.DefaultSessionKey
	}
	if opts.TemplateTag == "" {
		opts.TemplateTag = builtinTagName
	}
	tpl, err := parseTemplates(opts.TemplatesDir, opts.TemplateTag, opts.SessionKey)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Server{
		tpl:        tpl,
		sessions:   sessions,
		events:     pub,
		log:        log,
		sessionKey: opts.SessionKey,
		origins:    opts.AllowedOrigins,
	}, nil
}

// Handler returns the routed storefront wrapped with access logging, CORS
// and the session middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleCart)
	mux.HandleFunc("GET /cart", s.handleCart)
	mux.HandleFunc("POST /cart/add", s.handleAdd)
	mux.HandleFunc("POST /cart/remove", s.handleRemove)
	mux.HandleFunc("POST /cart/remove-one", s.handleRemoveOne)
	mux.HandleFunc("POST /cart/set", s.handleSetQuantity)
	mux.HandleFunc("POST /cart/clear", s.handleClear)
	mux.HandleFunc("GET /api/cart", s.handleAPICart)

	var h http.Handler = s.sessions.Middleware(mux)
	h = cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(h)
	return hlog.NewHandler(s.log)(h)
}

func (s *Server) cart(r *http.Request) (*cart.Cart, error) {
	return CartFromRequest(r, s.sessionKey, "")
}

type pageData struct {
	Request *http.Request
	Msg     string
	Year    int
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	data := pageData{Request: r, Msg: r.URL.Query().Get("msg"), Year: time.Now().Year()}
	// render fully before writing so a failing cart helper yields a clean 500
	var buf bytes.Buffer
	if err := s.tpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render cart")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	variantID, ok := requireVariant(w, r)
	if !ok {
		return
	}
	opts := []cart.AddOption{}
	if q := strings.TrimSpace(r.Form.Get("quantity")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "quantity must be an integer", http.StatusBadRequest)
			return
		}
		opts = append(opts, cart.WithQuantity(n))
	}
	if p := strings.TrimSpace(r.Form.Get("price")); p != "" {
		price, err := cart.ParsePrice(p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		opts = append(opts, cart.WithPrice(price))
	}
	if data := formData(r.Form); len(data) > 0 {
		opts = append(opts, cart.WithData(data))
	}

	c, err := s.cart(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := c.Add(variantID, r.Form.Get("image"), r.Form.Get("name"), opts...); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r, events.CartItemAdded, c, variantID)
	s.respond(w, r, c, "Item added")
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, events.CartItemRemoved, "Item removed", func(c *cart.Cart, variantID string) error {
		return c.Remove(variantID)
	})
}

func (s *Server) handleRemoveOne(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, events.CartItemDecremented, "Quantity reduced", func(c *cart.Cart, variantID string) error {
		c.RemoveSingle(variantID)
		return nil
	})
}

func (s *Server) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, events.CartQuantitySet, "Quantity updated", func(c *cart.Cart, variantID string) error {
		n, err := strconv.Atoi(strings.TrimSpace(r.Form.Get("quantity")))
		if err != nil {
			return errBadQuantity
		}
		return c.SetQuantity(variantID, n)
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	c, err := s.cart(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c.Clear()
	s.publish(r, events.CartCleared, c, "")
	s.respond(w, r, c, "Cart emptied")
}

func (s *Server) handleAPICart(w http.ResponseWriter, r *http.Request) {
	c, err := s.cart(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(c))
}

var errBadQuantity = errors.New("quantity must be an integer")

// mutate runs a single-variant cart change and answers the request.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, routingKey, msg string, fn func(*cart.Cart, string) error) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	variantID, ok := requireVariant(w, r)
	if !ok {
		return
	}
	c, err := s.cart(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	present := c.Contains(variantID)
	if err := fn(c, variantID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if present {
		s.publish(r, routingKey, c, variantID)
	}
	s.respond(w, r, c, msg)
}

func requireVariant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Form.Get("variant_id"))
	if id == "" {
		http.Error(w, "variant_id is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// formData collects "data.<key>" form fields into item metadata.
func formData(form url.Values) map[string]any {
	data := map[string]any{}
	for k, v := range form {
		if name, ok := strings.CutPrefix(k, "data."); ok && name != "" && len(v) > 0 {
			data[name] = v[0]
		}
	}
	return data
}

func (s *Server) publish(r *http.Request, routingKey string, c *cart.Cart, variantID string) {
	ev := events.CartChanged{
		VariantID:   variantID,
		Count:       c.Count(),
		UniqueCount: c.UniqueCount(),
		Total:       c.Total().String(),
		At:          time.Now().UTC(),
	}
	for _, it := range c.Items() {
		if it.VariantID == variantID {
			ev.Quantity = it.Quantity
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, routingKey, ev); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("routing_key", routingKey).Msg("publish cart event")
	}
}

// respond answers JSON clients with the cart and redirects browsers back to
// the cart page.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, c *cart.Cart, msg string) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, toView(c))
		return
	}
	http.Redirect(w, r, "/cart?msg="+url.QueryEscape(msg), http.StatusSeeOther)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrInvalidArgument), errors.Is(err, errBadQuantity):
		status = http.StatusBadRequest
	case errors.Is(err, cart.ErrNotFound):
		status = http.StatusNotFound
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("cart request failed")
	}
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	http.Error(w, err.Error(), status)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

type cartView struct {
	Items       cart.Snapshot `json:"items"`
	Count       int           `json:"count"`
	UniqueCount int           `json:"unique_count"`
	Total       string        `json:"total"`
}

func toView(c *cart.Cart) cartView {
	return cartView{
		Items:       c.Snapshot(),
		Count:       c.Count(),
		UniqueCount: c.UniqueCount(),
		Total:       c.Total().StringFixed(2),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
