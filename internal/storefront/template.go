package storefront

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/mybookstore-cart/internal/cart"
	"github.com/ahinestrog/mybookstore-cart/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// builtinTagName is the cart helper name the embedded templates use.
const builtinTagName = "get_cart"

var errNoSession = errors.New("request has no session")

// CartFromRequest returns a cart bound to the request's session. An empty
// sessionKey falls back to defaultKey.
func CartFromRequest(r *http.Request, defaultKey, sessionKey string) (*cart.Cart, error) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return nil, errNoSession
	}
	if sessionKey == "" {
		sessionKey = defaultKey
	}
	return cart.New(s, sessionKey)
}

// TemplateFuncs exposes the cart helper under tagName, taking the request
// and an optional session key override, plus a money formatter.
func TemplateFuncs(tagName, defaultKey string) template.FuncMap {
	getCart := func(r *http.Request, sessionKey ...string) (*cart.Cart, error) {
		key := ""
		if len(sessionKey) > 0 {
			key = sessionKey[0]
		}
		return CartFromRequest(r, defaultKey, key)
	}
	return template.FuncMap{
		tagName: getCart,
		"money": formatMoney,
	}
}

func formatMoney(d decimal.Decimal) string {
	return "$ " + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// parseTemplates loads dir when given, else the embedded templates. The
// built-in helper name stays registered so the embedded pages keep working
// under a custom tag name.
func parseTemplates(dir, tagName, defaultKey string) (*template.Template, error) {
	funcs := TemplateFuncs(tagName, defaultKey)
	if _, ok := funcs[builtinTagName]; !ok {
		funcs[builtinTagName] = funcs[tagName]
	}
	var fsys fs.FS = templateFS
	pattern := "templates/*.html"
	if dir != "" {
		fsys = os.DirFS(dir)
		pattern = "*.html"
	}
	return template.New("storefront").Funcs(funcs).ParseFS(fsys, pattern)
}
