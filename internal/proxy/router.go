package proxy

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"regexp/syntax"
	"strings"
	"sync"
	"time"

	"github.com/vyrodovalexey/avrproxy/internal/message"
	"github.com/vyrodovalexey/avrproxy/internal/plugin"
)

// Picker selects an index in [0, n) from a static candidate list.
type Picker func(n int) int

// Router resolves a request to a backend target by scanning the
// connection's plugin route tables.
//
// Precedence note: the scan visits every plugin even after a match, so
// when several plugins have a matching route the LAST plugin in
// registration order wins. This mirrors the long-standing behavior the
// proxy shipped with; set FirstMatchWins to get the conventional
// first-match semantics instead.
type Router struct {
	plugins        []plugin.Plugin
	pick           Picker
	firstMatchWins bool
}

// routePattern is a compiled route pattern with its literal path
// prefix, used to split off the request-path remainder.
type routePattern struct {
	re     *regexp.Regexp
	prefix string
}

// patternCache caches compiled route patterns across routers; route
// tables are small and patterns stable, so the cache is never evicted.
var patternCache sync.Map

// RouterOption is a functional option for configuring the router.
type RouterOption func(*Router)

// WithPicker sets the randomness source used for static candidate
// lists. Tests use this to make selection deterministic.
func WithPicker(pick Picker) RouterOption {
	return func(r *Router) {
		r.pick = pick
	}
}

// WithFirstMatchWins makes the first plugin with a matching route win,
// rather than the last.
func WithFirstMatchWins(enabled bool) RouterOption {
	return func(r *Router) {
		r.firstMatchWins = enabled
	}
}

// NewRouter creates a router over the connection's ordered plugin list.
func NewRouter(plugins []plugin.Plugin, opts ...RouterOption) *Router {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	r := &Router{
		plugins: plugins,
		pick:    rng.Intn,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve matches the request path against every plugin's route entries
// and returns the chosen target.
func (r *Router) Resolve(req *message.Request) (*plugin.Target, error) {
	var chosen *plugin.Target

	for _, p := range r.plugins {
		for _, entry := range p.Routes() {
			pat, err := compilePattern(entry.Pattern)
			if err != nil {
				return nil, NewInvalidRouteEntryError(entry.Pattern, err)
			}
			if !matchesAtStart(pat.re, req.Path) {
				continue
			}

			target, err := r.resolveEntry(p, entry, pat, req)
			if err != nil {
				return nil, err
			}
			chosen = target
			// First match within a plugin ends that plugin's scan.
			break
		}
		if chosen != nil && r.firstMatchWins {
			break
		}
	}

	if chosen == nil {
		return nil, NewNoRouteMatchedError(req.Method, req.Path)
	}
	return chosen, nil
}

// resolveEntry turns a matched entry into a target: a uniform random
// pick for static candidate lists, the plugin's dynamic resolver for
// bare patterns.
func (r *Router) resolveEntry(p plugin.Plugin, entry plugin.Entry, pat *routePattern, req *message.Request) (*plugin.Target, error) {
	if entry.Static() {
		raw := entry.Backends[r.pick(len(entry.Backends))]
		target, err := plugin.ParseTarget(raw)
		if err != nil {
			return nil, NewInvalidRouteEntryError(entry.Pattern, err)
		}
		return target.WithRemainder(remainderFor(pat.prefix, target.Remainder, req.Path)), nil
	}

	target, err := p.HandleRoute(req, pat.re)
	if err != nil {
		return nil, &RoutingError{
			Op:      "handle_route",
			Method:  req.Method,
			Path:    req.Path,
			Pattern: entry.Pattern,
			Cause:   err,
		}
	}
	if target == nil {
		return nil, NewInvalidRouteEntryError(entry.Pattern,
			errors.New("dynamic resolver returned no target"))
	}
	return target, nil
}

// compilePattern compiles a route pattern, consulting the shared cache.
func compilePattern(pattern string) (*routePattern, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*routePattern), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	pat := &routePattern{re: re, prefix: literalPrefix(pattern)}
	patternCache.Store(pattern, pat)
	return pat, nil
}

// literalPrefix extracts the leading literal characters of a pattern,
// ignoring a start anchor. Unlike Regexp.LiteralPrefix it is stable
// for anchored patterns regardless of how the machine compiles.
func literalPrefix(pattern string) string {
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return ""
	}
	parsed = parsed.Simplify()

	sub := []*syntax.Regexp{parsed}
	if parsed.Op == syntax.OpConcat {
		sub = parsed.Sub
	}

	var b strings.Builder
loop:
	for _, s := range sub {
		switch s.Op {
		case syntax.OpBeginLine, syntax.OpBeginText:
			// skip the anchor
		case syntax.OpLiteral:
			b.WriteString(string(s.Rune))
		default:
			break loop
		}
	}
	return b.String()
}

// matchesAtStart reports whether the pattern matches at the beginning of
// the path, regardless of whether the pattern anchors itself.
func matchesAtStart(re *regexp.Regexp, path string) bool {
	loc := re.FindStringIndex(path)
	return loc != nil && loc[0] == 0
}

// remainderFor computes the path to forward upstream: the backend URL's
// base path joined with the request-path suffix after the route's
// literal prefix.
func remainderFor(prefix, base, path string) string {
	suffix := path
	if prefix != "" && strings.HasPrefix(path, prefix) {
		suffix = path[len(prefix):]
	}
	return joinPath(base, suffix)
}

// joinPath joins a base path and suffix with exactly one slash between
// them, always yielding an absolute path.
func joinPath(base, suffix string) string {
	if base == "" {
		if suffix == "" {
			return "/"
		}
		if !strings.HasPrefix(suffix, "/") {
			return "/" + suffix
		}
		return suffix
	}

	baseSlash := strings.HasSuffix(base, "/")
	suffixSlash := strings.HasPrefix(suffix, "/")
	switch {
	case suffix == "":
		return base
	case baseSlash && suffixSlash:
		return base + suffix[1:]
	case !baseSlash && !suffixSlash:
		return base + "/" + suffix
	default:
		return base + suffix
	}
}
