// Package proxy implements the request-routing and response-rewriting
// core of the reverse proxy.
//
// A Handler is created per client connection over an ordered list of
// route plugins. Requests flow through the plugins' before-routing
// hooks, are matched against the plugins' route tables, and are
// forwarded to the resolved backend over a connection obtained from the
// upstream connector. Response bytes flow back through the plugins'
// after-hooks, which may transform the parsed response or short-circuit
// to raw pass-through.
//
// # Routing precedence
//
// Route entries are evaluated in the order each plugin exposes them,
// and plugins in registration order. The scan does not stop at the
// first matching plugin: the last plugin with a matching route wins.
// See Router for the first-match switch.
package proxy
