// Package server accepts client connections and drives one event loop
// per connection. The loop serializes request handling, upstream
// response handling and teardown, so the per-connection handler and
// plugin chain run free of locks.
package server
