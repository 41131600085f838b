package plugin

import (
	"github.com/vyrodovalexey/avrproxy/internal/message"
)

// HeaderRewriteConfig declares header mutations applied around an
// exchange.
type HeaderRewriteConfig struct {
	RequestSet     map[string]string
	RequestRemove  []string
	ResponseSet    map[string]string
	ResponseRemove []string
}

// HeaderRewrite is a plugin that sets and strips configured headers on
// requests before routing and on responses after upstream data. It
// exposes no routes of its own.
type HeaderRewrite struct {
	Base
	cfg HeaderRewriteConfig
}

// NewHeaderRewrite creates a header rewrite plugin.
func NewHeaderRewrite(cfg HeaderRewriteConfig) *HeaderRewrite {
	return &HeaderRewrite{cfg: cfg}
}

// HeaderRewriteFactory returns a Factory producing a HeaderRewrite
// plugin for every connection.
func HeaderRewriteFactory(cfg HeaderRewriteConfig) Factory {
	return func(ConnContext) Plugin {
		return NewHeaderRewrite(cfg)
	}
}

// BeforeRouting applies the request header mutations.
func (p *HeaderRewrite) BeforeRouting(req *message.Request) (*message.Request, Verdict) {
	for name, value := range p.cfg.RequestSet {
		req.SetHeader(name, value)
	}
	for _, name := range p.cfg.RequestRemove {
		req.DelHeader(name)
	}
	return req, VerdictContinue
}

// AfterUpstreamData applies the response header mutations.
func (p *HeaderRewrite) AfterUpstreamData(resp *message.Response) (*message.Response, Verdict) {
	for name, value := range p.cfg.ResponseSet {
		resp.SetHeader(name, value)
	}
	for _, name := range p.cfg.ResponseRemove {
		resp.DelHeader(name)
	}
	return resp, VerdictContinue
}
