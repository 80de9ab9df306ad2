// Package plugin implements the ordered request/response/parse hook chain
// that engine runners call into before and after every fetch. Plugins are
// compiled-in Go values, not dynamically loaded — Go's plugin package is
// platform-limited and fragile for this, so chains are built from a
// name-keyed Registry instead.
package plugin

// Plugin is a discrete hook module. Any method may be a no-op by embedding
// Base and only overriding what it needs.
type Plugin interface {
	Name() string
	OnRequest(ctx *RequestContext) (*RequestContext, error)
	OnResponse(ctx *ResponseContext) (*ResponseContext, error)
	OnParse(ctx *ParseContext) (*ParseContext, error)
}

// Base is embedded by plugins that only implement a subset of hooks; its
// methods return (nil, nil), meaning "no change".
type Base struct{}

func (Base) OnRequest(*RequestContext) (*RequestContext, error)   { return nil, nil }
func (Base) OnResponse(*ResponseContext) (*ResponseContext, error) { return nil, nil }
func (Base) OnParse(*ParseContext) (*ParseContext, error)         { return nil, nil }
