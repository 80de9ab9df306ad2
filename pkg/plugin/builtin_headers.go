package plugin

// CustomHeadersPlugin stamps every outbound request with plugin provenance
// headers, demonstrating the on_request hook end to end.
type CustomHeadersPlugin struct{ Base }

func (CustomHeadersPlugin) Name() string { return "custom_headers" }

func (CustomHeadersPlugin) OnRequest(ctx *RequestContext) (*RequestContext, error) {
	headers := cloneStringMap(ctx.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	setDefault(headers, "X-Proteus-Plugin", "custom_headers")
	setDefault(headers, "X-Requested-With", "Proteus")

	next := *ctx
	next.Headers = headers
	return &next, nil
}

func setDefault(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
