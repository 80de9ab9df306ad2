package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadMany_AllowlistDenies(t *testing.T) {
	r := NewRegistry([]string{"custom_headers"})
	r.Register(CustomHeadersPlugin{})
	r.Register(PayloadTransformPlugin{})

	_, err := r.LoadMany([]string{"custom_headers", "payload_transform"})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "plugin_not_allowed", loadErr.Code)
}

func TestRegistry_LoadMany_MissingPlugin(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.LoadMany([]string{"nonexistent"})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "plugin_missing", loadErr.Code)
}

func TestRegistry_LoadMany_DedupesAndOrders(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(CustomHeadersPlugin{})
	r.Register(PayloadTransformPlugin{})

	plugins, err := r.LoadMany([]string{"custom_headers", "payload_transform", "custom_headers"})
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	require.Equal(t, "custom_headers", plugins[0].Name())
	require.Equal(t, "payload_transform", plugins[1].Name())
}

func TestCustomHeadersPlugin_SetsDefaultsWithoutOverwriting(t *testing.T) {
	p := CustomHeadersPlugin{}
	ctx := &RequestContext{URL: "http://example.com", Headers: map[string]string{"X-Requested-With": "custom"}}

	next, err := p.OnRequest(ctx)
	require.NoError(t, err)
	require.Equal(t, "custom_headers", next.Headers["X-Proteus-Plugin"])
	require.Equal(t, "custom", next.Headers["X-Requested-With"])
}

func TestPayloadTransformPlugin_UnwrapsJSONHTML(t *testing.T) {
	p := PayloadTransformPlugin{}
	ctx := &ResponseContext{
		URL:         "http://example.com",
		ContentType: "application/json",
		Body:        `{"html": "<div>hi</div>"}`,
	}

	next, err := p.OnResponse(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "<div>hi</div>", next.Body)
	require.Equal(t, "text/html", next.ContentType)
}

func TestPayloadTransformPlugin_IgnoresNonJSON(t *testing.T) {
	p := PayloadTransformPlugin{}
	ctx := &ResponseContext{ContentType: "text/html", Body: "<html></html>"}

	next, err := p.OnResponse(ctx)
	require.NoError(t, err)
	require.Nil(t, next)
}

type panickyPlugin struct{ Base }

func (panickyPlugin) Name() string { return "panicky" }
func (panickyPlugin) OnRequest(ctx *RequestContext) (*RequestContext, error) {
	panic("boom")
}

func TestApplyRequest_RecoversPanicAsHookError(t *testing.T) {
	ctx := &RequestContext{URL: "http://example.com"}
	_, err := ApplyRequest(ctx, []Plugin{panickyPlugin{}})

	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	require.Equal(t, "plugin_on_request_failed:panicky", hookErr.Code)
}

type hostChangingPlugin struct{ Base }

func (hostChangingPlugin) Name() string { return "host_changer" }
func (hostChangingPlugin) OnRequest(ctx *RequestContext) (*RequestContext, error) {
	next := *ctx
	next.URL = "http://evil.example/"
	return &next, nil
}

func TestApplyRequest_RejectsHostChange(t *testing.T) {
	ctx := &RequestContext{URL: "http://example.com/"}
	_, err := ApplyRequest(ctx, []Plugin{hostChangingPlugin{}})

	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	require.Equal(t, "plugin_url_changed", hookErr.Code)
}

func TestApplyRequest_AcceptsSameHostRewrite(t *testing.T) {
	ctx := &RequestContext{URL: "http://example.com/"}
	result, err := ApplyRequest(ctx, []Plugin{CustomHeadersPlugin{}})
	require.NoError(t, err)
	require.Equal(t, "custom_headers", result.Headers["X-Proteus-Plugin"])
}
