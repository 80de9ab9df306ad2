package plugin

import (
	"encoding/json"
	"strings"
)

// PayloadTransformPlugin unwraps a JSON envelope ({"html": "..."}) returned
// by APIs that proxy rendered markup, replacing the body with the inner
// HTML so downstream extraction sees plain markup instead of a JSON blob.
type PayloadTransformPlugin struct{ Base }

func (PayloadTransformPlugin) Name() string { return "payload_transform" }

var payloadUnwrapKeys = []string{"html", "content", "body"}

func (PayloadTransformPlugin) OnResponse(ctx *ResponseContext) (*ResponseContext, error) {
	contentType := strings.ToLower(firstNonEmpty(ctx.ContentType, headerValue(ctx.Headers, "content-type")))
	if !strings.Contains(contentType, "application/json") {
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(ctx.Body), &payload); err != nil {
		return nil, nil
	}

	for _, key := range payloadUnwrapKeys {
		value, ok := payload[key].(string)
		if !ok || value == "" {
			continue
		}
		next := *ctx
		next.Body = value
		next.Content = []byte(value)
		next.ContentType = "text/html"
		next.Headers = cloneStringMap(ctx.Headers)
		if next.Headers == nil {
			next.Headers = map[string]string{}
		}
		next.Headers["content-type"] = "text/html"
		return &next, nil
	}
	return nil, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	for _, candidate := range []string{key, strings.ToLower(key), strings.ToUpper(key)} {
		if v, ok := headers[candidate]; ok && v != "" {
			return v
		}
	}
	return ""
}
