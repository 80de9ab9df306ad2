package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/internal/store"
)

func TestFromPolicy_Direct(t *testing.T) {
	r := &Resolver{}
	d := r.fromPolicy(store.ProxyPolicy{Mode: store.ProxyModeDirect})
	require.Equal(t, Decision{Source: SourcePolicy}, d)
}

func TestFromPolicy_Custom(t *testing.T) {
	r := &Resolver{}
	proxyURL := "http://proxy.internal:8080"
	d := r.fromPolicy(store.ProxyPolicy{Mode: store.ProxyModeCustom, ProxyURL: &proxyURL})
	require.Equal(t, Decision{ProxyURL: proxyURL, Source: SourcePolicy}, d)
}

func TestFromPolicy_Gateway(t *testing.T) {
	r := &Resolver{cfg: Config{GatewayURL: "http://gateway.internal"}}
	d := r.fromPolicy(store.ProxyPolicy{Mode: store.ProxyModeGateway})
	require.Equal(t, Decision{ProxyURL: "http://gateway.internal", Source: SourcePolicy}, d)
}

func TestFromDefault_DirectWhenNoGatewayConfigured(t *testing.T) {
	r := &Resolver{cfg: Config{DefaultMode: store.ProxyModeDirect}}
	require.Equal(t, Decision{Source: SourceDefault}, r.fromDefault())
}

func TestFromDefault_GatewayWhenConfigured(t *testing.T) {
	r := &Resolver{cfg: Config{DefaultMode: store.ProxyModeGateway, GatewayURL: "http://gw"}}
	require.Equal(t, Decision{ProxyURL: "http://gw", Source: SourceDefault}, r.fromDefault())
}

func TestFromDefault_FallsBackToDirectIfGatewayURLMissing(t *testing.T) {
	r := &Resolver{cfg: Config{DefaultMode: store.ProxyModeGateway, GatewayURL: ""}}
	require.Equal(t, Decision{Source: SourceDefault}, r.fromDefault())
}
