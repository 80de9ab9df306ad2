// Package engine runs a single job attempt through one tier's fetch/extract
// pipeline: fast, stealth, browser, or external. All four tiers share the
// same request/response/parse plugin chain, anti-bot detection, extraction,
// and oracle-recovery steps; they differ only in how they govern, acquire a
// network identity, and fetch.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/blob"
	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/internal/telemetry"
	"github.com/proteus/scrapecore/pkg/antibot"
	"github.com/proteus/scrapecore/pkg/candidate"
	"github.com/proteus/scrapecore/pkg/extract"
	"github.com/proteus/scrapecore/pkg/governance"
	"github.com/proteus/scrapecore/pkg/identity"
	"github.com/proteus/scrapecore/pkg/oracle"
	"github.com/proteus/scrapecore/pkg/plugin"
	"github.com/proteus/scrapecore/pkg/proxy"
	"github.com/proteus/scrapecore/pkg/ssrf"
)

// FetchInput is what a tier needs to perform its fetch: the (possibly
// plugin-rewritten) request plus the identity's cookies and network shape.
type FetchInput struct {
	URL          string
	Headers      map[string]string
	Cookies      []identity.Cookie
	ProxyURL     string
	UserAgent    string
	Fingerprint  identity.Fingerprint
	StorageState string
}

// FetchOutput is what every tier produces, normalized to a common shape.
type FetchOutput struct {
	URL          string
	Status       int
	HTML         string
	Headers      map[string]string
	Cookies      []identity.Cookie
	Content      []byte
	ContentType  string
	Screenshot   []byte
	HAR          []byte
	StorageState string
	Truncated    bool
}

// Tier is the behavior that varies across engine tiers.
type Tier interface {
	Name() string
	ConsumesIdentity() bool
	CheckGovernance(ctx context.Context, tenant, domain string) error
	RecordOutcome(ctx context.Context, domain string, status int) error
	Fetch(ctx context.Context, in FetchInput) (FetchOutput, error)
}

// Deps bundles every dependency the shared skeleton needs, independent of
// which tier is running.
type Deps struct {
	Queries     *store.Queries
	SSRF        *ssrf.Guard
	Identities  *identity.Manager
	Proxies     *proxy.Resolver
	Plugins     *plugin.Registry
	PluginNames *plugin.NameSource
	Candidates  *candidate.Registry
	Oracle      *oracle.Client
	Blobs       *blob.Store
	Governance  *governance.Guard
	LLMBudget   governance.LLMBudgetConfig
}

// Runner executes the shared skeleton (spec §4.12) against one Tier.
type Runner struct {
	deps Deps
	tier Tier
}

func NewRunner(deps Deps, tier Tier) *Runner {
	return &Runner{deps: deps, tier: tier}
}

// Run loads jobID, works it through the tier's pipeline, persists any
// artifacts produced, and returns the attempt's Outcome. It never mutates
// Job or JobAttempt rows — the caller (the worker loop) owns the state
// machine and decides how to interpret Outcome.Escalate.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (Outcome, error) {
	job, err := r.deps.Queries.GetJob(ctx, jobID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading job: %w", err)
	}

	tenant := ""
	if job.Tenant != nil {
		tenant = *job.Tenant
	}
	schemaID := ""
	if job.SchemaID != nil {
		schemaID = *job.SchemaID
	}

	var selectors []store.Selector
	if schemaID != "" {
		selectors, err = r.deps.Queries.ListActiveSelectors(ctx, schemaID)
		if err != nil {
			return Outcome{}, fmt.Errorf("loading selectors: %w", err)
		}
	}

	pluginNames, err := r.deps.PluginNames.ResolveNames(ctx, defaultPlugins(r.tier.Name()), tenant, schemaID)
	if err != nil {
		return failOutcome("plugin_load_failed"), nil
	}
	plugins, err := r.deps.Plugins.LoadMany(pluginNames)
	if err != nil {
		if le, ok := err.(*plugin.LoadError); ok {
			return failOutcome(le.Code), nil
		}
		return failOutcome("plugin_load_failed"), nil
	}

	if err := r.deps.SSRF.EnsureURLAllowed(ctx, job.URL); err != nil {
		return failOutcome(ssrfCode(err)), nil
	}

	domain := hostOf(job.URL)
	if err := r.tier.CheckGovernance(ctx, tenant, domain); err != nil {
		return failOutcome(governanceCode(err)), nil
	}

	var (
		ident        *store.Identity
		proxyURL     string
		cookies      []identity.Cookie
		fingerprint  identity.Fingerprint
		storageState string
	)
	if r.tier.ConsumesIdentity() {
		assignment, err := r.deps.Identities.AcquireForURL(ctx, job.URL, tenant, identity.ProxyResolver(r.deps.Proxies.ResolveURL))
		if err != nil {
			return failOutcome("fetch_failed"), fmt.Errorf("acquiring identity: %w", err)
		}
		ident = assignment.Identity
		proxyURL = assignment.ProxyURL

		cookies, err = r.deps.Identities.Cookies(*ident)
		if err != nil {
			return failOutcome("fetch_failed"), fmt.Errorf("decoding identity cookies: %w", err)
		}
		fingerprint, err = identity.DecodeFingerprint(ident.Fingerprint)
		if err != nil {
			return failOutcome("fetch_failed"), fmt.Errorf("decoding identity fingerprint: %w", err)
		}
		storageState, err = r.deps.Identities.StorageState(*ident)
		if err != nil {
			return failOutcome("fetch_failed"), fmt.Errorf("decoding identity storage state: %w", err)
		}
	}

	reqCtx := &plugin.RequestContext{
		URL:      job.URL,
		Headers:  mergeHeaders(fingerprint.Headers, nil),
		Cookies:  cookiesToPluginMaps(cookies),
		ProxyURL: proxyURL,
		Engine:   r.tier.Name(),
		Tenant:   tenant,
		SchemaID: schemaID,
		JobID:    job.ID.String(),
		Meta:     map[string]any{},
	}
	reqCtx, err = plugin.ApplyRequest(reqCtx, plugins)
	if err != nil {
		return failOutcome(pluginCode(err)), nil
	}

	fetchIn := FetchInput{
		URL:          reqCtx.URL,
		Headers:      reqCtx.Headers,
		Cookies:      cookiesFromPluginMaps(reqCtx.Cookies, cookies),
		ProxyURL:     reqCtx.ProxyURL,
		UserAgent:    fingerprint.UserAgent,
		Fingerprint:  fingerprint,
		StorageState: storageState,
	}

	fetchStart := time.Now()
	out, err := r.tier.Fetch(ctx, fetchIn)
	telemetry.FetchDuration.WithLabelValues(r.tier.Name()).Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		return failOutcome("fetch_failed"), nil
	}

	if out.URL != "" && hostOf(out.URL) != hostOf(fetchIn.URL) {
		if err := r.deps.SSRF.EnsureURLAllowed(ctx, out.URL); err != nil {
			return failOutcome(ssrfCode(err)), nil
		}
	}

	respCtx := &plugin.ResponseContext{
		URL:         out.URL,
		Status:      out.Status,
		Headers:     out.Headers,
		Body:        out.HTML,
		Content:     out.Content,
		ContentType: out.ContentType,
		Cookies:     cookiesToPluginMaps(out.Cookies),
		Truncated:   out.Truncated,
		Engine:      r.tier.Name(),
		Tenant:      tenant,
		SchemaID:    schemaID,
		JobID:       job.ID.String(),
		Meta:        map[string]any{},
	}
	respCtx, err = plugin.ApplyResponse(respCtx, plugins)
	if err != nil {
		return failOutcome(pluginCode(err)), nil
	}
	out.Cookies = cookiesFromPluginMaps(respCtx.Cookies, out.Cookies)
	out.HTML = respCtx.Body
	out.Content = respCtx.Content
	out.Status = respCtx.Status
	out.Headers = respCtx.Headers

	if r.tier.ConsumesIdentity() && ident != nil {
		if len(out.Cookies) > 0 {
			if err := r.deps.Identities.ReconcileCookies(ctx, *ident, out.Cookies); err != nil {
				return failOutcome("fetch_failed"), fmt.Errorf("reconciling cookies: %w", err)
			}
		}
		if out.StorageState != "" {
			if err := r.deps.Identities.UpdateStorageState(ctx, *ident, out.StorageState); err != nil {
				return failOutcome("fetch_failed"), fmt.Errorf("persisting storage state: %w", err)
			}
		}
	}

	if openedErr := r.tier.RecordOutcome(ctx, domain, respCtx.Status); openedErr != nil {
		return Outcome{}, fmt.Errorf("recording governance outcome: %w", openedErr)
	}

	if reason := antibot.Detect(respCtx.Status, respCtx.Headers, respCtx.URL, respCtx.Body); reason != "" {
		if r.tier.ConsumesIdentity() && ident != nil {
			if err := r.deps.Identities.RecordFailure(ctx, ident.ID, tenant, domain, reason); err != nil {
				return Outcome{}, fmt.Errorf("recording identity failure: %w", err)
			}
		}
		r.persistArtifacts(ctx, job.ID, out)
		return Outcome{Reason: reason, Escalate: IsEscalatable(reason)}, nil
	}

	result, err := extract.Extract(respCtx.Body, selectors, job.URL)
	if err != nil {
		r.persistArtifacts(ctx, job.ID, out)
		return failOutcome("parsel_unavailable"), nil
	}

	parseCtx := &plugin.ParseContext{
		Data:     result.Data,
		Errors:   result.Errors,
		Engine:   r.tier.Name(),
		Tenant:   tenant,
		SchemaID: schemaID,
		JobID:    job.ID.String(),
		Meta:     map[string]any{},
	}
	parseCtx, err = plugin.ApplyParse(parseCtx, plugins)
	if err != nil {
		return failOutcome(pluginCode(err)), nil
	}

	if reason := antibot.DetectEmptyParse(out.Status, parseCtx.Data, selectorSpecs(selectors), parseCtx.Errors); reason != "" {
		r.persistArtifacts(ctx, job.ID, out)
		return Outcome{Reason: reason, Escalate: IsEscalatable(reason)}, nil
	}

	if len(parseCtx.Errors) > 0 && r.deps.Oracle != nil && r.deps.Governance != nil {
		if budgetErr := r.deps.Governance.CheckLLMBudget(ctx, job.ID.String(), tenant, r.deps.LLMBudget); budgetErr != nil {
			r.persistArtifacts(ctx, job.ID, out)
			return failOutcome("llm_budget_exceeded"), nil
		}
		recovered, err := r.deps.Oracle.Recover(ctx, job.ID.String(), tenant, schemaID, respCtx.Body, job.URL, selectors)
		if err != nil {
			r.persistArtifacts(ctx, job.ID, out)
			return failOutcome(oracleCode(err)), nil
		}
		for k, v := range recovered.Data {
			parseCtx.Data[k] = v
		}
		if len(recovered.Hints) > 0 && r.deps.Candidates != nil {
			if err := r.deps.Candidates.RecordAll(ctx, schemaID, recovered.Hints); err != nil {
				return Outcome{}, fmt.Errorf("recording selector candidates: %w", err)
			}
		}
	}

	r.persistArtifacts(ctx, job.ID, out)
	return Outcome{Data: parseCtx.Data, Errors: parseCtx.Errors}, nil
}

func (r *Runner) persistArtifacts(ctx context.Context, jobID uuid.UUID, out FetchOutput) {
	if r.deps.Blobs == nil {
		return
	}
	if out.HTML != "" {
		putArtifact(ctx, r.deps, jobID, store.ArtifactHTML, []byte(out.HTML))
	}
	if len(out.Screenshot) > 0 {
		putArtifact(ctx, r.deps, jobID, store.ArtifactScreenshot, out.Screenshot)
	}
	if len(out.HAR) > 0 {
		putArtifact(ctx, r.deps, jobID, store.ArtifactHAR, out.HAR)
	}
}

func putArtifact(ctx context.Context, deps Deps, jobID uuid.UUID, typ string, data []byte) {
	location, checksum, err := deps.Blobs.Put(jobID, typ, data)
	if err != nil {
		return
	}
	_ = deps.Queries.UpsertArtifact(ctx, uuid.New(), jobID, typ, location, checksum)
}

func failOutcome(reason string) Outcome {
	return Outcome{Reason: reason, Escalate: IsEscalatable(reason)}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func mergeHeaders(base map[string]string, overrides map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func cookiesToPluginMaps(cookies []identity.Cookie) []map[string]any {
	if len(cookies) == 0 {
		return nil
	}
	out := make([]map[string]any, len(cookies))
	for i, c := range cookies {
		out[i] = map[string]any{
			"name": c.Name, "value": c.Value, "domain": c.Domain, "path": c.Path,
			"secure": c.Secure, "http_only": c.HTTPOnly,
		}
	}
	return out
}

func cookiesFromPluginMaps(maps []map[string]any, fallback []identity.Cookie) []identity.Cookie {
	if maps == nil {
		return fallback
	}
	out := make([]identity.Cookie, 0, len(maps))
	for _, m := range maps {
		var c identity.Cookie
		if v, ok := m["name"].(string); ok {
			c.Name = v
		}
		if v, ok := m["value"].(string); ok {
			c.Value = v
		}
		if v, ok := m["domain"].(string); ok {
			c.Domain = v
		}
		if v, ok := m["path"].(string); ok {
			c.Path = v
		}
		if v, ok := m["secure"].(bool); ok {
			c.Secure = v
		}
		if v, ok := m["http_only"].(bool); ok {
			c.HTTPOnly = v
		}
		out = append(out, c)
	}
	return out
}

func selectorSpecs(selectors []store.Selector) []antibot.SelectorSpec {
	out := make([]antibot.SelectorSpec, 0, len(selectors))
	for _, s := range selectors {
		key := s.Field
		if s.GroupName != nil {
			key = *s.GroupName + "." + s.Field
		}
		out = append(out, antibot.SelectorSpec{Key: key, Required: s.Required})
	}
	return out
}

func ssrfCode(err error) string {
	if se, ok := err.(*ssrf.Error); ok {
		return se.Code
	}
	return "ssrf_blocked"
}

func governanceCode(err error) string {
	if de, ok := err.(*governance.DenyError); ok {
		return de.Reason
	}
	return "circuit_open"
}

func pluginCode(err error) string {
	if he, ok := err.(*plugin.HookError); ok {
		return he.Code
	}
	return "plugin_load_failed"
}

func oracleCode(err error) string {
	if oe, ok := err.(*oracle.OracleError); ok {
		return oe.Code
	}
	return oracle.CodeUnavailable
}
