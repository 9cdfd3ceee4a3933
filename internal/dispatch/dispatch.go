// Package dispatch routes a researcher's tool call to a special-cased
// handler, the tool cache, or the tool registry.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/Sequela02/ehrlich-sub001/internal/capability"
	"github.com/Sequela02/ehrlich-sub001/internal/findings"
	"github.com/Sequela02/ehrlich-sub001/internal/telemetry"
	"github.com/Sequela02/ehrlich-sub001/internal/toolcache"
	"github.com/Sequela02/ehrlich-sub001/internal/uploads"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Names of the tools served without the registry or cache.
const (
	ToolQueryUploadedData   = "query_uploaded_data"
	ToolSearchPriorFindings = "search_prior_findings"
)

const defaultFindingsLimit = 10

// Registry is the subset of the tool registry the dispatcher needs.
type Registry interface {
	Get(name string) (capability.Tool, bool)
	List() []string
}

// Dispatcher never returns an error: every failure becomes a JSON error payload.
type Dispatcher struct {
	registry Registry
	cache    toolcache.Cache
	ttls     toolcache.TTLTable
	uploads  *uploads.Store
	findings findings.Searcher
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCache enables result caching for tools that have a TTL in ttls.
func WithCache(cache toolcache.Cache, ttls toolcache.TTLTable) Option {
	return func(d *Dispatcher) {
		d.cache = cache
		d.ttls = ttls
	}
}

func WithUploads(store *uploads.Store) Option {
	return func(d *Dispatcher) { d.uploads = store }
}

func WithFindings(searcher findings.Searcher) Option {
	return func(d *Dispatcher) { d.findings = searcher }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l.Named("dispatch")
		}
	}
}

// New returns a dispatcher over registry.
func New(registry Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsSpecial reports whether name bypasses cache and registry.
func IsSpecial(name string) bool {
	return name == ToolQueryUploadedData || name == ToolSearchPriorFindings
}

// Dispatch runs tool name with args on behalf of an investigation.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, investigationID string) string {
	ctx, span := telemetry.Tracer("dispatch").Start(ctx, "dispatch.tool")
	span.SetAttributes(attribute.String("tool", name), attribute.String("investigation_id", investigationID))
	defer span.End()

	if IsSpecial(name) {
		d.metrics.ToolCall(name, telemetry.OutcomeSpecial)
		return d.special(ctx, name, args, investigationID)
	}

	ttl, cacheable := d.ttls.TTL(name)
	cacheable = cacheable && d.cache != nil
	var hash string
	if cacheable {
		hash = toolcache.HashArgs(args)
		if v, ok := d.cache.Get(ctx, name, hash); ok {
			d.metrics.CacheLookup("hit")
			d.metrics.ToolCall(name, telemetry.OutcomeCached)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return v
		}
		d.metrics.CacheLookup("miss")
	}

	tool, ok := d.registry.Get(name)
	if !ok {
		d.metrics.ToolCall(name, telemetry.OutcomeUnknown)
		d.logger.Warn("unknown tool", zap.String("tool", name))
		return errorPayload(name, fmt.Sprintf("Unknown tool: %s", name), map[string]any{"available": d.registry.List()})
	}

	result, err := invoke(ctx, tool.Func, args)
	if err != nil {
		d.metrics.ToolCall(name, telemetry.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("tool failed", zap.String("tool", name), zap.String("investigation_id", investigationID), zap.Error(err))
		extra := map[string]any{}
		var ext *capability.ExternalServiceError
		if errors.As(err, &ext) {
			extra["service"] = ext.Service
		}
		return errorPayload(name, err.Error(), extra)
	}
	d.metrics.ToolCall(name, telemetry.OutcomeOK)
	if cacheable {
		d.cache.Put(ctx, name, hash, result, ttl)
	}
	return result
}

func invoke(ctx context.Context, fn capability.ToolFunc, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, args)
}

func (d *Dispatcher) special(ctx context.Context, name string, args map[string]any, investigationID string) string {
	switch name {
	case ToolQueryUploadedData:
		if d.uploads == nil {
			return errorPayload(name, "no uploaded data for this investigation", nil)
		}
		out, err := d.uploads.Query(investigationID, args)
		if err != nil {
			return errorPayload(name, err.Error(), nil)
		}
		return out
	default:
		if d.findings == nil {
			return errorPayload(name, "prior findings search is not configured", nil)
		}
		query, _ := args["query"].(string)
		limit := defaultFindingsLimit
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		records, err := d.findings.SearchFindings(ctx, query, limit)
		if err != nil {
			d.logger.Warn("prior findings search failed", zap.Error(err))
			return errorPayload(name, err.Error(), nil)
		}
		results := make([]map[string]any, 0, len(records))
		for _, r := range records {
			if r.InvestigationID == investigationID {
				continue
			}
			results = append(results, map[string]any{
				"investigation_id": r.InvestigationID,
				"title":            r.Finding.Title,
				"detail":           r.Finding.Detail,
				"evidence_type":    string(r.Finding.EvidenceType),
				"source":           r.Finding.Source,
				"score":            r.Score,
			})
		}
		return marshal(map[string]any{"query": strings.TrimSpace(query), "count": len(results), "results": results})
	}
}

func errorPayload(tool, msg string, extra map[string]any) string {
	payload := map[string]any{"error": msg, "tool": tool}
	for k, v := range extra {
		payload[k] = v
	}
	return marshal(payload)
}

func marshal(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(raw)
}
