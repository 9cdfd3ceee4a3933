package research

import (
	"context"
	"fmt"

	"github.com/Sequela02/ehrlich-sub001/internal/budget"
	"github.com/Sequela02/ehrlich-sub001/internal/capability"
	"github.com/Sequela02/ehrlich-sub001/internal/dispatch"
	"github.com/Sequela02/ehrlich-sub001/internal/domain"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/runner"
	"github.com/Sequela02/ehrlich-sub001/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultMaxIterations = 12
	defaultMaxTokens     = 4096
)

// Dispatcher runs a registry or special tool and returns its result text.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any, investigationID string) string
}

// Catalog resolves tool cards for the tool definitions offered to the model.
type Catalog interface {
	Get(name string) (capability.Tool, bool)
	ForTags(tags []string) []capability.ToolCard
}

type Config struct {
	Model         string
	MaxIterations int
	MaxTokens     int
}

// Researcher runs the tool loop for one experiment. It implements runner.Session.
type Researcher struct {
	client     Client
	dispatcher Dispatcher
	catalog    Catalog
	cfg        Config
	domain     domain.Config
	accountant *budget.Accountant
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

type Option func(*Researcher)

func WithLogger(l *zap.Logger) Option {
	return func(r *Researcher) {
		if l != nil {
			r.logger = l.Named("researcher")
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Researcher) { r.metrics = m }
}

func New(client Client, dispatcher Dispatcher, catalog Catalog, cfg Config, opts ...Option) *Researcher {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	r := &Researcher{client: client, dispatcher: dispatcher, catalog: catalog, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// For returns a session bound to one investigation's domain and cost accountant.
func (r *Researcher) For(dom domain.Config, acct *budget.Accountant) runner.Session {
	cp := *r
	cp.domain = dom
	cp.accountant = acct
	return &cp
}

// Run drives the session until the model stops asking for tools, the
// experiment is concluded, or the iteration bound is hit. Only model client
// failures are returned; tool failures go back to the model as results.
func (r *Researcher) Run(ctx context.Context, shared *investigation.Shared, task runner.Task, emit events.Emit) error {
	ctx, span := telemetry.Tracer("research").Start(ctx, "research.session")
	span.SetAttributes(attribute.String("experiment_id", task.Experiment.ID))
	defer span.End()

	invID := shared.ID()
	req := Request{
		Model:     r.cfg.Model,
		System:    systemPrompt(r.domain, task),
		Messages:  []Message{{Role: RoleUser, Text: experimentBrief(task)}},
		Tools:     r.tools(task),
		MaxTokens: r.cfg.MaxTokens,
	}
	log := r.logger.With(zap.String("investigation_id", invID), zap.String("experiment_id", task.Experiment.ID))

	for turn := 0; turn < r.cfg.MaxIterations; turn++ {
		resp, err := r.client.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("researcher turn %d: %w", turn, err)
		}
		model := resp.Model
		if model == "" {
			model = r.cfg.Model
		}
		if r.accountant != nil {
			r.accountant.AddUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, model)
		}
		r.metrics.Tokens(model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

		for _, text := range []string{resp.Thinking, resp.Text} {
			if text != "" {
				emit(events.Thinking{Text: text, HypothesisID: task.Hypothesis.ID, ExperimentID: task.Experiment.ID})
			}
		}
		req.Messages = append(req.Messages, Message{
			Role:      RoleAssistant,
			Text:      resp.Text,
			Thinking:  resp.Thinking,
			ToolCalls: resp.ToolCalls,
		})
		if resp.StopReason != StopToolUse || len(resp.ToolCalls) == 0 {
			log.Debug("session finished", zap.Int("turns", turn+1), zap.String("stop_reason", resp.StopReason))
			return nil
		}

		outputs := make([]ToolOutput, 0, len(resp.ToolCalls))
		concluded := false
		for _, call := range resp.ToolCalls {
			out, done := r.call(ctx, shared, task, call, emit)
			outputs = append(outputs, out)
			concluded = concluded || done
		}
		req.Messages = append(req.Messages, Message{Role: RoleUser, ToolOutputs: outputs})
		if concluded {
			log.Debug("experiment concluded", zap.Int("turns", turn+1))
			return nil
		}
	}
	log.Info("max iterations reached", zap.Int("max_iterations", r.cfg.MaxIterations))
	return nil
}

func (r *Researcher) call(ctx context.Context, shared *investigation.Shared, task runner.Task, call ToolCall, emit events.Emit) (ToolOutput, bool) {
	emit(events.ToolCalled{
		ToolName:     call.Name,
		Args:         call.Input,
		HypothesisID: task.Hypothesis.ID,
		ExperimentID: task.Experiment.ID,
	})
	if r.accountant != nil {
		r.accountant.AddToolCall()
	}

	out := ToolOutput{ToolCallID: call.ID}
	concluded := false
	if isBuiltin(call.Name) {
		result, done, err := builtin(shared, task, call, emit)
		if err != nil {
			result, out.IsError = errorResult(call.Name, err), true
		}
		out.Content, concluded = result, done
	} else {
		out.Content = r.dispatcher.Dispatch(ctx, call.Name, call.Input, shared.ID())
	}

	emit(events.ToolResult{
		ToolName:     call.Name,
		Preview:      out.Content,
		HypothesisID: task.Hypothesis.ID,
		ExperimentID: task.Experiment.ID,
	})
	return out, concluded
}

// tools lists the built-ins, the special tools, and the registry tools named
// in the experiment's plan. An empty plan offers every tool tagged for the domain.
func (r *Researcher) tools(task runner.Task) []ToolDefinition {
	defs := append([]ToolDefinition(nil), builtinDefinitions...)
	defs = append(defs, specialDefinitions...)
	seen := map[string]bool{}
	for _, d := range defs {
		seen[d.Name] = true
	}
	add := func(card capability.ToolCard) {
		if seen[card.Name] {
			return
		}
		seen[card.Name] = true
		defs = append(defs, ToolDefinition{Name: card.Name, Description: card.Description, InputSchema: card.InputSchema})
	}
	if r.catalog == nil {
		return defs
	}
	if len(task.Experiment.ToolPlan) == 0 {
		for _, card := range r.catalog.ForTags(r.domain.ToolTags) {
			add(card)
		}
		return defs
	}
	for _, name := range task.Experiment.ToolPlan {
		if tool, ok := r.catalog.Get(name); ok {
			add(tool.Card)
		} else if !seen[name] && !dispatch.IsSpecial(name) {
			r.logger.Debug("planned tool not registered", zap.String("tool", name))
		}
	}
	return defs
}

var _ runner.Session = (*Researcher)(nil)
