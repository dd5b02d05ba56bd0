/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolloop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/agents/agenttrace"
	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/metrics"
	"chainguard.dev/reviewpipe/agents/tokens"
	"chainguard.dev/reviewpipe/agents/toolcall"
	"github.com/chainguard-dev/clog"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRounds   = 15
	DefaultTokenBudget = 100_000
	DefaultRoundPause  = time.Second

	// DefaultSummaryPrompt is sent when the rounds ran out before the model
	// produced any text.
	DefaultSummaryPrompt = "Max tool calls reached. Provide a remaining brief summary without repeating feedback already provided by tools."
)

// ErrBudgetExceeded matches every *BudgetExceededError.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// BudgetExceededError reports a conversation that is already over budget
// before the first completion call.
type BudgetExceededError struct {
	Count  int
	Budget int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("conversation has %d tokens, budget is %d", e.Count, e.Budget)
}

func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// Loop drives the tool-calling exchange. A Loop holds no per-run state and
// may be shared.
type Loop struct {
	client        completion.Completer
	counter       *tokens.Counter
	maxRounds     int
	tokenBudget   int
	pause         time.Duration
	summaryPrompt string
	scanRoles     []message.Role
	genaiMetrics  *metrics.GenAI
}

// Result is the outcome of one run.
type Result struct {
	// Completion is the last completion received.
	Completion *completion.Completion
	// Messages is the request conversation as last sent, without the final
	// completion's message.
	Messages []message.Message
	// Rounds is the number of tool rounds executed.
	Rounds int
	// RealTokens sums the provider-reported total tokens of every call.
	RealTokens int64
}

// Content returns the text of the final completion.
func (r *Result) Content() string {
	return r.Completion.First().Message.Content
}

// New returns a loop that calls client.
func New(client completion.Completer, opts ...Option) (*Loop, error) {
	if client == nil {
		return nil, errors.New("completion client cannot be nil")
	}
	genaiMetrics := metrics.NewGenAI("chainguard.dev/reviewpipe/toolloop")
	genaiMetrics.SetAttributeEnricher(agenttrace.Enricher)

	l := &Loop{
		client:        client,
		counter:       tokens.NewCounter(),
		maxRounds:     DefaultMaxRounds,
		tokenBudget:   DefaultTokenBudget,
		pause:         DefaultRoundPause,
		summaryPrompt: DefaultSummaryPrompt,
		scanRoles:     []message.Role{message.RoleSystem, message.RoleAssistant},
		genaiMetrics:  genaiMetrics,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return l, nil
}

// DeclaredTools returns the tools whose names occur in the content of a
// message with one of the given roles. No roles means system and assistant.
func DeclaredTools(msgs []message.Message, tools toolcall.Set, roles ...message.Role) toolcall.Set {
	if len(roles) == 0 {
		roles = []message.Role{message.RoleSystem, message.RoleAssistant}
	}
	out := toolcall.Set{}
	for _, m := range msgs {
		if !slices.Contains(roles, m.Role) {
			continue
		}
		for name, t := range tools {
			if strings.Contains(m.Content, name) {
				out[name] = t
			}
		}
	}
	return out
}

// Run executes the loop over msgs. The caller's slice is not modified.
// Tool calls are dispatched against tools; only the declared subset is
// offered to the model.
func (l *Loop) Run(ctx context.Context, cred completion.Credential, msgs []message.Message, tools toolcall.Set) (*Result, error) {
	log := clog.FromContext(ctx).With("model", cred.Model)
	msgs = slices.Clone(msgs)

	if l.tokenBudget > 0 {
		if n := l.counter.CountMessages(ctx, msgs); n > l.tokenBudget {
			return nil, &BudgetExceededError{Count: n, Budget: l.tokenBudget}
		}
	}

	var defs []toolcall.Definition
	if l.maxRounds > 0 {
		defs = DeclaredTools(msgs, tools, l.scanRoles...).Definitions()
	}

	trace := agenttrace.StartTrace[string](ctx, message.Transcript(msgs))
	ctx = trace.Context()
	trace.SetMetadata("declared_tools", len(defs))

	res := &Result{}
	resp, err := l.complete(ctx, trace, cred, msgs, defs, res)
	if err != nil {
		trace.Complete("", err)
		return nil, err
	}

	var limiter *rate.Limiter
	if l.pause > 0 {
		limiter = rate.NewLimiter(rate.Every(l.pause), 1)
		// Drain the initial token so the first round also waits.
		limiter.Allow()
	}

	for remaining := l.maxRounds; resp.First().FinishReason == completion.FinishToolCalls; {
		if remaining <= 0 {
			log.With("rounds", res.Rounds).Info("Tool rounds exhausted")
			break
		}
		remaining--
		res.Rounds++

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				trace.Complete("", err)
				return nil, fmt.Errorf("waiting between tool rounds: %w", err)
			}
		}
		roundCtx := agenttrace.WithRound(ctx, res.Rounds)

		mark := len(msgs)
		assistant := resp.First().Message
		msgs = append(msgs, assistant)
		for _, call := range assistant.ToolCalls {
			msgs = append(msgs, message.ToolResult(call.ID, l.execute(roundCtx, trace, cred.Model, tools, call)))
		}

		if l.tokenBudget > 0 {
			if n := l.counter.CountMessages(ctx, msgs); n > l.tokenBudget {
				log.With("tokens", n).With("budget", l.tokenBudget).Warn("Token budget reached, discarding last tool round")
				msgs = msgs[:mark]
				break
			}
		}

		resp, err = l.complete(roundCtx, trace, cred, msgs, defs, res)
		if err != nil {
			trace.Complete("", err)
			return nil, err
		}
	}

	if resp.First().Message.Content == "" {
		if res.Rounds > 0 {
			msgs = append(msgs, message.User(l.summaryPrompt))
		}
		resp, err = l.complete(ctx, trace, cred, msgs, nil, res)
		if err != nil {
			trace.Complete("", err)
			return nil, err
		}
	}

	res.Completion = resp
	res.Messages = msgs
	trace.SetMetadata("rounds", res.Rounds)
	trace.Complete(resp.First().Message.Content, nil)
	return res, nil
}

func (l *Loop) complete(ctx context.Context, trace *agenttrace.Trace[string], cred completion.Credential, msgs []message.Message, defs []toolcall.Definition, res *Result) (*completion.Completion, error) {
	resp, err := l.client.Complete(ctx, cred, msgs, defs...)
	if err != nil {
		return nil, err
	}
	res.RealTokens += resp.Usage.TotalTokens
	trace.RecordTokenUsage(cred.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// execute runs one tool call. Every failure becomes the text of the tool
// result so the model can react to it.
func (l *Loop) execute(ctx context.Context, trace *agenttrace.Trace[string], model string, tools toolcall.Set, call message.ToolCall) string {
	log := clog.FromContext(ctx).With("tool", call.Name).With("id", call.ID)

	args, err := toolcall.ParseArguments(call.Arguments)
	if err != nil {
		log.With("error", err).Warn("Malformed tool arguments")
		trace.BadToolCall(call.ID, call.Name, nil, err)
		return err.Error()
	}

	tool, ok := tools[call.Name]
	if !ok {
		log.Warn("Unknown tool requested by model")
		trace.BadToolCall(call.ID, call.Name, args, fmt.Errorf("unknown tool %q", call.Name))
		return "Unknown tool function: " + call.Name
	}

	l.genaiMetrics.RecordToolCall(ctx, model, call.Name)
	tc := trace.StartToolCall(call.ID, call.Name, args)
	out, err := tool.Handler(ctx, toolcall.ToolCall{ID: call.ID, Name: call.Name, Args: args}, trace)
	tc.Complete(out, err)
	if err != nil {
		log.With("error", err).Warn("Tool call failed")
		return err.Error()
	}
	return out
}
