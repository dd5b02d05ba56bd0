/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolloop

import (
	"errors"
	"fmt"
	"time"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/tokens"
)

// Option is a functional option for configuring a Loop
type Option func(*Loop) error

// WithMaxRounds sets the number of tool rounds. Zero disables tools.
func WithMaxRounds(n int) Option {
	return func(l *Loop) error {
		if n < 0 {
			return fmt.Errorf("max rounds must be non-negative, got %d", n)
		}
		l.maxRounds = n
		return nil
	}
}

// WithTokenBudget sets the input token budget. Zero disables enforcement.
func WithTokenBudget(n int) Option {
	return func(l *Loop) error {
		if n < 0 {
			return fmt.Errorf("token budget must be non-negative, got %d", n)
		}
		l.tokenBudget = n
		return nil
	}
}

// WithRoundPause sets the minimum pause before each tool round.
func WithRoundPause(d time.Duration) Option {
	return func(l *Loop) error {
		if d < 0 {
			return fmt.Errorf("round pause must be non-negative, got %v", d)
		}
		l.pause = d
		return nil
	}
}

// WithSummaryPrompt sets the message that asks for a summary after the
// rounds ran out.
func WithSummaryPrompt(prompt string) Option {
	return func(l *Loop) error {
		if prompt == "" {
			return errors.New("summary prompt cannot be empty")
		}
		l.summaryPrompt = prompt
		return nil
	}
}

// WithToolScanRoles sets which message roles are scanned for tool names.
func WithToolScanRoles(roles ...message.Role) Option {
	return func(l *Loop) error {
		if len(roles) == 0 {
			return errors.New("at least one role is required")
		}
		l.scanRoles = roles
		return nil
	}
}

// WithCounter replaces the token counter.
func WithCounter(c *tokens.Counter) Option {
	return func(l *Loop) error {
		if c == nil {
			return errors.New("token counter cannot be nil")
		}
		l.counter = c
		return nil
	}
}
