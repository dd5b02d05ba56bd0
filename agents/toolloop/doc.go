/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package toolloop runs a bounded agentic tool-calling exchange with a
completion client.

A Loop asks for a completion, executes every tool call the model requests,
feeds the results back and asks again, until the model stops requesting
tools or the round limit is reached. The input token budget is checked once
before the first call, where a breach is an error, and again after each round
of tool results, where a breach ends the loop quietly after discarding that
round.

	loop, err := toolloop.New(client,
		toolloop.WithMaxRounds(15),
		toolloop.WithTokenBudget(100_000),
	)
	res, err := loop.Run(ctx, cred, msgs, tools)

Only tools whose names appear in a system or assistant message are declared
to the model; see DeclaredTools.

A loop never makes more than rounds+2 completion calls: the first call, one
per round, and a final tool-free call when the last completion carried no
content.
*/
package toolloop
