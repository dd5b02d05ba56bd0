/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package completion sends conversations to hosted LLMs and returns a single
canonical Completion regardless of provider.

A Client owns a set of Adapters, one per wire protocol, and picks one per
request from the model name:

	claude, err := claudeadapter.New()
	...
	client, err := completion.New(openaiadapter.New(),
		completion.WithAdapter("claude-", claude),
		completion.WithCache(respcache.New(store)),
	)

	resp, err := client.Complete(ctx, completion.Credential{
		APIURL: "https://api.openai.com/v1",
		Token:  token,
		Model:  "gpt-4o",
	}, msgs, tools...)

Identical conversations are answered from the response cache; requests with
and without tools are cached separately. Models that write tool calls as text
(a fenced multi_tool_use.parallel body, or <tool_call> tags) are rewritten to
structured tool calls by the recovery passes before the response is cached.
*/
package completion
