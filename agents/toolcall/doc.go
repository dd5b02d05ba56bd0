/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package toolcall defines provider-independent tools that a model may call
// from inside the agentic tool loop.
//
// A Tool pairs a Definition (name, description, parameters) with a Handler.
// Completion adapters translate definitions to each provider's wire format;
// the tool loop decodes arguments into a ToolCall and runs the handler.
//
//	def := toolcall.DefinitionFor[fileArgs]("getFileContent", "Get the file content")
//	tools := toolcall.Set{}.Add(toolcall.Tool{Def: def, Handler: readFile})
package toolcall
