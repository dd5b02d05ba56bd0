/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package result

import "strings"

const fence = "```"

// ExtractJSON returns the body of the first "```json" block in text. A block
// missing its closing fence runs to the end of text. Without a json block
// the trimmed text is returned with any surrounding fences removed.
func ExtractJSON(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != fence+"json" {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.TrimSpace(l) == fence {
				break
			}
			body = append(body, l)
		}
		return strings.TrimSpace(strings.Join(body, "\n"))
	}

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, fence+"json")
	text = strings.TrimPrefix(text, fence)
	text = strings.TrimSuffix(text, fence)
	return strings.TrimSpace(text)
}

// OpenFence reports whether text opens with a single word fenced on both
// sides, as in "```multi_tool_use.parallel```", and returns that label and
// whatever follows the closing fence.
func OpenFence(text string) (label, rest string, ok bool) {
	body, found := strings.CutPrefix(strings.TrimLeft(text, " \t\r\n"), fence)
	if !found {
		return "", "", false
	}
	label, rest, found = strings.Cut(body, fence)
	if !found || label == "" || strings.ContainsAny(label, " \t\r\n") {
		return "", "", false
	}
	return label, rest, true
}
