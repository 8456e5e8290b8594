package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/mcp-bridge/docs"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// Output formats of a one-shot tool call.
const (
	formatText = "text"
	formatJSON = "json"
)

// errToolFailed is returned when the tool answers with isError set.
var errToolFailed = errors.New("tool reported an error")

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// callTool runs one tools/call request through h and writes the result to w.
// Text output is the concatenated text content; JSON output is the raw
// tool result.
func callTool(ctx context.Context, h *docs.Handler, tool, args, format string, w io.Writer) error {
	if format != formatText && format != formatJSON {
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatText, formatJSON)
	}
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return fmt.Errorf("-args is not valid JSON: %s", args)
	}

	params, err := json.Marshal(map[string]any{
		"name":      tool,
		"arguments": json.RawMessage(args),
	})
	if err != nil {
		return err
	}
	resp, err := h.Handle(ctx, &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      json.RawMessage("1"),
		Method:  protocol.MethodToolsCall,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", tool, resp.Error)
	}

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%s: unexpected result: %w", tool, err)
	}

	if format == formatJSON {
		_, err = fmt.Fprintf(w, "%s\n", raw)
	} else {
		for _, c := range result.Content {
			if c.Type != "text" {
				continue
			}
			if _, err = fmt.Fprintln(w, c.Text); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("%s: %w", tool, errToolFailed)
	}
	return nil
}
