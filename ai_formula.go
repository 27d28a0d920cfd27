// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// ToolCall is one tool invocation made by an AI formula.
type ToolCall struct {
	Sheet    string
	Row      int
	Column   int
	ToolName string
	Args     map[string]any
	TaskID   string
}

// ToolCaller runs a named tool and returns the text to show in the cell.
type ToolCaller interface {
	CallTool(call ToolCall) (string, error)
}

// AIFunction returns a host function that hands a tool call to caller:
//
//	AI(tool_name, json_args)
//
// json_args is a JSON object; doubled quotes, as typed inside a formula
// string, are accepted. Invalid JSON and failing calls are #VALUE!.
func AIFunction(caller ToolCaller) FunctionDescriptor {
	return FunctionDescriptor{
		Name:     "AI",
		MinArgs:  2,
		MaxArgs:  2,
		ArgTypes: []ArgType{ArgText, ArgText},
		Returns:  ReturnText,
		Handler: func(ctx *CallContext, args []Arg) Value {
			toolName := args[0].Value.Text
			var toolArgs map[string]any
			jsonStr := strings.ReplaceAll(args[1].Value.Text, `""`, `"`)
			if err := json.Unmarshal([]byte(jsonStr), &toolArgs); err != nil {
				return NewErrorValue(ErrorVALUE, "AI: invalid JSON arguments: "+err.Error())
			}
			home := ctx.Home()
			result, err := caller.CallTool(ToolCall{
				Sheet:    ctx.Sheet(),
				Row:      home.Row,
				Column:   home.Col,
				ToolName: toolName,
				Args:     toolArgs,
				TaskID:   uuid.New().String(),
			})
			if err != nil {
				ctx.vm.e.log.Warn("tool call failed", "tool", toolName, "cell", ctx.vm.e.cellLabel(ctx.vm.sheet, home), "error", err)
				return NewErrorValue(ErrorVALUE, "AI: "+err.Error())
			}
			return NewStringValue(result)
		},
	}
}

// apiRequest represents the request payload of a function call endpoint.
type apiRequest struct {
	UserID        string          `json:"user_id"`
	SpreadsheetID string          `json:"spreadsheet_id"`
	SheetID       string          `json:"sheet_id"`
	Cell          apiCellLocation `json:"cell"`
	Formula       string          `json:"formula"`
	ToolID        string          `json:"tool_id"`
	ToolName      string          `json:"tool_name"`
	ToolArgs      map[string]any  `json:"tool_args"`
	TaskID        string          `json:"task_id,omitempty"`
}

type apiCellLocation struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// apiResponse represents the response of a function call endpoint.
type apiResponse struct {
	Success     bool           `json:"success"`
	CellValue   string         `json:"cell_value"`
	Error       *string        `json:"error,omitempty"`
	RawResponse map[string]any `json:"raw_response,omitempty"`
}

// HTTPToolCaller posts tool calls to a JSON function call endpoint,
// retrying transient failures.
type HTTPToolCaller struct {
	Endpoint      string
	UserID        string
	SpreadsheetID string
	client        *retryablehttp.Client
}

// NewHTTPToolCaller creates a caller for endpoint. Requests time out after
// timeout and are retried up to retries times.
func NewHTTPToolCaller(endpoint string, timeout time.Duration, retries int, logger hclog.Logger) *HTTPToolCaller {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.RetryMax = retries
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = time.Second
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	client.Logger = logger.Named("ai")
	return &HTTPToolCaller{
		Endpoint:      endpoint,
		UserID:        "excel-user",
		SpreadsheetID: "excel-workbook",
		client:        client,
	}
}

// CallTool implements ToolCaller.
func (c *HTTPToolCaller) CallTool(call ToolCall) (string, error) {
	reqPayload := apiRequest{
		UserID:        c.UserID,
		SpreadsheetID: c.SpreadsheetID,
		SheetID:       call.Sheet,
		Cell:          apiCellLocation{Row: call.Row, Column: call.Column},
		Formula:       fmt.Sprintf("=AI(%q, ...)", call.ToolName),
		ToolID:        call.ToolName,
		ToolName:      call.ToolName,
		ToolArgs:      call.Args,
		TaskID:        call.TaskID,
	}
	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := retryablehttp.NewRequest(http.MethodPost, c.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !apiResp.Success {
		if apiResp.Error != nil {
			return "", fmt.Errorf("%s", *apiResp.Error)
		}
		if apiResp.RawResponse != nil {
			rawJSON, _ := json.Marshal(apiResp.RawResponse)
			return "", fmt.Errorf("API call failed (raw: %s)", string(rawJSON))
		}
		return "", fmt.Errorf("API call failed")
	}
	return apiResp.CellValue, nil
}
