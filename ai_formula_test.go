// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIFunctionOverHTTP(t *testing.T) {
	var attempts atomic.Int32
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := apiResponse{Success: got.ToolName == "excel__read_sheet", CellValue: "42 rows"}
		if !resp.Success {
			msg := "unknown tool"
			resp.Error = &msg
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewEngine()
	require.NoError(t, e.RegisterFunction(AIFunction(NewHTTPToolCaller(srv.URL, 5*time.Second, 2, nil))))
	require.NoError(t, e.SetCellFormula("Sheet1", "B3", `=AI("excel__read_sheet","{""uri"":""sheet://1""}")`))
	recalc(t, e)

	assert.Equal(t, "42 rows", textOf(t, e, "Sheet1", "B3"))
	assert.EqualValues(t, 2, attempts.Load())
	assert.Equal(t, "Sheet1", got.SheetID)
	assert.Equal(t, apiCellLocation{Row: 3, Column: 2}, got.Cell)
	assert.Equal(t, "excel__read_sheet", got.ToolID)
	assert.Equal(t, map[string]any{"uri": "sheet://1"}, got.ToolArgs)
	_, err := uuid.Parse(got.TaskID)
	assert.NoError(t, err)

	t.Run("tool errors", func(t *testing.T) {
		v, err := e.EvalFormula("Sheet1", "C1", `=AI("nope","{}")`)
		require.NoError(t, err)
		assert.Equal(t, ErrorVALUE, v.Err)
		assert.Contains(t, v.Text, "unknown tool")
	})
	t.Run("invalid arguments", func(t *testing.T) {
		v, err := e.EvalFormula("Sheet1", "C1", `=AI("excel__read_sheet","not json")`)
		require.NoError(t, err)
		assert.Equal(t, ErrorVALUE, v.Err)
		v, err = e.EvalFormula("Sheet1", "C1", `=AI("excel__read_sheet")`)
		require.NoError(t, err)
		assert.Equal(t, ErrorVALUE, v.Err)
	})
}

func TestHTTPToolCallerGivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	caller := NewHTTPToolCaller(srv.URL, time.Second, 1, nil)
	_, err := caller.CallTool(ToolCall{ToolName: "x"})
	assert.Error(t, err)
	assert.EqualValues(t, 2, attempts.Load())
}
