// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package duckdb provides a DuckDB-backed store of external workbooks. A
// Provider holds the cells, sheet order and tables of any number of
// workbooks and serves them to an xlcalc engine as its
// ExternalValueProvider.
package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/OmniMCP-AI/xlcalc"
	"github.com/hashicorp/go-hclog"
	_ "github.com/marcboeker/go-duckdb"
)

// Config holds configuration options for the DuckDB provider.
type Config struct {
	// Path is the database file. Empty opens an in-memory database.
	Path string
	// MemoryLimit sets the maximum memory DuckDB can use (e.g., "4GB")
	MemoryLimit string
	// Threads sets the number of threads DuckDB should use (0 = auto)
	Threads int
	// Logger receives load and cache reports. Nil discards them.
	Logger hclog.Logger
}

// DefaultConfig returns the default configuration for the DuckDB provider.
func DefaultConfig() *Config {
	return &Config{MemoryLimit: "1GB"}
}

// ErrWorkbookNotLoaded is returned when a workbook has no stored sheets.
var ErrWorkbookNotLoaded = errors.New("workbook not loaded")

// cells and workbook_tables carry no unique keys: DuckDB rejects a delete
// followed by an insert of the same key within one transaction, which is
// how LoadSheet and AddTable replace content.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sheets (
		workbook VARCHAR NOT NULL,
		sheet    VARCHAR NOT NULL,
		pos      INTEGER NOT NULL,
		PRIMARY KEY (workbook, sheet)
	)`,
	`CREATE TABLE IF NOT EXISTS cells (
		sheet_key VARCHAR NOT NULL,
		r         INTEGER NOT NULL,
		c         INTEGER NOT NULL,
		kind      VARCHAR NOT NULL,
		num       DOUBLE,
		txt       VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS cells_sheet_key ON cells (sheet_key)`,
	`CREATE TABLE IF NOT EXISTS workbook_tables (
		workbook VARCHAR NOT NULL,
		name     VARCHAR NOT NULL,
		display  VARCHAR NOT NULL,
		sheet    VARCHAR NOT NULL,
		ref      VARCHAR NOT NULL,
		header   BOOLEAN NOT NULL,
		totals   BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS table_columns (
		workbook VARCHAR NOT NULL,
		tbl      VARCHAR NOT NULL,
		pos      INTEGER NOT NULL,
		name     VARCHAR NOT NULL
	)`,
}

// sheetCache is the in-memory copy of one stored sheet.
type sheetCache struct {
	cells      map[xlcalc.CellAddr]xlcalc.Value
	rows, cols int
}

// Provider serves external workbooks stored in DuckDB. Sheets are read
// from the database once and then answered from memory until they are
// loaded again. It is safe for concurrent use.
type Provider struct {
	db     *sql.DB
	log    hclog.Logger
	mu     sync.RWMutex
	sheets map[string]*sheetCache
}

// NewProvider opens a DuckDB database and prepares its schema.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	p := &Provider{db: db, log: cfg.Logger, sheets: make(map[string]*sheetCache)}
	if p.log == nil {
		p.log = hclog.NewNullLogger()
	}
	p.log = p.log.Named("duckdb")
	if err := p.applyConfig(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply config: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return p, nil
}

// applyConfig applies configuration settings to the DuckDB database.
func (p *Provider) applyConfig(cfg *Config) error {
	if cfg.MemoryLimit != "" {
		if _, err := p.db.Exec(fmt.Sprintf("SET memory_limit = '%s'", strings.ReplaceAll(cfg.MemoryLimit, "'", ""))); err != nil {
			return fmt.Errorf("failed to set memory_limit: %w", err)
		}
	}
	if cfg.Threads > 0 {
		if _, err := p.db.Exec(fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}
	return nil
}

// Close closes the DuckDB database connection and releases resources.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sheets = make(map[string]*sheetCache)
	return p.db.Close()
}

// sheetKey matches the key an engine passes to Get.
func sheetKey(workbook, sheet string) string {
	return "[" + strings.ToUpper(workbook) + "]" + strings.ToUpper(sheet)
}

// normalizeKey folds the case of an engine-supplied "[Book]Sheet" key.
func normalizeKey(key string) string { return strings.ToUpper(key) }

// LoadSheet stores a sheet of an external workbook, replacing any earlier
// content. data is row-major starting at A1; nil entries are blank. A new
// sheet is appended to the workbook's tab order.
//
//	err := p.LoadSheet("Budget.xlsx", "Q1", [][]any{
//	    {"Region", "Amount"},
//	    {"East", 120},
//	})
func (p *Provider) LoadSheet(workbook, sheet string, data [][]any) error {
	start := time.Now()
	key := sheetKey(workbook, sheet)
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sheets WHERE upper(workbook) = upper(?)", workbook).Scan(&count); err != nil {
		return err
	}
	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sheets WHERE upper(workbook) = upper(?) AND upper(sheet) = upper(?)", workbook, sheet).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		if _, err := tx.Exec("INSERT INTO sheets VALUES (?, ?, ?)", workbook, sheet, count); err != nil {
			return fmt.Errorf("failed to register sheet %s: %w", sheet, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM cells WHERE sheet_key = ?", key); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO cells VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	stored := 0
	for r, row := range data {
		for c, v := range row {
			kind, num, txt, ok := encodeValue(v)
			if !ok {
				continue
			}
			if _, err := stmt.Exec(key, r+1, c+1, kind, num, txt); err != nil {
				return fmt.Errorf("failed to insert %s!R%dC%d: %w", sheet, r+1, c+1, err)
			}
			stored++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.sheets, key)
	p.mu.Unlock()
	p.log.Debug("sheet loaded", "workbook", workbook, "sheet", sheet, "cells", stored, "duration", time.Since(start))
	return nil
}

// AddTable stores a table of an external workbook so structured
// references into it resolve. meta.Range is an A1 range on sheet.
func (p *Provider) AddTable(workbook, name, sheet string, meta xlcalc.TableMetadata) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	upper := strings.ToUpper(name)
	if _, err := tx.Exec("DELETE FROM workbook_tables WHERE upper(workbook) = upper(?) AND name = ?", workbook, upper); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM table_columns WHERE upper(workbook) = upper(?) AND tbl = ?", workbook, upper); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO workbook_tables VALUES (?, ?, ?, ?, ?, ?, ?)",
		workbook, upper, name, sheet, meta.Range, meta.HeaderRow, meta.TotalsRow); err != nil {
		return fmt.Errorf("failed to store table %s: %w", name, err)
	}
	for i, col := range meta.Columns {
		if _, err := tx.Exec("INSERT INTO table_columns VALUES (?, ?, ?, ?)", workbook, upper, i, col); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DropWorkbook removes every sheet and table of a workbook.
func (p *Provider) DropWorkbook(workbook string) error {
	order, ok := p.SheetOrder(workbook)
	if !ok {
		return ErrWorkbookNotLoaded
	}
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		"DELETE FROM sheets WHERE upper(workbook) = upper(?)",
		"DELETE FROM workbook_tables WHERE upper(workbook) = upper(?)",
		"DELETE FROM table_columns WHERE upper(workbook) = upper(?)",
	} {
		if _, err := tx.Exec(stmt, workbook); err != nil {
			return err
		}
	}
	for _, sheet := range order {
		if _, err := tx.Exec("DELETE FROM cells WHERE sheet_key = ?", sheetKey(workbook, sheet)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.mu.Lock()
	for _, sheet := range order {
		delete(p.sheets, sheetKey(workbook, sheet))
	}
	p.mu.Unlock()
	return nil
}

// Get implements xlcalc.ExternalValueProvider. A sheet that was never
// loaded is a broken link; a blank cell of a loaded sheet is empty.
func (p *Provider) Get(key string, addr xlcalc.CellAddr) (xlcalc.Value, bool) {
	sc, ok := p.sheet(normalizeKey(key))
	if !ok {
		return xlcalc.Value{}, false
	}
	return sc.cells[addr], true
}

// Extent implements xlcalc.ExternalExtent.
func (p *Provider) Extent(key string) (int, int, bool) {
	sc, ok := p.sheet(normalizeKey(key))
	if !ok {
		return 0, 0, false
	}
	return sc.rows, sc.cols, true
}

// SheetOrder implements xlcalc.ExternalValueProvider.
func (p *Provider) SheetOrder(workbook string) ([]string, bool) {
	rows, err := p.db.Query("SELECT sheet FROM sheets WHERE upper(workbook) = upper(?) ORDER BY pos", workbook)
	if err != nil {
		p.log.Warn("sheet order query failed", "workbook", workbook, "error", err)
		return nil, false
	}
	defer rows.Close()
	var order []string
	for rows.Next() {
		var sheet string
		if err := rows.Scan(&sheet); err != nil {
			return nil, false
		}
		order = append(order, sheet)
	}
	if rows.Err() != nil || len(order) == 0 {
		return nil, false
	}
	return order, true
}

// WorkbookTable implements xlcalc.ExternalValueProvider.
func (p *Provider) WorkbookTable(workbook, table string) (string, xlcalc.TableMetadata, bool) {
	var (
		sheet string
		meta  xlcalc.TableMetadata
	)
	upper := strings.ToUpper(table)
	err := p.db.QueryRow("SELECT sheet, ref, header, totals FROM workbook_tables WHERE upper(workbook) = upper(?) AND name = ?",
		workbook, upper).Scan(&sheet, &meta.Range, &meta.HeaderRow, &meta.TotalsRow)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			p.log.Warn("table query failed", "workbook", workbook, "table", table, "error", err)
		}
		return "", meta, false
	}
	rows, err := p.db.Query("SELECT name FROM table_columns WHERE upper(workbook) = upper(?) AND tbl = ? ORDER BY pos", workbook, upper)
	if err != nil {
		return "", meta, false
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return "", meta, false
		}
		meta.Columns = append(meta.Columns, col)
	}
	return sheet, meta, rows.Err() == nil
}

// sheet returns the cached copy of a sheet, reading it on first use.
func (p *Provider) sheet(key string) (*sheetCache, bool) {
	p.mu.RLock()
	sc, ok := p.sheets[key]
	p.mu.RUnlock()
	if ok {
		return sc, sc != nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sc, ok := p.sheets[key]; ok {
		return sc, sc != nil
	}
	sc, err := p.readSheet(key)
	if err != nil {
		p.log.Warn("sheet read failed", "sheet", key, "error", err)
		return nil, false
	}
	p.sheets[key] = sc
	return sc, sc != nil
}

// readSheet loads a sheet's cells. It returns nil for a sheet that is not
// registered, which is cached as a broken link until the next load.
func (p *Provider) readSheet(key string) (*sheetCache, error) {
	var registered int
	err := p.db.QueryRow("SELECT COUNT(*) FROM sheets WHERE '[' || upper(workbook) || ']' || upper(sheet) = ?", key).Scan(&registered)
	if err != nil {
		return nil, err
	}
	if registered == 0 {
		return nil, nil
	}
	rows, err := p.db.Query("SELECT r, c, kind, num, txt FROM cells WHERE sheet_key = ?", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sc := &sheetCache{cells: make(map[xlcalc.CellAddr]xlcalc.Value)}
	for rows.Next() {
		var (
			r, c int
			kind string
			num  sql.NullFloat64
			txt  sql.NullString
		)
		if err := rows.Scan(&r, &c, &kind, &num, &txt); err != nil {
			return nil, err
		}
		sc.cells[xlcalc.CellAddr{Row: r, Col: c}] = decodeValue(kind, num.Float64, txt.String)
		sc.rows, sc.cols = max(sc.rows, r), max(sc.cols, c)
	}
	return sc, rows.Err()
}

// encodeValue maps a host value onto the kind, number and text columns
// of a stored cell. Blank values are not stored.
func encodeValue(v any) (kind string, num, txt any, ok bool) {
	number := func(f float64) (string, any, any, bool) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "e", nil, xlcalc.ErrorNUM.String(), true
		}
		return "n", f, nil, true
	}
	switch t := v.(type) {
	case nil:
		return "", nil, nil, false
	case float64:
		return number(t)
	case float32:
		return number(float64(t))
	case int:
		return number(float64(t))
	case int32:
		return number(float64(t))
	case int64:
		return number(float64(t))
	case uint:
		return number(float64(t))
	case uint32:
		return number(float64(t))
	case uint64:
		return number(float64(t))
	case string:
		return "s", nil, t, true
	case []byte:
		return "s", nil, string(t), true
	case bool:
		if t {
			return "b", 1.0, nil, true
		}
		return "b", 0.0, nil, true
	case xlcalc.Value:
		switch t.Type {
		case xlcalc.ValueNumber:
			return number(t.Number)
		case xlcalc.ValueString:
			return "s", nil, t.Text, true
		case xlcalc.ValueBool:
			return encodeValue(t.Bool)
		case xlcalc.ValueError:
			return "e", nil, t.Err.String(), true
		case xlcalc.ValueArray:
			if len(t.Array) > 0 && len(t.Array[0]) > 0 {
				return encodeValue(t.Array[0][0])
			}
		}
		return "", nil, nil, false
	}
	return "s", nil, fmt.Sprint(v), true
}

func decodeValue(kind string, num float64, txt string) xlcalc.Value {
	switch kind {
	case "n":
		return xlcalc.NewNumberValue(num)
	case "b":
		return xlcalc.NewBoolValue(num != 0)
	case "e":
		if k, ok := xlcalc.ParseErrorLiteral(txt); ok {
			return xlcalc.NewErrorValue(k)
		}
		return xlcalc.NewErrorValue(xlcalc.ErrorUNKNOWN)
	}
	return xlcalc.NewStringValue(txt)
}
