// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package xlcalc implements an Excel-compatible formula engine: a lexer
// and parser for locale-dependent formula text, a live dependency graph
// with shared range nodes, and an incremental, parallel recalculation
// scheduler with dynamic array spilling.
package xlcalc

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Engine holds one workbook's cells, formulas, names and tables together
// with the dependency graph and caches that drive recalculation. Edits and
// recalculation are serialised; an engine is safe for concurrent use.
type Engine struct {
	id       string
	mu       sync.Mutex
	opts     Options
	log      hclog.Logger
	wb       *workbook
	store    *CellStore
	graph    *DependencyGraph
	registry *FunctionRegistry
	programs *lruCache[string, *program]
	text     *textRules
	resolver *Resolver
	ranges   *rangeCache
	shared   map[string]*sharedNode
}

// sharedNode is a formula tree used by every cell whose formula has the
// same relative shape.
type sharedNode struct {
	node Node
	refs int
}

// Ref names a block of cells. Workbook is set for cells of another
// workbook only.
type Ref struct {
	Workbook string
	Sheet    string
	Range    string
}

// String renders the reference as it would appear in a formula.
func (r Ref) String() string {
	return formatSheetPrefix(&SheetPrefix{Workbook: r.Workbook, Sheet: r.Sheet}) + "!" + r.Range
}

// DefinedName describes a defined name. An empty Scope makes the name
// visible to the whole workbook, otherwise only to the named sheet.
type DefinedName struct {
	Name     string
	RefersTo string
	Scope    string
}

// NewEngine provides a function to create a new engine holding one empty
// worksheet named Sheet1.
func NewEngine(opts ...Options) *Engine {
	options := getOptions(opts...)
	id := uuid.NewString()
	e := &Engine{
		id:       id,
		opts:     options,
		log:      options.Logger.Named("engine").With("engine_id", id),
		wb:       newWorkbook(),
		store:    NewCellStore(),
		registry: NewFunctionRegistry(),
		programs: newLRUCache[string, *program](options.ProgramCacheSize),
		text:     newTextRules(options.Locale.Language),
		shared:   make(map[string]*sharedNode),
	}
	e.graph = newDependencyGraph(options.Logger.Named("graph"), options.MergeRanges)
	e.graph.label = e.cellLabel
	e.resolver = &Resolver{wb: e.wb, provider: options.Provider}
	e.ranges = newRangeCache(e.store)
	_, _ = e.wb.addSheet("Sheet1")
	return e
}

// ID returns the engine's instance id, which also tags its log lines.
func (e *Engine) ID() string { return e.id }

// cellLabel renders a sheet-qualified cell name for logs and cycle reports.
func (e *Engine) cellLabel(sheet int, addr CellAddr) string {
	return formatSheetPrefix(&SheetPrefix{Sheet: e.wb.sheetName(sheet)}) + "!" + addr.String()
}

// locate resolves a sheet name and a cell name.
func (e *Engine) locate(sheet, cell string) (int, CellAddr, error) {
	id, ok := e.wb.sheetID(sheet)
	if !ok {
		return 0, CellAddr{}, ErrSheetNotExist{SheetName: sheet}
	}
	addr, err := parseCellAddr(strings.ReplaceAll(cell, "$", ""))
	if err != nil {
		return 0, CellAddr{}, err
	}
	return id, addr, nil
}

// intern returns the shared tree for a formula shape, registering n as
// that tree when the shape is new.
func (e *Engine) intern(key string, n Node) Node {
	if s, ok := e.shared[key]; ok {
		s.refs++
		return s.node
	}
	e.shared[key] = &sharedNode{node: n, refs: 1}
	return n
}

// release drops one use of a shared tree.
func (e *Engine) release(key string) {
	if s, ok := e.shared[key]; ok {
		if s.refs--; s.refs <= 0 {
			delete(e.shared, key)
			e.programs.Delete(key)
		}
	}
}

// SetCellFormula provides a function to set a formula on a cell. The
// leading "=" is optional. A formula that would close a dependency cycle
// is rejected with a *CircularReferenceError and the workbook is left as
// it was. The cell gets its value on the next Recalculate.
func (e *Engine) SetCellFormula(sheet, cell, formula string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return err
	}
	return e.setFormula(id, addr, formula)
}

func (e *Engine) setFormula(sheet int, addr CellAddr, formula string) error {
	if strings.TrimSpace(strings.TrimPrefix(formula, "=")) == "" {
		return ErrEmptyFormula
	}
	n, err := ParseFormula(formula, ParseContext{Home: addr, Locale: e.opts.Locale, Mode: e.opts.RefMode})
	if err != nil {
		return err
	}
	key := NodeKey(n)
	prev := e.graph.formulaAt(sheet, addr)
	fc := &formulaCell{sheet: sheet, addr: addr, text: formula, key: key}
	deps := collectDeps(e.resolver, e.registry, n, sheet, addr)
	if err := e.graph.SetFormula(fc, deps); err != nil {
		e.log.Debug("formula rejected", "cell", e.cellLabel(sheet, addr), "error", err)
		return err
	}
	e.evictSpill(sheet, addr)
	fc.node = e.intern(key, n)
	if prev != nil {
		e.release(prev.key)
	}
	e.store.SetFormula(sheet, addr, fc)
	e.graph.MarkDirty(sheet, addr)
	return nil
}

// evictSpill turns the origin of a block covering a cell into #SPILL!
// once the cell holds a formula of its own. The origin spills again when
// the cell is cleared.
func (e *Engine) evictSpill(sheet int, addr CellAddr) {
	g := e.graph
	id, ok := g.arena.lookup(sheet, addr)
	if !ok {
		return
	}
	origin, member := g.spillOf[id]
	if !member {
		return
	}
	area := g.spills[origin]
	osheet, oaddr := g.arena.key(origin)
	e.log.Debug("spill evicted", "cell", e.cellLabel(sheet, addr), "origin", e.cellLabel(osheet, oaddr))
	e.store.dropSpill(osheet, oaddr, NewErrorValue(ErrorSPILL, "spill range isn't blank"))
	g.setBlocked(origin, area)
	g.dirty[origin] = struct{}{}
	g.markReaders(cellKey{sheet: osheet, addr: oaddr})
	g.markAreaReaders(area)
}

// dropFormula removes the formula of a cell, if any, with the block it
// spilled.
func (e *Engine) dropFormula(sheet int, addr CellAddr) {
	fc := e.graph.formulaAt(sheet, addr)
	if fc == nil {
		return
	}
	g := e.graph
	if area, ok := g.spills[fc.id]; ok {
		e.store.dropSpill(sheet, addr, EmptyValue())
		g.clearSpill(fc.id, nil)
		g.markAreaReaders(area)
	}
	g.unblock(fc.id)
	g.ClearFormula(sheet, addr)
	e.release(fc.key)
}

// SetCellValue provides a function to set a constant on a cell, replacing
// any formula. Supported types are the Go numeric types, string, []byte,
// bool, time.Time, time.Duration, nil and Value; anything else is stored
// as its fmt.Sprint text.
func (e *Engine) SetCellValue(sheet, cell string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return err
	}
	e.setValue(id, addr, toValue(value))
	return nil
}

func (e *Engine) setValue(sheet int, addr CellAddr, v Value) {
	e.dropFormula(sheet, addr)
	e.store.SetValue(sheet, addr, v)
	e.graph.MarkDirty(sheet, addr)
}

// toValue converts a Go value into a cell value.
func toValue(value any) Value {
	switch v := value.(type) {
	case nil:
		return EmptyValue()
	case Value:
		return v.Clone()
	case int:
		return NewNumberValue(float64(v))
	case int8:
		return NewNumberValue(float64(v))
	case int16:
		return NewNumberValue(float64(v))
	case int32:
		return NewNumberValue(float64(v))
	case int64:
		return NewNumberValue(float64(v))
	case uint:
		return NewNumberValue(float64(v))
	case uint8:
		return NewNumberValue(float64(v))
	case uint16:
		return NewNumberValue(float64(v))
	case uint32:
		return NewNumberValue(float64(v))
	case uint64:
		return NewNumberValue(float64(v))
	case float32:
		return NewNumberValue(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewErrorValue(ErrorNUM)
		}
		return NewNumberValue(v)
	case string:
		return NewStringValue(v)
	case []byte:
		return NewStringValue(string(v))
	case bool:
		return NewBoolValue(v)
	case time.Time:
		return NewNumberValue(timeToSerial(wallClock(v)))
	case time.Duration:
		return NewNumberValue(v.Seconds() / secondsPerDay)
	}
	return NewStringValue(fmt.Sprint(value))
}

// ClearCell provides a function to remove the content of a cell.
func (e *Engine) ClearCell(sheet, cell string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return err
	}
	e.setValue(id, addr, EmptyValue())
	return nil
}

// GetCellValue provides a function to get the current value of a cell.
// Formula cells report the result of the last Recalculate.
func (e *Engine) GetCellValue(sheet, cell string) (Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return Value{}, err
	}
	return e.store.Value(id, addr).Clone(), nil
}

// GetCellFormula provides a function to get the formula of a cell in the
// engine's notation, with the leading "=". It returns "" for cells without
// a formula.
func (e *Engine) GetCellFormula(sheet, cell string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return "", err
	}
	fc := e.graph.formulaAt(id, addr)
	if fc == nil {
		return "", nil
	}
	return SerializeFormula(fc.node, SerializeContext{Home: addr, Locale: e.opts.Locale, Mode: e.opts.RefMode}), nil
}

// Recalculate re-evaluates every dirty formula and every volatile one,
// in dependency order, until no spilled block moves. ctx is only checked
// before the work starts; a pass always runs to completion.
func (e *Engine) Recalculate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.recalculate()
}

func (e *Engine) recalculate() error {
	start := time.Now()
	g := e.graph
	g.markVolatile()
	evaluated, pass := 0, 0
	for {
		if _, err := g.CalcChain(); err != nil {
			e.log.Error("calculation chain has a cycle", "error", err)
			return err
		}
		order := g.dirtyInChainOrder()
		if len(order) == 0 {
			break
		}
		pass++
		changes := newScheduler(e, order).Run()
		g.clearDirty(order)
		evaluated += len(order)
		if len(changes) == 0 {
			break
		}
		e.applySpills(changes)
		if pass >= e.opts.MaxSpillPasses {
			if n := g.DirtyLen(); n > 0 {
				e.log.Warn("spill layout did not settle", "passes", pass, "pending", n)
				g.clearDirty(g.dirtyInChainOrder())
			}
			break
		}
	}
	e.log.Debug("recalculation finished", "passes", pass, "formulas", evaluated, "duration", time.Since(start))
	return nil
}

// rebind recollects the dependencies of every formula matching fn, after
// a change to names, tables, sheets or the external provider altered what
// its references resolve to. The matching formulas are marked dirty.
func (e *Engine) rebind(fn func(fc *formulaCell) bool) error {
	var cells []*formulaCell
	for _, fc := range e.graph.formulas {
		if fn(fc) {
			cells = append(cells, fc)
		}
	}
	slices.SortFunc(cells, func(a, b *formulaCell) int {
		if e.graph.arena.less(a.id, b.id) {
			return -1
		}
		return 1
	})
	for _, fc := range cells {
		deps := collectDeps(e.resolver, e.registry, fc.node, fc.sheet, fc.addr)
		if err := e.graph.SetFormula(fc, deps); err != nil {
			return err
		}
		e.graph.MarkDirty(fc.sheet, fc.addr)
	}
	return nil
}

// Precedents returns the cells and ranges the formula of a cell reads,
// with defined names expanded. Cells without a formula have none.
func (e *Engine) Precedents(sheet, cell string) ([]Ref, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return nil, err
	}
	fc := e.graph.formulaAt(id, addr)
	if fc == nil {
		return nil, nil
	}
	var out []Ref
	add := func(r Ref) {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	deps := collectDeps(e.resolver, e.registry, fc.node, id, addr)
	for _, c := range deps.cells {
		add(Ref{Sheet: e.wb.sheetName(c.sheet), Range: c.addr.String()})
	}
	for _, a := range deps.areas {
		add(Ref{Sheet: e.wb.sheetName(a.Sheet), Range: a.String()})
	}
	WalkNodes(fc.node, func(n Node) bool {
		if _, ok := n.(*StructuredRefNode); ok || isRefNode(n) {
			ref, kind := e.resolver.Resolve(n, id, addr)
			if kind != ErrorNone {
				return true
			}
			for _, x := range ref.External {
				add(Ref{Workbook: x.Workbook, Sheet: x.Sheet, Range: Area{From: x.From, To: x.To}.String()})
			}
		}
		return true
	})
	return out, nil
}

// Dependents returns the formula cells that read a cell directly or
// through a range.
func (e *Engine) Dependents(sheet, cell string) ([]Ref, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return nil, err
	}
	var out []Ref
	for _, d := range e.graph.directDependents(id, addr) {
		s, a := e.graph.arena.key(d)
		out = append(out, Ref{Sheet: e.wb.sheetName(s), Range: a.String()})
	}
	return out, nil
}

// DefineName provides a function to define a workbook-scoped name.
func (e *Engine) DefineName(name, refersTo string) error {
	return e.SetDefinedName(&DefinedName{Name: name, RefersTo: refersTo})
}

// SetDefinedName provides a function to define or redefine a name. Every
// formula using the name is rebound; if the new definition would close a
// cycle the previous one is restored and a *CircularReferenceError is
// returned.
func (e *Engine) SetDefinedName(dn *DefinedName) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dn.Name == "" {
		return ErrDefinedNameEmpty
	}
	if !validDefinedName(dn.Name) {
		return ErrDefinedNameInvalid
	}
	scope := 0
	if dn.Scope != "" {
		id, ok := e.wb.sheetID(dn.Scope)
		if !ok {
			return ErrSheetNotExist{SheetName: dn.Scope}
		}
		scope = id
	}
	n, err := ParseFormula(dn.RefersTo, ParseContext{Home: CellAddr{Row: 1, Col: 1}, Locale: e.opts.Locale, Mode: e.opts.RefMode})
	if err != nil {
		return err
	}
	k := nameKey{scope: scope, name: strings.ToUpper(dn.Name)}
	prev, had := e.wb.names[k]
	e.wb.names[k] = &definedName{name: dn.Name, scope: scope, refersTo: dn.RefersTo, node: n, key: NodeKey(n)}
	uses := func(fc *formulaCell) bool { return inStrSlice(fc.names, dn.Name) >= 0 }
	if err := e.rebind(uses); err != nil {
		if had {
			e.wb.names[k] = prev
		} else {
			delete(e.wb.names, k)
		}
		if restoreErr := e.rebind(uses); restoreErr != nil {
			e.log.Error("restoring name bindings failed", "name", dn.Name, "error", restoreErr)
		}
		return err
	}
	return nil
}

// DeleteDefinedName provides a function to remove a defined name.
// Formulas using it evaluate to #NAME?.
func (e *Engine) DeleteDefinedName(dn *DefinedName) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	scope := 0
	if dn.Scope != "" {
		id, ok := e.wb.sheetID(dn.Scope)
		if !ok {
			return ErrSheetNotExist{SheetName: dn.Scope}
		}
		scope = id
	}
	k := nameKey{scope: scope, name: strings.ToUpper(dn.Name)}
	if _, ok := e.wb.names[k]; !ok {
		return ErrNameNotExist{Name: dn.Name}
	}
	delete(e.wb.names, k)
	return e.rebind(func(fc *formulaCell) bool { return inStrSlice(fc.names, dn.Name) >= 0 })
}

// GetDefinedName provides a function to list the defined names, workbook
// scope first.
func (e *Engine) GetDefinedName() []DefinedName {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]DefinedName, 0, len(e.wb.names))
	for _, dn := range e.wb.names {
		item := DefinedName{Name: dn.name, RefersTo: dn.refersTo}
		if dn.scope != 0 {
			item.Scope = e.wb.sheetName(dn.scope)
		}
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b DefinedName) int {
		if c := strings.Compare(a.Scope, b.Scope); c != 0 {
			return c
		}
		return strings.Compare(strings.ToUpper(a.Name), strings.ToUpper(b.Name))
	})
	return out
}

// AddSheet provides a function to append a worksheet. Formulas that
// referred to the name are rebound.
func (e *Engine) AddSheet(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.wb.addSheet(name); err != nil {
		return err
	}
	return e.rebind(func(fc *formulaCell) bool { return len(fc.sheets) > 0 })
}

// DeleteSheet provides a function to delete a worksheet with its cells,
// sheet-scoped names and tables. Formulas elsewhere that referred to it
// evaluate to #REF!.
func (e *Engine) DeleteSheet(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.wb.sheetID(name)
	if !ok {
		return ErrSheetNotExist{SheetName: name}
	}
	var doomed []*formulaCell
	for _, fc := range e.graph.formulas {
		if fc.sheet == id {
			doomed = append(doomed, fc)
		}
	}
	for _, fc := range doomed {
		e.dropFormula(fc.sheet, fc.addr)
	}
	if _, err := e.wb.deleteSheet(name); err != nil {
		return err
	}
	for addr := range e.store.Cells(id) {
		e.graph.MarkDirty(id, addr)
	}
	e.store.ClearSheet(id)
	e.ranges.Clear()
	return e.rebind(func(fc *formulaCell) bool {
		return len(fc.sheets) > 0 || len(fc.names) > 0 || len(fc.tables) > 0
	})
}

// GetSheetList provides a function to get the worksheet names in tab
// order.
func (e *Engine) GetSheetList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wb.sheetList()
}

// AddTable provides a function to add a table over a range of a sheet.
// When Columns is empty the header row names the columns; blank header
// cells become Column1, Column2 and so on.
func (e *Engine) AddTable(sheet string, table *Table) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.wb.sheetID(sheet)
	if !ok {
		return ErrSheetNotExist{SheetName: sheet}
	}
	if !validDefinedName(table.Name) {
		return ErrDefinedNameInvalid
	}
	if e.wb.table(table.Name) != nil || e.wb.lookupName(table.Name, 0) != nil {
		return ErrTableExists{Name: table.Name}
	}
	area, err := parseAreaRef(id, table.Range)
	if err != nil {
		return err
	}
	header := table.ShowHeaderRow == nil || *table.ShowHeaderRow
	columns := slices.Clone(table.Columns)
	if len(columns) == 0 {
		for c := area.From.Col; c <= area.To.Col; c++ {
			label := ""
			if header {
				label = e.store.Value(id, CellAddr{Row: area.From.Row, Col: c}).ToText().Text
			}
			if label == "" {
				label = fmt.Sprintf("Column%d", c-area.From.Col+1)
			}
			columns = append(columns, label)
		}
	}
	if len(columns) != area.Cols() {
		return ErrTableRange
	}
	e.wb.tables[strings.ToUpper(table.Name)] = &tableEntry{
		name: table.Name, sheet: id, area: area, columns: columns,
		header: header, totals: table.ShowTotalsRow,
	}
	return e.rebind(func(fc *formulaCell) bool {
		return inStrSlice(fc.tables, table.Name) >= 0 || inStrSlice(fc.names, table.Name) >= 0 || area.Contains(fc.sheet, fc.addr)
	})
}

// SetExternalProvider provides a function to attach the source of values
// for references to other workbooks. Formulas with external references
// are rebound and recalculated on the next Recalculate.
func (e *Engine) SetExternalProvider(p ExternalValueProvider) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.Provider = p
	e.resolver.provider = p
	return e.rebind(func(fc *formulaCell) bool { return fc.external })
}

// RefreshExternal marks every formula with an external reference dirty,
// for hosts whose linked workbooks changed.
func (e *Engine) RefreshExternal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, fc := range e.graph.formulas {
		if fc.external {
			e.graph.MarkDirty(fc.sheet, fc.addr)
		}
	}
}

// EvalFormula provides a function to evaluate formula text as if it were
// written in a cell, without storing it. References see the values of the
// last Recalculate.
func (e *Engine) EvalFormula(sheet, cell, formula string) (Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, addr, err := e.locate(sheet, cell)
	if err != nil {
		return Value{}, err
	}
	n, err := ParseFormula(formula, ParseContext{Home: addr, Locale: e.opts.Locale, Mode: e.opts.RefMode})
	if err != nil {
		return Value{}, err
	}
	return e.evaluate(id, addr, "", n), nil
}

// PendingCount returns the number of formulas waiting for the next
// Recalculate.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.DirtyLen()
}
