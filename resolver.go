// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"slices"
	"strings"
)

// ExternalValueProvider supplies values and sheet topology for other
// workbooks. The engine only ever calls it; it never owns it.
//
// Get returns the value of a cell of an external sheet, addressed by a
// sheet key of the form "[Book.xlsx]Sheet1". A false result is a broken
// link. SheetOrder lists the sheets of a workbook in tab order, for 3-D
// spans. WorkbookTable locates a table of another workbook.
type ExternalValueProvider interface {
	Get(sheetKey string, addr CellAddr) (Value, bool)
	SheetOrder(workbook string) ([]string, bool)
	WorkbookTable(workbook, table string) (string, TableMetadata, bool)
}

// ExternalExtent is implemented by providers that know how far a sheet's
// data extends, so whole-column references need not read every row.
type ExternalExtent interface {
	Extent(sheetKey string) (rows, cols int, ok bool)
}

// ExternalArea is a block of cells in another workbook.
type ExternalArea struct {
	Workbook string
	Sheet    string
	From     CellAddr
	To       CellAddr
}

// SheetKey returns the provider key of the area's sheet.
func (x ExternalArea) SheetKey() string { return externalSheetKey(x.Workbook, x.Sheet) }

func externalSheetKey(workbook, sheet string) string { return "[" + workbook + "]" + sheet }

// Rows returns the number of rows the area spans.
func (x ExternalArea) Rows() int { return x.To.Row - x.From.Row + 1 }

// Cols returns the number of columns the area spans.
func (x ExternalArea) Cols() int { return x.To.Col - x.From.Col + 1 }

// Reference is a resolved reference: one or more local areas (several for
// unions and 3-D spans) and any external areas.
type Reference struct {
	Areas    []Area
	External []ExternalArea
}

// single reports whether the reference is exactly one area.
func (r Reference) single() bool { return len(r.Areas)+len(r.External) == 1 }

// isCell reports whether the reference is exactly one cell.
func (r Reference) isCell() bool {
	if !r.single() {
		return false
	}
	if len(r.Areas) == 1 {
		return r.Areas[0].Size() == 1
	}
	return r.External[0].Rows() == 1 && r.External[0].Cols() == 1
}

// dims returns the shape of a single-area reference.
func (r Reference) dims() (int, int) {
	if len(r.Areas) == 1 {
		return r.Areas[0].Rows(), r.Areas[0].Cols()
	}
	if len(r.External) == 1 {
		return r.External[0].Rows(), r.External[0].Cols()
	}
	return 0, 0
}

// Resolver turns reference nodes into concrete areas against the workbook
// index and the external provider. Failures are error kinds, never Go
// errors, since topology may change after a formula is written.
type Resolver struct {
	wb       *workbook
	provider ExternalValueProvider
}

// sheets resolves a prefix into local sheet ids or external sheet names.
func (r *Resolver) sheets(p *SheetPrefix, sheet int) ([]int, []string, ErrorKind) {
	if p == nil {
		return []int{sheet}, nil, ErrorNone
	}
	if p.Workbook == "" {
		if p.SheetEnd == "" {
			id, ok := r.wb.sheetID(p.Sheet)
			if !ok {
				return nil, nil, ErrorREF
			}
			return []int{id}, nil, ErrorNone
		}
		ids, ok := r.wb.sheetSpan(p.Sheet, p.SheetEnd)
		if !ok {
			return nil, nil, ErrorREF
		}
		return ids, nil, ErrorNone
	}
	if r.provider == nil {
		return nil, nil, ErrorREF
	}
	if p.SheetEnd == "" {
		return nil, []string{p.Sheet}, ErrorNone
	}
	order, ok := r.provider.SheetOrder(p.Workbook)
	if !ok {
		return nil, nil, ErrorREF
	}
	a, b := inStrSlice(order, p.Sheet), inStrSlice(order, p.SheetEnd)
	if a < 0 || b < 0 {
		return nil, nil, ErrorREF
	}
	if a > b {
		a, b = b, a
	}
	return nil, slices.Clone(order[a : b+1]), ErrorNone
}

// externalResolved reports whether a workbook can be reached through the
// provider right now.
func (r *Resolver) externalResolved(workbook string) bool {
	if r.provider == nil {
		return false
	}
	_, ok := r.provider.SheetOrder(workbook)
	return ok
}

func (r *Resolver) build(p *SheetPrefix, sheet int, from, to CellAddr) (Reference, ErrorKind) {
	if !from.Valid() || !to.Valid() {
		return Reference{}, ErrorREF
	}
	ids, ext, kind := r.sheets(p, sheet)
	if kind != ErrorNone {
		return Reference{}, kind
	}
	var ref Reference
	for _, id := range ids {
		ref.Areas = append(ref.Areas, newArea(id, from, to))
	}
	for _, name := range ext {
		a := newArea(0, from, to)
		ref.External = append(ref.External, ExternalArea{Workbook: p.Workbook, Sheet: name, From: a.From, To: a.To})
	}
	return ref, ErrorNone
}

// Resolve resolves a reference node evaluated in the given cell. Names are
// not handled here; the evaluator expands them.
func (r *Resolver) Resolve(n Node, sheet int, home CellAddr) (Reference, ErrorKind) {
	switch t := n.(type) {
	case *CellRefNode:
		a := t.Ref.Addr(home)
		return r.build(t.Prefix, sheet, a, a)
	case *RangeRefNode:
		return r.build(t.Prefix, sheet, t.From.Addr(home), t.To.Addr(home))
	case *StructuredRefNode:
		return r.structured(t, sheet, home)
	case *ErrorNode:
		return Reference{}, t.Kind
	case *ParenNode:
		return r.Resolve(t.Inner, sheet, home)
	}
	return Reference{}, ErrorVALUE
}

// structured expands a table reference against the table's layout.
func (r *Resolver) structured(t *StructuredRefNode, sheet int, home CellAddr) (Reference, ErrorKind) {
	var (
		area    Area
		columns []string
		header  bool
		totals  bool
		extBook string
		extName string
	)
	switch {
	case t.Workbook != "" && r.wb.table(t.Table) == nil:
		if r.provider == nil {
			return Reference{}, ErrorREF
		}
		sheetName, meta, ok := r.provider.WorkbookTable(t.Workbook, t.Table)
		if !ok {
			return Reference{}, ErrorREF
		}
		a, err := parseAreaRef(0, meta.Range)
		if err != nil {
			return Reference{}, ErrorREF
		}
		area, columns, header, totals = a, meta.Columns, meta.HeaderRow, meta.TotalsRow
		extBook, extName = t.Workbook, sheetName
	default:
		var tbl *tableEntry
		if t.Table == "" {
			tbl = r.wb.tableAt(sheet, home)
		} else {
			tbl = r.wb.table(t.Table)
		}
		if tbl == nil {
			return Reference{}, ErrorREF
		}
		area, columns, header, totals = tbl.area, tbl.columns, tbl.header, tbl.totals
	}
	out, kind := tableSlice(area, columns, header, totals, t, home)
	if kind != ErrorNone {
		return Reference{}, kind
	}
	if extBook != "" {
		return Reference{External: []ExternalArea{{Workbook: extBook, Sheet: extName, From: out.From, To: out.To}}}, ErrorNone
	}
	return Reference{Areas: []Area{out}}, ErrorNone
}

// tableSlice narrows a table area to the rows named by the item
// specifiers and the columns named by the column specifiers.
func tableSlice(area Area, columns []string, header, totals bool, t *StructuredRefNode, home CellAddr) (Area, ErrorKind) {
	first, last := area.From.Row, area.To.Row
	dataFirst, dataLast := first, last
	if header {
		dataFirst++
	}
	if totals {
		dataLast--
	}
	items := t.Items
	if len(items) == 0 {
		items = []string{"#Data"}
	}
	rowFrom, rowTo := 0, -1
	extend := func(a, b int) {
		if a > b {
			return
		}
		if rowTo < rowFrom {
			rowFrom, rowTo = a, b
			return
		}
		rowFrom, rowTo = min(rowFrom, a), max(rowTo, b)
	}
	for _, item := range items {
		switch item {
		case "#All":
			extend(first, last)
		case "#Data":
			extend(dataFirst, dataLast)
		case "#Headers":
			if !header {
				return Area{}, ErrorREF
			}
			extend(first, first)
		case "#Totals":
			if !totals {
				return Area{}, ErrorREF
			}
			extend(last, last)
		case "#This Row":
			if home.Row < dataFirst || home.Row > dataLast {
				return Area{}, ErrorVALUE
			}
			extend(home.Row, home.Row)
		default:
			return Area{}, ErrorREF
		}
	}
	if rowTo < rowFrom {
		return Area{}, ErrorREF
	}
	colFrom, colTo := area.From.Col, area.To.Col
	if t.ColumnStart != "" {
		a := inStrSlice(columns, t.ColumnStart)
		if a < 0 {
			return Area{}, ErrorREF
		}
		b := a
		if t.ColumnEnd != "" {
			if b = inStrSlice(columns, t.ColumnEnd); b < 0 {
				return Area{}, ErrorREF
			}
		}
		if a > b {
			a, b = b, a
		}
		colFrom, colTo = area.From.Col+a, area.From.Col+b
	}
	return Area{Sheet: area.Sheet, From: CellAddr{Row: rowFrom, Col: colFrom}, To: CellAddr{Row: rowTo, Col: colTo}}, ErrorNone
}

// collector gathers what a formula reads for the dependency graph.
type collector struct {
	r        *Resolver
	registry *FunctionRegistry
	sheet    int
	home     CellAddr
	deps     formulaDeps
	visiting map[*definedName]struct{}
}

// collectDeps walks a formula tree and returns the cells and ranges it
// reads plus its volatility and threading flags.
func collectDeps(r *Resolver, registry *FunctionRegistry, n Node, sheet int, home CellAddr) formulaDeps {
	c := &collector{
		r:        r,
		registry: registry,
		sheet:    sheet,
		home:     home,
		visiting: make(map[*definedName]struct{}),
	}
	c.walk(n)
	return c.deps
}

func (c *collector) note(list *[]string, s string) {
	if s == "" || inStrSlice(*list, s) >= 0 {
		return
	}
	*list = append(*list, s)
}

func (c *collector) prefix(p *SheetPrefix) {
	if p == nil {
		return
	}
	if p.Workbook != "" {
		c.deps.external = true
		if !c.r.externalResolved(p.Workbook) {
			c.deps.volatile = true
		}
		return
	}
	c.note(&c.deps.sheets, p.Sheet)
	if p.SheetEnd != "" {
		c.note(&c.deps.sheets, p.SheetEnd)
	}
}

func (c *collector) addRef(ref Reference) {
	for _, a := range ref.Areas {
		if a.Size() == 1 {
			c.deps.cells = append(c.deps.cells, cellKey{sheet: a.Sheet, addr: a.From})
			continue
		}
		c.deps.areas = append(c.deps.areas, a)
	}
	if len(ref.External) > 0 {
		c.deps.external = true
	}
}

func isRefNode(n Node) bool {
	switch t := n.(type) {
	case *CellRefNode, *RangeRefNode:
		return true
	case *ParenNode:
		return isRefNode(t.Inner)
	}
	return false
}

func (c *collector) walk(root Node) {
	WalkNodes(root, func(n Node) bool {
		switch t := n.(type) {
		case *CellRefNode:
			c.prefix(t.Prefix)
			if ref, kind := c.r.Resolve(t, c.sheet, c.home); kind == ErrorNone {
				c.addRef(ref)
			}
		case *RangeRefNode:
			c.prefix(t.Prefix)
			if ref, kind := c.r.Resolve(t, c.sheet, c.home); kind == ErrorNone {
				c.addRef(ref)
			}
		case *StructuredRefNode:
			c.note(&c.deps.tables, t.Table)
			if t.Workbook != "" && !c.r.externalResolved(t.Workbook) {
				c.deps.volatile = true
			}
			if ref, kind := c.r.Resolve(t, c.sheet, c.home); kind == ErrorNone {
				c.addRef(ref)
			}
		case *NameNode:
			c.prefix(t.Prefix)
			c.note(&c.deps.names, t.Name)
			scope := c.sheet
			if t.Prefix != nil && t.Prefix.Workbook == "" {
				if id, ok := c.r.wb.sheetID(t.Prefix.Sheet); ok {
					scope = id
				}
			}
			if dn := c.r.wb.lookupName(t.Name, scope); dn != nil && dn.node != nil {
				if _, busy := c.visiting[dn]; !busy {
					c.visiting[dn] = struct{}{}
					c.walk(dn.node)
					delete(c.visiting, dn)
				}
			}
		case *FunctionNode:
			if fd := c.registry.Lookup(t.Name); fd != nil {
				if fd.Volatile {
					c.deps.volatile = true
				}
				if !fd.ThreadSafe {
					c.deps.serial = true
				}
			}
		case *BinaryNode:
			if t.Op == ":" && !(isRefNode(t.Left) && isRefNode(t.Right)) {
				c.deps.volatile = true
			}
			if t.Op == ":" && isRefNode(t.Left) && isRefNode(t.Right) {
				l, lk := c.r.Resolve(t.Left, c.sheet, c.home)
				r, rk := c.r.Resolve(t.Right, c.sheet, c.home)
				if lk == ErrorNone && rk == ErrorNone {
					if span, ok := boundingRef(l, r); ok {
						c.addRef(span)
					}
				}
			}
		case *UnaryNode:
			if t.Op == "#" {
				c.deps.volatile = c.deps.volatile || !isRefNode(t.Operand)
			}
		}
		return true
	})
}

// boundingRef joins two single-area references on the same sheet into the
// smallest area covering both, which is what the range operator yields.
func boundingRef(a, b Reference) (Reference, bool) {
	if len(a.Areas) == 1 && len(b.Areas) == 1 && len(a.External) == 0 && len(b.External) == 0 {
		x, y := a.Areas[0], b.Areas[0]
		if x.Sheet != y.Sheet {
			return Reference{}, false
		}
		return Reference{Areas: []Area{{
			Sheet: x.Sheet,
			From:  CellAddr{Row: min(x.From.Row, y.From.Row), Col: min(x.From.Col, y.From.Col)},
			To:    CellAddr{Row: max(x.To.Row, y.To.Row), Col: max(x.To.Col, y.To.Col)},
		}}}, true
	}
	if len(a.External) == 1 && len(b.External) == 1 && len(a.Areas) == 0 && len(b.Areas) == 0 {
		x, y := a.External[0], b.External[0]
		if x.Workbook != y.Workbook || !strings.EqualFold(x.Sheet, y.Sheet) {
			return Reference{}, false
		}
		x.From = CellAddr{Row: min(x.From.Row, y.From.Row), Col: min(x.From.Col, y.From.Col)}
		x.To = CellAddr{Row: max(x.To.Row, y.To.Row), Col: max(x.To.Col, y.To.Col)}
		return Reference{External: []ExternalArea{x}}, true
	}
	return Reference{}, false
}
