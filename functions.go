// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agext/levenshtein"
)

// ArgType describes how the dispatcher prepares one argument before the
// handler sees it.
type ArgType uint8

// Argument types.
const (
	// ArgAny is a scalar of any type. Error values propagate.
	ArgAny ArgType = iota
	// ArgNumber is a scalar coerced to a number.
	ArgNumber
	// ArgText is a scalar coerced to text.
	ArgText
	// ArgBool is a scalar coerced to a logical value.
	ArgBool
	// ArgErrorOK is a scalar handed over as is, errors included.
	ArgErrorOK
	// ArgArray is a reference or an array, read with CallContext.Grid. A
	// scalar error propagates.
	ArgArray
	// ArgRef must be a reference.
	ArgRef
	// ArgRaw is handed over untouched.
	ArgRaw
)

// ReturnType documents what a function produces.
type ReturnType uint8

// Return types.
const (
	ReturnAny ReturnType = iota
	ReturnNumber
	ReturnText
	ReturnBool
	ReturnArray
	ReturnRef
)

// Arg is one evaluated function argument: a value, a reference, or a
// placeholder for an omitted argument.
type Arg struct {
	Value   Value
	Ref     *Reference
	Missing bool
}

func valueArg(v Value) Arg { return Arg{Value: v} }

func refArg(ref Reference) Arg { return Arg{Ref: &ref} }

// FunctionDescriptor declares a worksheet function. MaxArgs of -1 means
// variadic; arguments past ArgTypes cycle through its last Repeat entries.
// Exactly one of Handler, RefHandler and Lazy is set. ThreadSafe must be
// true for the function to run on the parallel workers; host functions
// default to the serial worker.
type FunctionDescriptor struct {
	Name           string
	MinArgs        int
	MaxArgs        int
	ArgTypes       []ArgType
	Repeat         int
	Returns        ReturnType
	Volatile       bool
	ThreadSafe     bool
	SupportsArrays bool
	Handler        func(ctx *CallContext, args []Arg) Value
	RefHandler     func(ctx *CallContext, args []Arg) Arg
	Lazy           func(ctx *CallContext, args []Thunk) Arg
}

func (fd *FunctionDescriptor) argType(i int) ArgType {
	n := len(fd.ArgTypes)
	if n == 0 {
		return ArgAny
	}
	if i < n {
		return fd.ArgTypes[i]
	}
	rep := min(max(fd.Repeat, 1), n)
	return fd.ArgTypes[n-rep+(i-n)%rep]
}

func (fd *FunctionDescriptor) validate() error {
	if fd.Name == "" || (fd.Handler == nil && fd.RefHandler == nil && fd.Lazy == nil) {
		return ErrFunctionName
	}
	for _, r := range fd.Name {
		if !(r == '.' || r == '_' || (r >= '0' && r <= '9') || isLetterRune(r)) {
			return ErrFunctionName
		}
	}
	if fd.MinArgs < 0 || (fd.MaxArgs >= 0 && fd.MaxArgs < fd.MinArgs) || fd.MaxArgs < -1 {
		return ErrFunctionArity
	}
	return nil
}

// builtinFunctions is the immutable built-in table, built once from the
// per-category lists.
var builtinFunctions = sync.OnceValue(func() map[string]*FunctionDescriptor {
	out := make(map[string]*FunctionDescriptor)
	for _, group := range [][]FunctionDescriptor{
		mathFunctions, statFunctions, logicalFunctions, textFunctions,
		lookupFunctions, dateFunctions, infoFunctions,
	} {
		for i := range group {
			fd := group[i]
			fd.ThreadSafe = true
			out[fd.Name] = &fd
		}
	}
	for i := range serialFunctions {
		fd := serialFunctions[i]
		out[fd.Name] = &fd
	}
	return out
})

// FunctionRegistry maps function names to descriptors. Each engine owns
// one, seeded with the built-ins, so host functions stay with the workbook
// that registered them.
type FunctionRegistry struct {
	mu      sync.RWMutex
	funcs   map[string]*FunctionDescriptor
	builtin map[string]struct{}
}

// NewFunctionRegistry returns a registry holding the built-in functions.
func NewFunctionRegistry() *FunctionRegistry {
	src := builtinFunctions()
	r := &FunctionRegistry{
		funcs:   make(map[string]*FunctionDescriptor, len(src)),
		builtin: make(map[string]struct{}, len(src)),
	}
	for name, fd := range src {
		r.funcs[name] = fd
		r.builtin[name] = struct{}{}
	}
	return r
}

// Lookup returns the descriptor of a function, or nil.
func (r *FunctionRegistry) Lookup(name string) *FunctionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.funcs[strings.ToUpper(name)]
}

// Register adds a host function. Built-in functions cannot be replaced;
// an earlier host function of the same name can.
func (r *FunctionRegistry) Register(fd FunctionDescriptor) error {
	fd.Name = strings.ToUpper(fd.Name)
	if err := fd.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builtin[fd.Name]; ok {
		return ErrFunctionExists{Name: fd.Name}
	}
	r.funcs[fd.Name] = &fd
	return nil
}

// Names returns the registered function names in order.
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Suggest returns the closest known function name to an unknown one, or
// "" when nothing is close.
func (r *FunctionRegistry) Suggest(name string) string {
	name = strings.ToUpper(name)
	best, bestDist := "", 3
	for _, candidate := range r.Names() {
		if d := levenshtein.Distance(name, candidate, nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// Clock supplies the current time to NOW and TODAY.
type Clock interface {
	Now() time.Time
}

// RandSource supplies uniform numbers in [0, 1) to RAND and RANDBETWEEN.
// It must be safe for concurrent use.
type RandSource interface {
	Float64() float64
}

// Grid is a rectangular view over a reference or an array. Reads past the
// stored data return blank values.
type Grid interface {
	// Dims returns the logical shape.
	Dims() (rows, cols int)
	// At returns the value at a 0-based position.
	At(r, c int) Value
	// Extent returns the part of the shape that can hold data; iteration
	// beyond it only sees blanks.
	Extent() (rows, cols int)
}

// denseGrid serves both arrays and materialised references.
type denseGrid struct {
	rows, cols int
	data       [][]Value
}

func (g *denseGrid) Dims() (int, int) { return g.rows, g.cols }

func (g *denseGrid) At(r, c int) Value {
	if r < 0 || c < 0 || r >= len(g.data) || c >= len(g.data[r]) {
		return EmptyValue()
	}
	return g.data[r][c]
}

func (g *denseGrid) Extent() (int, int) {
	if len(g.data) == 0 {
		return 0, 0
	}
	return len(g.data), len(g.data[0])
}

func valueGrid(v Value) *denseGrid {
	if v.Type == ValueArray {
		rows, cols := v.Dims()
		return &denseGrid{rows: rows, cols: cols, data: v.Array}
	}
	return &denseGrid{rows: 1, cols: 1, data: [][]Value{{v}}}
}

// each visits the cells of a grid inside its extent in row-major order.
func each(g Grid, fn func(r, c int, v Value) bool) {
	rows, cols := g.Extent()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !fn(r, c, g.At(r, c)) {
				return
			}
		}
	}
}

// gridValue turns a grid into an array value of its full shape, capped at
// the extent for whole-row and whole-column grids.
func gridValue(g Grid) Value {
	rows, cols := g.Dims()
	er, ec := g.Extent()
	if rows > er && rows > 1 {
		rows = max(er, 1)
	}
	if cols > ec && cols > 1 {
		cols = max(ec, 1)
	}
	return newMatrix(rows, cols, func(r, c int) Value { return g.At(r, c) })
}

// CallContext is what a handler sees of the engine: the calling cell,
// reference dereferencing, the clock and the random source.
type CallContext struct {
	vm *vm
	fn *FunctionDescriptor
}

// Sheet returns the name of the calling cell's sheet.
func (c *CallContext) Sheet() string { return c.vm.e.wb.sheetName(c.vm.sheet) }

// Home returns the address of the calling cell.
func (c *CallContext) Home() CellAddr { return c.vm.home }

// Now returns the engine clock's time.
func (c *CallContext) Now() time.Time { return c.vm.e.opts.Clock.Now() }

// Rand returns a uniform random number in [0, 1).
func (c *CallContext) Rand() float64 { return c.vm.e.opts.Rand.Float64() }

// DynamicArrays reports whether array results spill.
func (c *CallContext) DynamicArrays() bool { return c.vm.e.opts.DynamicArrays }

// Value dereferences an argument to a value. With dynamic arrays a
// multi-cell reference becomes an array; otherwise it is intersected with
// the calling cell.
func (c *CallContext) Value(a Arg) Value {
	if a.Ref == nil {
		return a.Value
	}
	return c.vm.deref(*a.Ref)
}

// Scalar dereferences an argument and reduces it to a single value by
// implicit intersection.
func (c *CallContext) Scalar(a Arg) Value {
	if a.Ref == nil {
		return a.Value.scalar()
	}
	return c.vm.intersect(*a.Ref)
}

// Grid returns a view over a single-area reference or an array.
func (c *CallContext) Grid(a Arg) (Grid, ErrorKind) {
	if a.Ref == nil {
		if a.Value.Type == ValueError {
			return nil, a.Value.Err
		}
		return valueGrid(a.Value), ErrorNone
	}
	if !a.Ref.single() {
		return nil, ErrorVALUE
	}
	return c.vm.refGrid(*a.Ref), ErrorNone
}

// Grids returns one view per area of a reference, for functions that
// accept unions and 3-D spans.
func (c *CallContext) Grids(a Arg) []Grid {
	if a.Ref == nil {
		return []Grid{valueGrid(a.Value)}
	}
	out := make([]Grid, 0, len(a.Ref.Areas)+len(a.Ref.External))
	for _, area := range a.Ref.Areas {
		out = append(out, c.vm.refGrid(Reference{Areas: []Area{area}}))
	}
	for _, x := range a.Ref.External {
		out = append(out, c.vm.refGrid(Reference{External: []ExternalArea{x}}))
	}
	return out
}

// Thunk is an unevaluated argument of a short-circuit function.
type Thunk struct {
	vm      *vm
	prog    *program
	missing bool
}

// Missing reports whether the argument was omitted.
func (t Thunk) Missing() bool { return t.missing }

// Eval evaluates the argument, keeping references as references.
func (t Thunk) Eval() Arg {
	if t.missing {
		return Arg{Missing: true}
	}
	return t.vm.sub(t.prog)
}

// Value evaluates the argument and dereferences it.
func (t Thunk) Value() Value {
	a := t.Eval()
	if a.Ref != nil {
		return t.vm.deref(*a.Ref)
	}
	return a.Value
}

// scalarParam reports whether arguments of this type are lifted over
// arrays.
func scalarParam(t ArgType) bool {
	switch t {
	case ArgAny, ArgNumber, ArgText, ArgBool, ArgErrorOK:
		return true
	}
	return false
}

func coerceArg(t ArgType, v Value) Value {
	switch t {
	case ArgNumber:
		return v.ToNumber()
	case ArgText:
		return v.ToText()
	case ArgBool:
		return v.ToBool()
	}
	return v
}

// call checks arity, prepares arguments per their declared types, and
// lifts scalar functions element-wise over array arguments.
func (v *vm) call(fd *FunctionDescriptor, args []Arg) Arg {
	if len(args) < fd.MinArgs || (fd.MaxArgs >= 0 && len(args) > fd.MaxArgs) {
		return valueArg(NewErrorValue(ErrorVALUE, fd.Name+": wrong number of arguments"))
	}
	ctx := &CallContext{vm: v, fn: fd}
	rows, cols, lift := 0, 0, false
	for i := range args {
		t := fd.argType(i)
		a := &args[i]
		if a.Missing {
			continue
		}
		switch {
		case t == ArgRef:
			if a.Ref == nil {
				if a.Value.Type == ValueError {
					return valueArg(a.Value)
				}
				return valueArg(NewErrorValue(ErrorVALUE, fd.Name+": argument must be a reference"))
			}
		case t == ArgArray:
			if a.Ref == nil && a.Value.Type == ValueError {
				return valueArg(a.Value)
			}
		case scalarParam(t):
			if a.Ref != nil {
				if v.e.opts.DynamicArrays || fd.SupportsArrays {
					*a = valueArg(v.materialize(*a.Ref))
				} else {
					*a = valueArg(v.intersect(*a.Ref))
				}
			}
			if a.Value.Type == ValueArray {
				if fd.SupportsArrays {
					continue
				}
				r, c := a.Value.Dims()
				rows, cols, lift = max(rows, r), max(cols, c), true
			}
		}
	}
	if !lift {
		return v.invoke(ctx, fd, args)
	}
	return valueArg(newMatrix(rows, cols, func(r, c int) Value {
		el := make([]Arg, len(args))
		for i, a := range args {
			el[i] = a
			if !a.Missing && a.Ref == nil && scalarParam(fd.argType(i)) {
				el[i] = valueArg(a.Value.at(r, c))
			}
		}
		res := v.invoke(ctx, fd, el)
		if res.Ref != nil {
			return v.intersect(*res.Ref)
		}
		return res.Value.scalar()
	}))
}

// invoke coerces scalar arguments and runs the handler. The first
// argument that fails coercion is the result.
func (v *vm) invoke(ctx *CallContext, fd *FunctionDescriptor, args []Arg) Arg {
	for i := range args {
		t := fd.argType(i)
		if args[i].Missing || args[i].Ref != nil || !scalarParam(t) || args[i].Value.Type == ValueArray {
			continue
		}
		cv := coerceArg(t, args[i].Value)
		if cv.Type == ValueError && t != ArgErrorOK {
			return valueArg(cv)
		}
		args[i].Value = cv
	}
	if fd.RefHandler != nil {
		return fd.RefHandler(ctx, args)
	}
	return valueArg(fd.Handler(ctx, args))
}
