// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

type opcode uint8

const (
	opValue opcode = iota
	opRef
	opName
	opUnary
	opBinary
	opCall
	opLazy
	opMissing
)

// instr is one step of a compiled formula. Operands are taken from and
// results pushed to the VM stack.
type instr struct {
	op   opcode
	val  Value
	node Node
	text string
	argc int
	fn   *FunctionDescriptor
	subs []*program
}

// program is a formula tree lowered to reverse Polish order. Arguments of
// short-circuit functions stay separate sub-programs so they are only run
// on demand. Programs are immutable and shared by every cell holding the
// same tree.
type program struct {
	code []instr
	// calls holds the names of the functions the program calls; unknown
	// is set when one of them was not registered at compile time.
	calls   map[string]struct{}
	unknown bool
}

// dependsOnFunction reports whether registering name can change the
// program.
func (p *program) dependsOnFunction(name string) bool {
	_, ok := p.calls[name]
	return ok || p.unknown
}

// compiler lowers trees against one function registry. Descriptors are
// bound at compile time; registering a function evicts the programs that
// depend on it.
type compiler struct {
	registry *FunctionRegistry
	code     []instr
	calls    map[string]struct{}
	unknown  bool
}

func compileProgram(registry *FunctionRegistry, n Node) *program {
	c := &compiler{registry: registry, calls: make(map[string]struct{})}
	c.emitNode(n)
	return &program{code: c.code, calls: c.calls, unknown: c.unknown}
}

func (c *compiler) emit(in instr) { c.code = append(c.code, in) }

func (c *compiler) emitNode(n Node) {
	switch t := n.(type) {
	case *NumberNode:
		c.emit(instr{op: opValue, val: NewNumberValue(t.Value)})
	case *StringNode:
		c.emit(instr{op: opValue, val: NewStringValue(t.Value)})
	case *BoolNode:
		c.emit(instr{op: opValue, val: NewBoolValue(t.Value)})
	case *ErrorNode:
		c.emit(instr{op: opValue, val: NewErrorValue(t.Kind)})
	case *CellRefNode, *RangeRefNode, *StructuredRefNode:
		c.emit(instr{op: opRef, node: n})
	case *NameNode:
		c.emit(instr{op: opName, node: n})
	case *ParenNode:
		c.emitNode(t.Inner)
	case *UnaryNode:
		c.emitNode(t.Operand)
		c.emit(instr{op: opUnary, text: t.Op})
	case *BinaryNode:
		c.emitNode(t.Left)
		c.emitNode(t.Right)
		c.emit(instr{op: opBinary, text: t.Op})
	case *ArrayNode:
		c.emit(instr{op: opValue, val: arrayConstant(t)})
	case *MissingArgNode:
		c.emit(instr{op: opMissing})
	case *FunctionNode:
		c.emitCall(t)
	default:
		c.emit(instr{op: opValue, val: NewErrorValue(ErrorVALUE)})
	}
}

func (c *compiler) emitCall(t *FunctionNode) {
	fd := c.registry.Lookup(t.Name)
	c.calls[t.Name] = struct{}{}
	if fd == nil {
		c.unknown = true
		msg := "unknown function " + t.Spelling
		if hint := c.registry.Suggest(t.Name); hint != "" {
			msg += ", did you mean " + hint + "?"
		}
		c.emit(instr{op: opValue, val: NewErrorValue(ErrorNAME, msg)})
		return
	}
	if fd.Lazy != nil {
		subs := make([]*program, len(t.Args))
		for i, arg := range t.Args {
			if _, missing := arg.(*MissingArgNode); missing {
				continue
			}
			subs[i] = compileProgram(c.registry, arg)
			for name := range subs[i].calls {
				c.calls[name] = struct{}{}
			}
			c.unknown = c.unknown || subs[i].unknown
		}
		c.emit(instr{op: opLazy, fn: fd, subs: subs, argc: len(t.Args), text: t.Name})
		return
	}
	for _, arg := range t.Args {
		c.emitNode(arg)
	}
	c.emit(instr{op: opCall, fn: fd, argc: len(t.Args), text: t.Name})
}

// arrayConstant evaluates an array literal at compile time.
func arrayConstant(t *ArrayNode) Value {
	rows := make([][]Value, len(t.Rows))
	for r, row := range t.Rows {
		rows[r] = make([]Value, len(row))
		for col, el := range row {
			rows[r][col] = literalValue(el)
		}
	}
	return NewArrayValue(rows)
}

func literalValue(n Node) Value {
	switch t := n.(type) {
	case *NumberNode:
		return NewNumberValue(t.Value)
	case *StringNode:
		return NewStringValue(t.Value)
	case *BoolNode:
		return NewBoolValue(t.Value)
	case *ErrorNode:
		return NewErrorValue(t.Kind)
	case *ParenNode:
		return literalValue(t.Inner)
	case *UnaryNode:
		v := literalValue(t.Operand).ToNumber()
		if v.Type != ValueNumber {
			return v
		}
		switch t.Op {
		case "-":
			return NewNumberValue(-v.Number)
		case "%":
			return NewNumberValue(v.Number / 100)
		}
		return v
	case *MissingArgNode:
		return EmptyValue()
	}
	return NewErrorValue(ErrorVALUE)
}

// program returns the compiled form of a tree from the cache. key is the
// tree's NodeKey, or "" to compute it.
func (e *Engine) program(key string, n Node) *program {
	if key == "" {
		key = NodeKey(n)
	}
	return e.programs.LoadOrStore(key, func() *program {
		return compileProgram(e.registry, n)
	})
}
