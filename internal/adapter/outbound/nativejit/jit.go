// Package nativejit stands in for the native code generator the original
// implementation built on Cranelift (original_source/crates/ipe-core/src/jit.rs).
// No Go library in this ecosystem offers ahead-of-time native codegen from a
// custom bytecode the way Cranelift does (see DESIGN.md), so this compiles a
// policy's instruction stream once into a flat slice of pre-bound Go
// closures — "threaded code" — and caches the result by policy name. Each
// closure already knows its own operands, so dispatch at execution time
// skips the interpreter's per-instruction opcode switch entirely, while
// still guaranteeing bit-for-bit agreement with internal/lang/vm.
package nativejit

import (
	"fmt"
	"sync"

	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

// execState is the mutable state threaded through one Execute call.
type execState struct {
	stack []bytecode.Value
	ctx   *evalctx.EvaluationContext
	pc    int
	ret   bool
	done  bool
	err   error
}

// maxStackSize mirrors internal/lang/vm.DefaultMaxStackSize. Duplicated
// rather than imported to keep the two execution backends decoupled, which
// is the point of the tiering.Executable interface.
const maxStackSize = 1024

func (s *execState) push(v bytecode.Value) {
	if len(s.stack) >= maxStackSize {
		s.err = ipeerr.New(ipeerr.KindEvaluation, "stack overflow")
		s.done = true
		return
	}
	s.stack = append(s.stack, v)
}

func (s *execState) pop() bytecode.Value {
	if len(s.stack) == 0 {
		s.err = ipeerr.New(ipeerr.KindEvaluation, "stack underflow")
		s.done = true
		return bytecode.Value{}
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// thunk is one compiled instruction: given the current execution state, it
// performs its effect and returns the next program counter.
type thunk func(s *execState) int

// Executable is a policy compiled to a flat slice of thunks.
type Executable struct {
	name   string
	thunks []thunk
}

// Execute runs the compiled thunks against ctx, starting at pc 0. Falling
// off the end without a Return denies by default, matching the
// interpreter's contract.
func (e *Executable) Execute(ctx *evalctx.EvaluationContext) (bool, error) {
	s := &execState{ctx: ctx}
	pc := 0
	for pc < len(e.thunks) && !s.done {
		s.pc = pc
		pc = e.thunks[pc](s)
	}
	if s.err != nil {
		return false, s.err
	}
	if !s.done {
		return false, nil
	}
	return s.ret, nil
}

// Compiler compiles CompiledPolicy instruction streams into Executables,
// caching the result by policy name so repeated Compile calls for the same
// name are free.
type Compiler struct {
	mu    sync.RWMutex
	cache map[string]*Executable
}

// New builds an empty Compiler.
func New() *Compiler {
	return &Compiler{cache: make(map[string]*Executable)}
}

// Compile satisfies tiering.JITCompiler.
func (c *Compiler) Compile(name string, cp *bytecode.CompiledPolicy) (tiering.Executable, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	thunks := make([]thunk, len(cp.Code))
	for i, instr := range cp.Code {
		th, err := compileInstruction(cp, instr)
		if err != nil {
			return nil, err
		}
		thunks[i] = th
	}

	exe := &Executable{name: name, thunks: thunks}

	c.mu.Lock()
	c.cache[name] = exe
	c.mu.Unlock()

	return exe, nil
}

func compileInstruction(cp *bytecode.CompiledPolicy, instr bytecode.Instruction) (thunk, error) {
	switch instr.Op {
	case bytecode.OpLoadField:
		field := instr.Field
		return func(s *execState) int {
			v, err := loadField(cp, field, s.ctx)
			if err != nil {
				s.err = err
				s.done = true
				return s.pc
			}
			s.push(v)
			return s.pc + 1
		}, nil

	case bytecode.OpLoadConst:
		idx := instr.Const
		return func(s *execState) int {
			if int(idx) >= len(cp.Constants) {
				s.err = ipeerr.New(ipeerr.KindEvaluation, "constant index out of range")
				s.done = true
				return s.pc
			}
			s.push(cp.Constants[idx])
			return s.pc + 1
		}, nil

	case bytecode.OpCompare:
		op := instr.Comp
		return func(s *execState) int {
			right := s.pop()
			if s.done {
				return s.pc
			}
			left := s.pop()
			if s.done {
				return s.pc
			}
			result, err := bytecode.Compare(left, right, op)
			if err != nil {
				s.err = ipeerr.Wrap(ipeerr.KindEvaluation, "compare failed", err)
				s.done = true
				return s.pc
			}
			s.push(bytecode.BoolVal(result))
			return s.pc + 1
		}, nil

	case bytecode.OpAnd:
		return func(s *execState) int {
			right := s.pop()
			left := s.pop()
			if s.done {
				return s.pc
			}
			s.push(bytecode.BoolVal(left.IsTruthy() && right.IsTruthy()))
			return s.pc + 1
		}, nil

	case bytecode.OpOr:
		return func(s *execState) int {
			right := s.pop()
			left := s.pop()
			if s.done {
				return s.pc
			}
			s.push(bytecode.BoolVal(left.IsTruthy() || right.IsTruthy()))
			return s.pc + 1
		}, nil

	case bytecode.OpNot:
		return func(s *execState) int {
			v := s.pop()
			if s.done {
				return s.pc
			}
			s.push(bytecode.BoolVal(!v.IsTruthy()))
			return s.pc + 1
		}, nil

	case bytecode.OpReturn:
		return func(s *execState) int {
			v := s.pop()
			if s.done {
				return s.pc
			}
			s.ret = v.IsTruthy()
			s.done = true
			return s.pc
		}, nil

	case bytecode.OpJump:
		target := int(instr.Target)
		return func(s *execState) int {
			return target
		}, nil

	case bytecode.OpJumpIfFalse:
		target := int(instr.Target)
		return func(s *execState) int {
			v := s.pop()
			if s.done {
				return s.pc
			}
			if !v.IsTruthy() {
				return target
			}
			return s.pc + 1
		}, nil

	case bytecode.OpCall:
		return func(s *execState) int {
			s.err = ipeerr.New(ipeerr.KindEvaluation, "call opcode is not supported")
			s.done = true
			return s.pc
		}, nil

	default:
		return nil, ipeerr.New(ipeerr.KindCompile, fmt.Sprintf("unknown opcode %v", instr.Op))
	}
}

func loadField(cp *bytecode.CompiledPolicy, offset uint16, ctx *evalctx.EvaluationContext) (bytecode.Value, error) {
	path, ok := cp.FieldMapping[offset]
	if !ok || len(path) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, fmt.Sprintf("unknown field offset %d", offset))
	}

	root := path[0]
	rest := path[1:]

	switch root {
	case "resource":
		if len(rest) == 0 {
			return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty resource path")
		}
		if rest[0] == "type" {
			return bytecode.Int64(ctx.Resource.TypeID), nil
		}
		return attrLookup(ctx.Resource.Attributes, rest[0])

	case "action":
		if len(rest) == 0 {
			return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty action path")
		}
		return attrLookup(ctx.Action.Attributes, rest[0])

	case "request":
		if len(rest) == 0 {
			return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty request path")
		}
		if rest[0] == "principal" {
			if len(rest) < 2 {
				return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty principal path")
			}
			if rest[1] == "id" {
				return bytecode.String(ctx.Request.Principal.ID), nil
			}
			return attrLookup(ctx.Request.Principal.Attributes, rest[1])
		}
		return attrLookup(ctx.Request.Metadata, rest[0])

	default:
		return attrLookup(ctx.Resource.Attributes, root)
	}
}

func attrLookup(attrs map[string]evalctx.AttributeValue, key string) (bytecode.Value, error) {
	v, ok := attrs[key]
	if !ok {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, fmt.Sprintf("missing field: %s", key))
	}
	return v.ToValue(), nil
}
