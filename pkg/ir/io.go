package ir

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Write renders insts as textual IR, one line per instruction: "v<idx> <op>
// <args...>", matching the format Read accepts for every shape except Load:
// Load lines ("v<idx> load <vars> <loc>") are written, but Read has no
// "load" opcode and rejects them as unknown. It's the format the `ir` and
// `memoize` CLI subcommands print.
func Write(w io.Writer, insts []Inst) error {
	for idx, inst := range insts {
		var err error
		switch inst.Shape {
		case ShapeConst:
			_, err = fmt.Fprintf(w, "v%d const %v\n", idx, inst.Value)
		case ShapeVar:
			_, err = fmt.Fprintf(w, "v%d var-%c\n", idx, inst.Var.Name())
		case ShapeUnOp:
			_, err = fmt.Fprintf(w, "v%d %s v%d\n", idx, inst.Op.Name(), inst.Arg.Idx())
		case ShapeBinOp:
			_, err = fmt.Fprintf(w, "v%d %s v%d v%d\n", idx, inst.BinOp.Name(), inst.Args[0].Idx(), inst.Args[1].Idx())
		case ShapeLoad:
			_, err = fmt.Fprintf(w, "v%d load %s %d\n", idx, inst.Vars, inst.Loc)
		}
		if err != nil {
			return fmt.Errorf("ir: write: %w", err)
		}
	}
	return nil
}

// WriteMemoized renders a split program: the shared consts table, then each
// non-empty MemoizedFunc's instructions followed by a comment line per
// output slot naming which instruction feeds it.
func WriteMemoized(w io.Writer, m *Memoized) error {
	if _, err := fmt.Fprintf(w, "# consts: %d\n", len(m.Consts)); err != nil {
		return fmt.Errorf("ir: write_memoized: %w", err)
	}
	for idx, v := range m.Consts {
		if _, err := fmt.Fprintf(w, "v%d const %v\n", idx, v); err != nil {
			return fmt.Errorf("ir: write_memoized: %w", err)
		}
	}

	for _, fn := range m.Funcs {
		if fn == nil || len(fn.Insts) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n# func %s: %d outputs\n", fn.Vars, len(fn.Outputs)); err != nil {
			return fmt.Errorf("ir: write_memoized: %w", err)
		}
		if err := Write(w, fn.Insts); err != nil {
			return err
		}
		for loc, reg := range fn.Outputs {
			if _, err := fmt.Fprintf(w, "# store v%d %s:%d\n", reg.Idx(), fn.Vars, loc); err != nil {
				return fmt.Errorf("ir: write_memoized: %w", err)
			}
		}
	}
	return nil
}

// Parse errors Read can return, covering the failure modes
// the textual IR reader must reject.
var (
	// ErrEmptyInput is returned when the input has no instruction lines at
	// all (only blank lines and comments).
	ErrEmptyInput = errors.New("ir: empty input")
	// ErrMissingToken is returned when a line ends before all of an
	// instruction's required tokens are present.
	ErrMissingToken = errors.New("ir: missing token")
)

// ExtraTokenError is returned when a line has trailing tokens past what its
// opcode consumes.
type ExtraTokenError struct{ Token string }

func (e *ExtraTokenError) Error() string {
	return fmt.Sprintf("ir: unexpected token %q", e.Token)
}

// UndefinedNameError is returned when an argument references a name no
// earlier line defined.
type UndefinedNameError struct{ Name string }

func (e *UndefinedNameError) Error() string {
	return fmt.Sprintf("ir: argument uses undefined name %q", e.Name)
}

// RedefinedNameError is returned when a line's output name was already
// defined by an earlier line.
type RedefinedNameError struct{ Name string }

func (e *RedefinedNameError) Error() string {
	return fmt.Sprintf("ir: instruction redefines existing name %q", e.Name)
}

// UnknownOpError is returned when a line's opcode token isn't one Read
// recognizes.
type UnknownOpError struct{ Op string }

func (e *UnknownOpError) Error() string {
	return fmt.Sprintf("ir: unknown instruction %q", e.Op)
}

// Read parses textual IR from r, pushing each instruction into sink in
// order, and returns the index sink assigned the last line's output — the
// same value Finish is called with. Lines are whitespace-separated tokens;
// '#' starts a line comment extending to end of line; blank/comment-only
// lines are skipped.
func Read[I any](r io.Reader, sink InstSink[I]) (I, error) {
	var zero I
	names := make(map[string]I)
	have := false
	var last I

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		var tokens []string
		for _, f := range fields {
			if strings.HasPrefix(f, "#") {
				break
			}
			tokens = append(tokens, f)
		}
		if len(tokens) == 0 {
			continue
		}

		t := &tokenStream[I]{names: names, tokens: tokens}
		out, err := t.next()
		if err != nil {
			return zero, err
		}

		op, err := t.next()
		if err != nil {
			return zero, err
		}

		var idx I
		switch op {
		case "const":
			lit, err := t.next()
			if err != nil {
				return zero, err
			}
			v, err := strconv.ParseFloat(lit, 32)
			if err != nil {
				return zero, fmt.Errorf("ir: invalid constant %q: %w", lit, err)
			}
			idx = sink.PushConst(NewConst(float32(v)))
		case "var-x":
			idx = sink.PushVar(X)
		case "var-y":
			idx = sink.PushVar(Y)
		case "var-z":
			idx = sink.PushVar(Z)
		case "neg":
			idx, err = t.unop(Neg, sink)
		case "square":
			idx, err = t.unop(Square, sink)
		case "sqrt":
			idx, err = t.unop(Sqrt, sink)
		case "add":
			idx, err = t.binop(Add, sink)
		case "sub":
			idx, err = t.binop(Sub, sink)
		case "mul":
			idx, err = t.binop(Mul, sink)
		case "min":
			idx, err = t.binop(Min, sink)
		case "max":
			idx, err = t.binop(Max, sink)
		default:
			return zero, &UnknownOpError{Op: op}
		}
		if err != nil {
			return zero, err
		}

		if _, err := t.empty(); err != nil {
			return zero, err
		}

		if _, exists := names[out]; exists {
			return zero, &RedefinedNameError{Name: out}
		}
		names[out] = idx
		last, have = idx, true
	}
	if err := scanner.Err(); err != nil {
		return zero, fmt.Errorf("ir: read: %w", err)
	}
	if !have {
		return zero, ErrEmptyInput
	}
	sink.Finish(last)
	return last, nil
}

type tokenStream[I any] struct {
	names map[string]I
	tokens []string
	pos    int
}

func (t *tokenStream[I]) next() (string, error) {
	if t.pos >= len(t.tokens) {
		return "", ErrMissingToken
	}
	tok := t.tokens[t.pos]
	t.pos++
	return tok, nil
}

func (t *tokenStream[I]) arg() (I, error) {
	var zero I
	name, err := t.next()
	if err != nil {
		return zero, err
	}
	idx, ok := t.names[name]
	if !ok {
		return zero, &UndefinedNameError{Name: name}
	}
	return idx, nil
}

func (t *tokenStream[I]) unop(op UnOp, sink InstSink[I]) (I, error) {
	arg, err := t.arg()
	if err != nil {
		var zero I
		return zero, err
	}
	return sink.PushUnOp(op, arg), nil
}

func (t *tokenStream[I]) binop(op BinOp, sink InstSink[I]) (I, error) {
	var zero I
	a, err := t.arg()
	if err != nil {
		return zero, err
	}
	b, err := t.arg()
	if err != nil {
		return zero, err
	}
	return sink.PushBinOp(op, [2]I{a, b}), nil
}

func (t *tokenStream[I]) empty() (bool, error) {
	if t.pos < len(t.tokens) {
		return false, &ExtraTokenError{Token: t.tokens[t.pos]}
	}
	return true, nil
}
