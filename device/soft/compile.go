package soft

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

var errBuildFailed = errors.New("soft: program build failed")

var (
	kernelDecl  = regexp.MustCompile(`(?:__kernel|kernel)\s+void\s+(\w+)\s*\(([^)]*)\)`)
	realOption  = regexp.MustCompile(`-D\s*REAL=(\w+)`)
	realDefine  = regexp.MustCompile(`(?m)^\s*#\s*define\s+REAL\s+(\w+)\s*$`)
	blockRemark = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineRemark  = regexp.MustCompile(`//[^\n]*`)
)

type paramKind uint8

const (
	paramScalar paramKind = iota
	paramGlobal
	paramLocal
)

type param struct {
	name     string
	typ      string
	kind     paramKind
	writable bool
	size     int
}

type kernelDef struct {
	name   string
	line   int
	params []param
	fn     Func
}

type program struct {
	ctx       *softContext
	precision string
	kernels   map[string]*kernelDef
	names     []string
	released  atomic.Bool
}

// compile parses kernel signatures out of OpenCL C source and binds each
// entry point to its registered Go implementation.
func compile(ctx *softContext, source, options string) (driver.Program, string, error) {
	var log buildLog

	text := stripComments(source)
	precision := detectPrecision(text, options, &log)

	if depth := braceBalance(text); depth != 0 {
		log.errorf(lineCount(text), "unbalanced braces (depth %d at end of input)", depth)
	}

	prog := &program{
		ctx:       ctx,
		precision: precision,
		kernels:   make(map[string]*kernelDef),
	}

	for _, m := range kernelDecl.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		line := lineOf(text, m[0])

		if prev, ok := prog.kernels[name]; ok {
			log.errorf(line, "redefinition of kernel %q (previous definition on line %d)", name, prev.line)
			continue
		}

		def := &kernelDef{name: name, line: line}

		params, ok := parseParams(text[m[4]:m[5]], precision, line, &log)
		if !ok {
			continue
		}

		def.params = params

		variants, found := lookup(name)
		if !found {
			log.errorf(line, "kernel %q has no implementation on this device", name)
			continue
		}

		def.fn = variants.pick(precision, usesReal(params))
		if def.fn == nil {
			log.errorf(line, "kernel %q has no %s implementation", name, precision)
			continue
		}

		prog.kernels[name] = def
		prog.names = append(prog.names, name)
	}

	if log.errors > 0 {
		return nil, log.String(), fmt.Errorf("%w: %d error(s)", errBuildFailed, log.errors)
	}

	sort.Strings(prog.names)

	return prog, log.String(), nil
}

func (p *program) NewKernel(name string) (driver.Kernel, error) {
	if p.released.Load() {
		return nil, driver.ErrReleased
	}

	def, ok := p.kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", driver.ErrKernelNotFound, name)
	}

	return &kernel{
		def:  def,
		prog: p,
		args: make([]boundArg, len(def.params)),
		set:  make([]bool, len(def.params)),
	}, nil
}

func (p *program) KernelNames() []string {
	return append([]string(nil), p.names...)
}

func (p *program) Release() error {
	if !p.released.CompareAndSwap(false, true) {
		return driver.ErrReleased
	}

	return nil
}

type boundArg struct {
	buf    *buffer
	scalar []byte
	local  int
}

type kernel struct {
	def  *kernelDef
	prog *program

	mu       sync.Mutex
	args     []boundArg
	set      []bool
	released atomic.Bool
}

func (k *kernel) Name() string {
	return k.def.name
}

func (k *kernel) NumArgs() int {
	return len(k.def.params)
}

func (k *kernel) SetArg(index int, arg driver.Arg) error {
	if k.released.Load() {
		return driver.ErrReleased
	}

	if index < 0 || index >= len(k.def.params) {
		return fmt.Errorf("%w: %s has %d arguments, got index %d", driver.ErrInvalidArgIndex, k.def.name, len(k.def.params), index)
	}

	p := k.def.params[index]

	var bound boundArg

	switch p.kind {
	case paramGlobal:
		b, ok := arg.Buffer.(*buffer)
		if !ok || b == nil {
			return fmt.Errorf("%w: %s argument %d (%s) needs a buffer", driver.ErrInvalidArgValue, k.def.name, index, p.name)
		}

		if b.ctx != k.prog.ctx {
			return fmt.Errorf("%w: %s argument %d belongs to another context", driver.ErrInvalidArgValue, k.def.name, index)
		}

		bound.buf = b
	case paramLocal:
		if arg.Buffer != nil || arg.Scalar != nil {
			return fmt.Errorf("%w: %s argument %d (%s) is __local", driver.ErrInvalidArgValue, k.def.name, index, p.name)
		}

		if arg.Local <= 0 {
			return fmt.Errorf("%w: %s argument %d (%s) needs a local size", driver.ErrInvalidArgSize, k.def.name, index, p.name)
		}

		bound.local = arg.Local
	default:
		if arg.Buffer != nil {
			return fmt.Errorf("%w: %s argument %d (%s) is a %s scalar", driver.ErrInvalidArgValue, k.def.name, index, p.name, p.typ)
		}

		if len(arg.Scalar) != p.size {
			return fmt.Errorf("%w: %s argument %d (%s) is %d bytes, got %d", driver.ErrInvalidArgSize, k.def.name, index, p.name, p.size, len(arg.Scalar))
		}

		bound.scalar = append([]byte(nil), arg.Scalar...)
	}

	k.mu.Lock()
	k.args[index] = bound
	k.set[index] = true
	k.mu.Unlock()

	return nil
}

// snapshot captures the current bindings for one dispatch.
func (k *kernel) snapshot() ([]boundArg, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, ok := range k.set {
		if !ok {
			return nil, fmt.Errorf("%w: %s argument %d (%s)", driver.ErrArgsNotSet, k.def.name, i, k.def.params[i].name)
		}
	}

	return append([]boundArg(nil), k.args...), nil
}

func (k *kernel) Release() error {
	if !k.released.CompareAndSwap(false, true) {
		return driver.ErrReleased
	}

	return nil
}

func parseParams(list, precision string, line int, log *buildLog) ([]param, bool) {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return nil, true
	}

	fields := strings.Split(list, ",")
	params := make([]param, 0, len(fields))
	ok := true

	for _, field := range fields {
		p, err := parseParam(field, precision)
		if err != nil {
			log.errorf(line, "%v", err)

			ok = false

			continue
		}

		params = append(params, p)
	}

	return params, ok
}

func parseParam(field, precision string) (param, error) {
	field = strings.ReplaceAll(field, "*", " * ")
	tokens := strings.Fields(field)

	if len(tokens) < 2 {
		return param{}, fmt.Errorf("malformed parameter %q", strings.TrimSpace(field))
	}

	var (
		p       = param{name: tokens[len(tokens)-1]}
		global  bool
		local   bool
		isConst bool
		pointer bool
	)

	for _, tok := range tokens[:len(tokens)-1] {
		switch tok {
		case "__global", "global":
			global = true
		case "__local", "local":
			local = true
		case "__constant", "constant":
			global = true
			isConst = true
		case "const":
			isConst = true
		case "restrict", "__restrict", "volatile", "__private", "private":
		case "*":
			pointer = true
		default:
			p.typ = tok
		}
	}

	if p.typ == "" {
		return param{}, fmt.Errorf("parameter %q has no type", p.name)
	}

	size, known := scalarSize(p.typ, precision)
	if !known {
		return param{}, fmt.Errorf("unknown type name %q for parameter %q", p.typ, p.name)
	}

	switch {
	case local:
		if !pointer {
			return param{}, fmt.Errorf("__local parameter %q must be a pointer", p.name)
		}

		p.kind = paramLocal
		p.writable = true
	case global || pointer:
		if !pointer {
			return param{}, fmt.Errorf("__global parameter %q must be a pointer", p.name)
		}

		p.kind = paramGlobal
		p.writable = !isConst
	default:
		p.kind = paramScalar
		p.size = size
	}

	return p, nil
}

func usesReal(params []param) bool {
	for _, p := range params {
		if p.typ == "REAL" || p.typ == "real" {
			return true
		}
	}

	return false
}

func scalarSize(typ, precision string) (int, bool) {
	switch typ {
	case "REAL", "real":
		if precision == "double" {
			return 8, true
		}

		return 4, true
	case "float", "int", "uint":
		return 4, true
	case "double", "long", "ulong":
		return 8, true
	default:
		return 0, false
	}
}

func detectPrecision(text, options string, log *buildLog) string {
	precision := "float"

	if m := realDefine.FindStringSubmatch(text); m != nil {
		precision = m[1]
	}

	if m := realOption.FindStringSubmatch(options); m != nil {
		precision = m[1]
	}

	if precision != "float" && precision != "double" {
		log.errorf(0, "REAL must be float or double, got %q", precision)
		return "float"
	}

	return precision
}

// stripComments blanks comments while keeping line breaks, so positions in
// the result map to source lines.
func stripComments(source string) string {
	blank := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == '\n' {
				return r
			}

			return ' '
		}, s)
	}

	source = blockRemark.ReplaceAllStringFunc(source, blank)

	return lineRemark.ReplaceAllStringFunc(source, blank)
}

func braceBalance(text string) int {
	depth := 0

	for _, r := range text {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return depth
			}
		}
	}

	return depth
}

func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}

func lineCount(text string) int {
	return strings.Count(text, "\n") + 1
}

type buildLog struct {
	strings.Builder
	errors int
}

func (l *buildLog) errorf(line int, format string, args ...any) {
	l.errors++

	if line > 0 {
		fmt.Fprintf(l, "<source>:%d: error: ", line)
	} else {
		l.WriteString("<options>: error: ")
	}

	fmt.Fprintf(l, format, args...)
	l.WriteByte('\n')
}
