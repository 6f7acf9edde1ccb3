// Package static provides go/ssa-based static analysis for scope escapes.
// It reports functions that hand out the address of one of their own locals:
// returning &local, returning a slice over a local array, capturing a local in
// a returned closure, or storing &local in a package-level variable.
//
// In C each of these leaves a dangling reference once the frame is popped.
// Go moves the local to the heap instead, so the program stays correct, but
// the storage now outlives its lexical scope and ownership silently passes to
// whoever holds the reference.
package static

import (
	"cmp"
	"fmt"
	"go/token"
	"slices"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Via names the route by which a local's address leaves its frame.
type Via string

const (
	ViaReturn  Via = "return"
	ViaClosure Via = "closure"
	ViaGlobal  Via = "global"
)

// Finding is a static analysis finding.
type Finding struct {
	Function string // fully qualified function name
	File     string
	Line     int
	Location string // file:line where the address leaves the frame
	Declared string // file:line of the local's declaration
	Variable string
	Via      Via
	Message  string
}

// allocComments are the ssa.Alloc comments for storage that was never a named
// local: composite literals, new(T), make with a constant size, and friends.
// Those are meant to outlive the frame.
var allocComments = map[string]bool{
	"":          true,
	"complit":   true,
	"makeslice": true,
	"new":       true,
	"slicelit":  true,
	"varargs":   true,
}

// containerComments are the unnamed allocations whose contents travel with
// them: whatever address is stored into one leaves the frame when it does.
var containerComments = map[string]bool{
	"complit":   true,
	"makeslice": true,
	"slicelit":  true,
}

// AnalyzeScopeEscapes loads the given Go package patterns and reports every
// place a function's local storage outlives the function.
//
// dir is the working directory for package loading; empty means the current
// directory.
func AnalyzeScopeEscapes(dir string, pkgPatterns []string) ([]Finding, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedCompiledGoFiles |
			packages.NeedImports |
			packages.NeedDeps |
			packages.NeedSyntax |
			packages.NeedTypes |
			packages.NeedTypesInfo,
		Dir: dir,
	}

	loaded, err := packages.Load(cfg, pkgPatterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var loadErrs []string
	packages.Visit(loaded, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e.Msg)
		}
	})
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("package load errors: %s", strings.Join(loadErrs, "; "))
	}

	prog, pkgs := ssautil.AllPackages(loaded, ssa.SanityCheckFunctions)
	prog.Build()

	targets := make(map[*ssa.Package]bool, len(pkgs))
	for _, pkg := range pkgs {
		if pkg != nil {
			targets[pkg] = true
		}
	}

	seen := make(map[string]bool)
	var findings []Finding
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Synthetic != "" || !targets[fn.Package()] {
			continue
		}
		for _, f := range analyzeFn(fn) {
			key := f.Location + "\x00" + f.Variable
			if seen[key] {
				continue
			}
			seen[key] = true
			findings = append(findings, f)
		}
	}

	slices.SortFunc(findings, func(a, b Finding) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Variable, b.Variable),
		)
	})
	return findings, nil
}

// analyzeFn reports the locals of fn whose address leaves fn.
func analyzeFn(fn *ssa.Function) []Finding {
	if len(fn.Blocks) == 0 {
		return nil
	}

	var findings []Finding
	report := func(instr ssa.Instruction, a *ssa.Alloc, via Via, detail string) {
		// A closure captures the parent's local; only the owner's frame counts.
		if a.Parent() != fn {
			return
		}
		findings = append(findings, newFinding(fn, instr, a, via, detail))
	}

	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			switch v := instr.(type) {
			case *ssa.Return:
				for _, res := range v.Results {
					for _, a := range localAllocs(res, nil) {
						report(v, a, ViaReturn, "")
					}
					if mc, ok := res.(*ssa.MakeClosure); ok {
						for _, bound := range mc.Bindings {
							for _, a := range localAllocs(bound, nil) {
								report(v, a, ViaClosure, "")
							}
						}
					}
				}
			case *ssa.Store:
				g := globalOf(v.Addr)
				if g == nil {
					continue
				}
				for _, a := range localAllocs(v.Val, nil) {
					report(v, a, ViaGlobal, g.Name())
				}
			}
		}
	}
	return findings
}

// localAllocs follows v back through address arithmetic and conversions to
// the named, heap-moved locals it designates.
func localAllocs(v ssa.Value, seen map[ssa.Value]bool) []*ssa.Alloc {
	if seen[v] {
		return nil
	}
	if seen == nil {
		seen = make(map[ssa.Value]bool)
	}
	seen[v] = true

	switch v := v.(type) {
	case *ssa.Alloc:
		if v.Heap && !allocComments[v.Comment] {
			return []*ssa.Alloc{v}
		}
		if containerComments[v.Comment] {
			return storedInto(v, seen)
		}
	case *ssa.UnOp:
		// A load carries out whatever was stored in the loaded variable.
		if a, ok := v.X.(*ssa.Alloc); ok && v.Op == token.MUL {
			return storedInto(a, seen)
		}
	case *ssa.Slice:
		return localAllocs(v.X, seen)
	case *ssa.FieldAddr:
		return localAllocs(v.X, seen)
	case *ssa.IndexAddr:
		return localAllocs(v.X, seen)
	case *ssa.ChangeType:
		return localAllocs(v.X, seen)
	case *ssa.Convert:
		return localAllocs(v.X, seen)
	case *ssa.MakeInterface:
		return localAllocs(v.X, seen)
	case *ssa.Phi:
		var out []*ssa.Alloc
		for _, e := range v.Edges {
			out = append(out, localAllocs(e, seen)...)
		}
		return out
	}
	return nil
}

// storedInto returns the locals whose addresses are stored anywhere inside
// addr, following field and element addresses into it.
func storedInto(addr ssa.Value, seen map[ssa.Value]bool) []*ssa.Alloc {
	refs := addr.Referrers()
	if refs == nil {
		return nil
	}
	var out []*ssa.Alloc
	for _, instr := range *refs {
		switch r := instr.(type) {
		case *ssa.Store:
			if r.Addr == addr {
				out = append(out, localAllocs(r.Val, seen)...)
			}
		case *ssa.FieldAddr:
			out = append(out, storedInto(r, seen)...)
		case *ssa.IndexAddr:
			out = append(out, storedInto(r, seen)...)
		}
	}
	return out
}

// globalOf returns the package variable that addr points into, if any.
// Field and element addresses are followed, as are loads through pointer and
// slice globals, so g.f, g[i], and g.p.f all resolve to g.
func globalOf(addr ssa.Value) *ssa.Global {
	for {
		switch v := addr.(type) {
		case *ssa.Global:
			return v
		case *ssa.FieldAddr:
			addr = v.X
		case *ssa.IndexAddr:
			addr = v.X
		case *ssa.UnOp:
			if v.Op != token.MUL {
				return nil
			}
			addr = v.X
		default:
			return nil
		}
	}
}

func newFinding(fn *ssa.Function, instr ssa.Instruction, a *ssa.Alloc, via Via, detail string) Finding {
	fset := fn.Prog.Fset

	pos := instr.Pos()
	if !pos.IsValid() {
		pos = a.Pos()
	}
	at := fset.Position(pos)
	decl := fset.Position(a.Pos())

	var msg string
	switch via {
	case ViaReturn:
		msg = fmt.Sprintf("reference to local %q returned from %s; its storage outlives the function's scope (moved to heap)", a.Comment, fn.Name())
	case ViaClosure:
		msg = fmt.Sprintf("local %q captured by a closure returned from %s; its storage outlives the function's scope (moved to heap)", a.Comment, fn.Name())
	case ViaGlobal:
		msg = fmt.Sprintf("address of local %q stored in package variable %s; its storage outlives the function's scope (moved to heap)", a.Comment, detail)
	}

	return Finding{
		Function: fn.RelString(nil),
		File:     at.Filename,
		Line:     at.Line,
		Location: fmt.Sprintf("%s:%d", at.Filename, at.Line),
		Declared: fmt.Sprintf("%s:%d", decl.Filename, decl.Line),
		Variable: a.Comment,
		Via:      via,
		Message:  msg,
	}
}
