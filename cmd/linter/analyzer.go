package main

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer reports calls that terminate the process outside main.main.
var Analyzer = &analysis.Analyzer{
	Name: "nocrash",
	Doc:  "reports panic, log.Fatal*, log.Panic* and os.Exit; os.Exit and log.Fatal* are allowed in main.main",
	Run:  run,
	Requires: []*analysis.Analyzer{
		inspect.Analyzer,
	},
}

// exitFuncs may be called from main.main; log.Panic* never may.
var exitFuncs = map[string]bool{
	"log.Fatal":   true,
	"log.Fatalf":  true,
	"log.Fatalln": true,
	"os.Exit":     true,
	"log.Panic":   false,
	"log.Panicf":  false,
	"log.Panicln": false,
}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.CallExpr)(nil),
	}

	inspect.WithStack(nodeFilter, func(n ast.Node, push bool, stack []ast.Node) bool {
		if push {
			inMain := pass.Pkg.Name() == "main" && isMainFunc(enclosingFunc(stack))
			checkCall(pass, n.(*ast.CallExpr), inMain)
		}
		return true
	})

	return nil, nil
}

func checkCall(pass *analysis.Pass, node *ast.CallExpr, inMain bool) {
	switch fun := astutil.Unparen(node.Fun).(type) {
	case *ast.Ident:
		if _, ok := pass.TypesInfo.Uses[fun].(*types.Builtin); ok && fun.Name == "panic" {
			pass.Reportf(fun.Pos(), "found usage of panic")
		}
	case *ast.SelectorExpr:
		fn, ok := pass.TypesInfo.Uses[fun.Sel].(*types.Func)
		if !ok || fn.Pkg() == nil {
			return
		}
		if sig, ok := fn.Type().(*types.Signature); !ok || sig.Recv() != nil {
			return
		}
		name := fn.Pkg().Path() + "." + fn.Name()
		allowedInMain, tracked := exitFuncs[name]
		if !tracked || (allowedInMain && inMain) {
			return
		}
		if allowedInMain {
			pass.Reportf(node.Pos(), "found usage of %s outside of main function", name)
			return
		}
		pass.Reportf(node.Pos(), "found usage of %s", name)
	}
}

// enclosingFunc returns the declaration a node on stack belongs to, or nil
// for package level initializers.
func enclosingFunc(stack []ast.Node) *ast.FuncDecl {
	for i := len(stack) - 1; i >= 0; i-- {
		if decl, ok := stack[i].(*ast.FuncDecl); ok {
			return decl
		}
	}
	return nil
}

func isMainFunc(decl *ast.FuncDecl) bool {
	return decl != nil && decl.Recv == nil && decl.Name.Name == "main"
}
