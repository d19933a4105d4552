package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))
)

// printer writes CLI output, styled when attached to a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func (p printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

// listExports prints every exported function of out with its signature.
func (p printer) listExports(out *wasm.InitOutput) {
	fmt.Fprintln(p.w, p.render(titleStyle, out.Name))

	defs := out.Module().ExportedFunctionDefinitions()
	for _, name := range out.Exports() {
		def := defs[name]
		fmt.Fprintf(p.w, "  %s%s\n",
			p.render(funcStyle, name),
			p.render(typeStyle, signatureOf(def)))
	}

	if mem := out.Memory(); mem != nil {
		fmt.Fprintf(p.w, "  memory: %d bytes\n", mem.Size())
	}
}

func (p printer) printResults(name string, results []string) {
	fmt.Fprintf(p.w, "%s => %s\n", name, p.render(resultStyle, strings.Join(results, ", ")))
}

func signatureOf(def api.FunctionDefinition) string {
	if def == nil {
		return "()"
	}
	return "(" + typeNames(def.ParamTypes()) + ") -> (" + typeNames(def.ResultTypes()) + ")"
}

func typeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}
