package eventmap

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Kind tells event payloads from aggregate payloads.
type Kind int

// Payload kinds.
const (
	Event Kind = iota
	Aggregate
)

func (k Kind) String() string {
	if k == Aggregate {
		return "aggregate"
	}
	return "event"
}

// PayloadInfo represents a discovered payload type.
type PayloadInfo struct {
	// Name is the Go type name
	Name string

	// TypeName is the string literal the method returns, or "" when the
	// method body is not a single literal return
	TypeName string

	// Kind is Event for EventType() and Aggregate for AggregateType()
	Kind Kind

	// Pointer is set when the method has a pointer receiver
	Pointer bool
}

// typeExpr is the type argument used to register the payload.
func (p PayloadInfo) typeExpr() string {
	if p.Pointer {
		return "*" + p.Name
	}
	return p.Name
}

// zeroExpr is a zero value of the registered type.
func (p PayloadInfo) zeroExpr() string {
	if p.Pointer {
		return "new(" + p.Name + ")"
	}
	return "*new(" + p.Name + ")"
}

// Config configures the code generation.
type Config struct {
	Dir        string // Package directory to scan; generated files are written here
	OutputFile string // Name of the generated file (default: eventtypes.gen.go)
	FuncName   string // Name of the generated registration function
	SkipTests  bool   // Do not write the generated test file
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Dir:        ".",
		OutputFile: "eventtypes.gen.go",
		FuncName:   "RegisterEventTypes",
	}
}

// Generator generates payload registration code.
type Generator struct {
	config      Config
	packageName string
	payloads    []PayloadInfo
}

// NewGenerator creates a new generator with the given configuration.
func NewGenerator(config *Config) *Generator {
	c := *config
	defaults := DefaultConfig()
	if c.Dir == "" {
		c.Dir = defaults.Dir
	}
	if c.OutputFile == "" {
		c.OutputFile = defaults.OutputFile
	}
	if c.FuncName == "" {
		c.FuncName = defaults.FuncName
	}
	return &Generator{config: c}
}

// PackageName returns the package name found by Discover.
func (g *Generator) PackageName() string {
	return g.packageName
}

// Payloads returns the payloads found by Discover, events first, each kind
// sorted by type name.
func (g *Generator) Payloads() []PayloadInfo {
	out := make([]PayloadInfo, len(g.payloads))
	copy(out, g.payloads)
	return out
}

// Discover parses the package directory and collects its payload types.
// Test files and previously generated files are ignored.
func (g *Generator) Discover() error {
	entries, err := os.ReadDir(g.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", g.config.Dir, err)
	}

	g.payloads = g.payloads[:0]
	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") ||
			name == g.config.OutputFile {
			continue
		}

		path := filepath.Join(g.config.Dir, name)
		file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		switch {
		case g.packageName == "":
			g.packageName = file.Name.Name
		case g.packageName != file.Name.Name:
			return fmt.Errorf("%s: package %s, expected %s", path, file.Name.Name, g.packageName)
		}

		for _, decl := range file.Decls {
			if info, ok := payloadMethod(decl); ok {
				g.payloads = append(g.payloads, info)
			}
		}
	}

	sort.Slice(g.payloads, func(i, j int) bool {
		if g.payloads[i].Kind != g.payloads[j].Kind {
			return g.payloads[i].Kind < g.payloads[j].Kind
		}
		return g.payloads[i].Name < g.payloads[j].Name
	})
	return g.checkDuplicates()
}

// payloadMethod matches `func (T) EventType() string` and its aggregate and
// pointer receiver variants on exported types.
func payloadMethod(decl ast.Decl) (PayloadInfo, bool) {
	fn, ok := decl.(*ast.FuncDecl)
	if !ok || fn.Recv == nil || len(fn.Recv.List) != 1 {
		return PayloadInfo{}, false
	}

	var kind Kind
	switch fn.Name.Name {
	case "EventType":
		kind = Event
	case "AggregateType":
		kind = Aggregate
	default:
		return PayloadInfo{}, false
	}
	if fn.Type.Params.NumFields() != 0 || fn.Type.Results.NumFields() != 1 {
		return PayloadInfo{}, false
	}
	if result, ok := fn.Type.Results.List[0].Type.(*ast.Ident); !ok || result.Name != "string" {
		return PayloadInfo{}, false
	}

	recv := fn.Recv.List[0].Type
	pointer := false
	if star, ok := recv.(*ast.StarExpr); ok {
		pointer = true
		recv = star.X
	}
	ident, ok := recv.(*ast.Ident)
	if !ok || !ident.IsExported() {
		return PayloadInfo{}, false
	}

	return PayloadInfo{
		Name:     ident.Name,
		TypeName: literalReturn(fn.Body),
		Kind:     kind,
		Pointer:  pointer,
	}, true
}

func literalReturn(body *ast.BlockStmt) string {
	if body == nil || len(body.List) != 1 {
		return ""
	}
	ret, ok := body.List[0].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return ""
	}
	lit, ok := ret.Results[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return ""
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return ""
	}
	return s
}

// checkDuplicates rejects two types of one kind claiming the same literal
// name, which the registry would refuse at run time.
func (g *Generator) checkDuplicates() error {
	seen := make(map[string]string)
	for _, p := range g.payloads {
		if p.TypeName == "" {
			continue
		}
		key := p.Kind.String() + ":" + p.TypeName
		if other, ok := seen[key]; ok {
			return fmt.Errorf("%s types %s and %s both declare %q", p.Kind, other, p.Name, p.TypeName)
		}
		seen[key] = p.Name
	}
	return nil
}

// Generate writes the registration code and, unless disabled, its test.
func (g *Generator) Generate() error {
	if len(g.payloads) == 0 {
		return fmt.Errorf("no payload types discovered in %s", g.config.Dir)
	}

	code, err := g.Source()
	if err != nil {
		return err
	}
	outputPath := filepath.Join(g.config.Dir, g.config.OutputFile)
	if err := os.WriteFile(outputPath, code, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	if g.config.SkipTests {
		return nil
	}
	testCode, err := g.TestSource()
	if err != nil {
		return err
	}
	testOutputPath := filepath.Join(g.config.Dir, g.TestFileName())
	if err := os.WriteFile(testOutputPath, testCode, 0o600); err != nil {
		return fmt.Errorf("failed to write test file: %w", err)
	}
	return nil
}

// TestFileName returns the name of the generated test file.
func (g *Generator) TestFileName() string {
	return strings.TrimSuffix(g.config.OutputFile, ".go") + "_test.go"
}

const header = "// Code generated by eventmap-gen. DO NOT EDIT.\n\n"

// Source returns the formatted registration code.
func (g *Generator) Source() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	fmt.Fprintf(&buf, "package %s\n\n", g.packageName)
	buf.WriteString("import (\n\t\"errors\"\n\n\t\"github.com/getpup/pupkernel/es/eventtype\"\n)\n\n")

	fmt.Fprintf(&buf, "// %s adds the payload types declared in this package to r.\n", g.config.FuncName)
	fmt.Fprintf(&buf, "func %s(r *eventtype.Registry) error {\n", g.config.FuncName)
	buf.WriteString("\treturn errors.Join(\n")
	for _, p := range g.payloads {
		fn := "RegisterEvent"
		if p.Kind == Aggregate {
			fn = "RegisterAggregate"
		}
		fmt.Fprintf(&buf, "\t\teventtype.%s[%s](r),\n", fn, p.typeExpr())
	}
	buf.WriteString("\t)\n}\n")

	return formatSource(buf.Bytes())
}

// TestSource returns the formatted test for the registration code.
func (g *Generator) TestSource() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	fmt.Fprintf(&buf, "package %s\n\n", g.packageName)
	buf.WriteString("import (\n\t\"testing\"\n\n\t\"github.com/getpup/pupkernel/es/eventtype\"\n)\n\n")

	fmt.Fprintf(&buf, "func Test%s(t *testing.T) {\n", g.config.FuncName)
	buf.WriteString("\tr := eventtype.NewRegistry()\n")
	fmt.Fprintf(&buf, "\tif err := %s(r); err != nil {\n", g.config.FuncName)
	fmt.Fprintf(&buf, "\t\tt.Fatalf(\"%s() failed: %%v\", err)\n\t}\n", g.config.FuncName)
	fmt.Fprintf(&buf, "\tif err := %s(r); err != nil {\n", g.config.FuncName)
	buf.WriteString("\t\tt.Fatalf(\"registering twice should be idempotent: %v\", err)\n\t}\n")

	for _, p := range g.payloads {
		if p.Kind != Event {
			continue
		}
		fmt.Fprintf(&buf, "\tif !r.HasEvent(%s) {\n", p.zeroExpr())
		fmt.Fprintf(&buf, "\t\tt.Error(\"%s is not registered\")\n\t}\n", p.Name)
	}
	for _, p := range g.payloads {
		if p.Kind != Aggregate || p.TypeName == "" {
			continue
		}
		fmt.Fprintf(&buf, "\tif _, err := r.DecodeAggregate(%q, []byte(\"{}\")); err != nil {\n", p.TypeName)
		fmt.Fprintf(&buf, "\t\tt.Errorf(\"%s: %%v\", err)\n\t}\n", p.Name)
	}
	buf.WriteString("}\n")

	return formatSource(buf.Bytes())
}

func formatSource(src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, fmt.Errorf("failed to format generated code: %w", err)
	}
	return out, nil
}
