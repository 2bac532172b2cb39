// Package document models a single open-or-not document (spec §3
// "Document", §4.9's "State machine: document lifecycle") and its lazy
// parse/evaluate state. Grounded on cue-lang's internal/lsp/cache.File:
// an association between a URI and the AST/diagnostics derived from it,
// recomputed on demand rather than eagerly.
//
// One deliberate departure from the teacher: File there guards every
// field behind filesMutex because gopls serves overlapping requests
// concurrently. Spec §5 rules that out for this server ("the evaluator
// state and document table are not protected by locks because only the
// main task touches them") so Store and Document carry no locking at all.
package document

import (
	"path/filepath"
	"strings"

	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/config"
	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/parser"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/runtime"
	"nls.dev/nls/internal/staticenv"
)

// State is one node of spec §4.9's document lifecycle state machine.
// "absent" is represented by the Document simply not existing in a Store.
type State int

const (
	StateUnparsed State = iota
	StateParsed
)

// FileKind classifies a document per the GLOSSARY's "Flake file"/"Package
// file" entries.
type FileKind int

const (
	FileKindPlain FileKind = iota
	FileKindFlake
	FileKindPackage
)

func (k FileKind) String() string {
	switch k {
	case FileKindFlake:
		return "flake"
	case FileKindPackage:
		return "package"
	default:
		return "plain"
	}
}

// defaultPackageFilePatterns is the package-file recognition convention
// applied absent a configured override (GLOSSARY: "recognised by
// convention or configuration"; the convention this implementation
// chooses is the Nixpkgs-wide one, a package's top-level expression lives
// in a file literally named default.nix).
var defaultPackageFilePatterns = []string{"default.nix"}

// Classify implements the GLOSSARY's Flake/Package file recognition: a
// path ending in /flake.nix is a flake file unconditionally; otherwise the
// base name is matched against the package-file patterns (the default
// convention, or the configured stack's override). path is a filesystem
// path, not a raw document URI (see uriToPath).
func Classify(path string, stack *config.Stack) FileKind {
	if strings.HasSuffix(path, "/flake.nix") || path == "flake.nix" {
		return FileKindFlake
	}
	patterns := defaultPackageFilePatterns
	if stack != nil && len(stack.PackageFilePatterns) > 0 {
		patterns = stack.PackageFilePatterns
	}
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return FileKindPackage
		}
	}
	return FileKindPlain
}

// uriToPath strips a file:// scheme from a textDocument URI (spec §6.1's
// requests carry a URI, but config discovery and file-kind classification
// both need a plain filesystem path).
func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// ContentChange is one element of a textDocument/didChange notification
// (spec §6.1: "{ text, range? }; absent range means full replacement").
type ContentChange struct {
	Text  string
	Range *position.Range
}

// Document is the per-URI lazily-derived state spec §3 calls "Document":
// `{ uri, source-text, path, base-path, file-info }`.
type Document struct {
	URI      string
	BasePath string
	Source   []byte
	Kind     FileKind

	state State

	root  ast.Expr
	scope *staticenv.Scope
	diags errs.List

	// ConfigStack is discovered once at open time and refreshed on
	// didSave (spec §6.1's didSave row: "Refresh file-kind-specific
	// caches").
	ConfigStack *config.Stack

	// flakeInputs caches the evaluated `inputs` attrset for a flake file,
	// refreshed on didSave per the same wire-protocol row.
	flakeInputs *runtime.Attrs
}

// Open creates a Document in the open[unparsed] state (spec §4.9's
// "didOpen creates and stores source"). installResourceDir is forwarded
// to config.Discover for the install-resource-dir configuration tier.
func Open(uri string, text string, installResourceDir string) *Document {
	path := uriToPath(uri)
	stack, _ := config.Load(path, installResourceDir)
	d := &Document{
		URI:         uri,
		BasePath:    filepath.Dir(path),
		Source:      []byte(text),
		ConfigStack: stack,
		state:       StateUnparsed,
	}
	d.Kind = Classify(path, stack)
	return d
}

// Change applies each content change in order and invalidates the parse
// (spec §4.9: "didChange applies content changes in order and invalidates
// parse").
func (d *Document) Change(changes []ContentChange) {
	for _, c := range changes {
		d.Source = applyChange(d.Source, c.Text, c.Range)
	}
	d.state = StateUnparsed
	d.root = nil
	d.scope = nil
	d.diags = errs.List{}
	d.flakeInputs = nil
}

// Refresh re-discovers the configuration stack and clears cached
// flake-input state (spec §6.1's didSave row).
func (d *Document) Refresh(installResourceDir string) {
	path := uriToPath(d.URI)
	stack, _ := config.Load(path, installResourceDir)
	d.ConfigStack = stack
	d.Kind = Classify(path, stack)
	d.flakeInputs = nil
}

// EnsureParsed lazily parses and statically resolves the document's
// current source (spec §4.9: "the first query parses"), memoizing the
// result until the next Change.
func (d *Document) EnsureParsed() {
	if d.state == StateParsed {
		return
	}
	var el errs.List
	p := parser.New(d.Source, &el)
	d.root = p.Parse()
	d.scope = staticenv.Build(d.root, nil, &el)
	d.diags = el
	d.state = StateParsed
}

// Root returns the parsed root expression, parsing first if necessary.
func (d *Document) Root() ast.Expr {
	d.EnsureParsed()
	return d.root
}

// Scope returns the root static scope, parsing first if necessary.
func (d *Document) Scope() *staticenv.Scope {
	d.EnsureParsed()
	return d.scope
}

// ParseDiagnostics returns the diagnostics discovered while parsing and
// statically resolving the document (spec §4.9's "Diagnostics" row:
// "union of parse diagnostics and ...").
func (d *Document) ParseDiagnostics() []*errs.Error {
	d.EnsureParsed()
	return d.diags.All()
}

// FlakeDiagnostics implements the GLOSSARY/§4.9 flake-structure checks
// for a Flake file: the root must be an attrset; unrecognised top-level
// keys are diagnosed. Non-flake documents and documents whose root fails
// to evaluate at all report nothing here (evaluation failure is already
// covered by the ordinary whole-document diagnostics pass).
func (d *Document) FlakeDiagnostics(ev *runtime.Evaluator) []*errs.Error {
	if d.Kind != FileKindFlake {
		return nil
	}
	d.EnsureParsed()
	v, err := ev.Eval(d.root, runtime.DefaultBuiltinsEnv())
	if err != nil {
		return nil
	}
	forced, ferr := ev.ForceValue(v)
	if ferr != nil {
		return nil
	}
	if forced.Kind != runtime.KindAttrs {
		return []*errs.Error{errs.Newf(errs.KindEvaluation, d.root.Range(), "flake file root must be an attribute set")}
	}

	recognized := map[string]bool{"description": true, "inputs": true, "outputs": true, "nixConfig": true}
	var out []*errs.Error
	for _, name := range forced.Attrs.Names {
		if recognized[name] {
			continue
		}
		entry := forced.Attrs.Entries[name]
		r := position.Range{Start: entry.DefPos, End: entry.DefPos}
		out = append(out, errs.Newf(errs.KindEvaluation, r, "unrecognised flake attribute '%s'", name))
	}

	if inputsEntry, ok := forced.Attrs.Entries["inputs"]; ok {
		inputsVal, ferr := ev.ForceValue(runtime.Value{Kind: runtime.KindThunk, Thunk: inputsEntry.Value})
		if ferr == nil && inputsVal.Kind == runtime.KindAttrs {
			d.flakeInputs = inputsVal.Attrs
			out = append(out, flakeInputRefDiagnostics(ev, inputsVal.Attrs)...)
		}
	}
	if outputsEntry, ok := forced.Attrs.Entries["outputs"]; ok {
		outputsVal, ferr := ev.ForceValue(runtime.Value{Kind: runtime.KindThunk, Thunk: outputsEntry.Value})
		if ferr == nil && outputsVal.Kind != runtime.KindLambda {
			r := position.Range{Start: outputsEntry.DefPos, End: outputsEntry.DefPos}
			out = append(out, errs.Newf(errs.KindEvaluation, r, "flake 'outputs' must be a function"))
		}
	}
	return out
}

// FlakeInputs returns the cached flake-input attrset, if FlakeDiagnostics
// (or a prior evaluation) has populated it.
func (d *Document) FlakeInputs() *runtime.Attrs {
	return d.flakeInputs
}

// flakeInputRefDiagnostics validates each flake input's optional `ref`
// field (GLOSSARY's flake input descriptor) against config.ValidVersionRef,
// and flags the older of two inputs that pin the same `url` to different
// version refs using config.CompareVersionRefs — both the version-ref
// validator and comparator the teacher's own nixConfig pin-checking
// validates module versions with.
func flakeInputRefDiagnostics(ev *runtime.Evaluator, inputs *runtime.Attrs) []*errs.Error {
	type pinned struct {
		name   string
		ref    string
		defPos position.Position
	}
	byURL := map[string][]pinned{}

	var out []*errs.Error
	for _, name := range inputs.Names {
		entry := inputs.Entries[name]
		inputVal, ferr := ev.ForceValue(runtime.Value{Kind: runtime.KindThunk, Thunk: entry.Value})
		if ferr != nil || inputVal.Kind != runtime.KindAttrs {
			continue
		}

		refStr, ok := stringField(ev, inputVal.Attrs, "ref")
		if !ok || refStr == "" {
			continue
		}
		if strings.HasPrefix(refStr, "v") && len(refStr) > 1 && refStr[1] >= '0' && refStr[1] <= '9' && !config.ValidVersionRef(refStr) {
			r := position.Range{Start: entry.DefPos, End: entry.DefPos}
			out = append(out, errs.Newf(errs.KindEvaluation, r,
				"flake input '%s' has a malformed version ref '%s'", name, refStr))
			continue
		}
		if url, ok := stringField(ev, inputVal.Attrs, "url"); ok && url != "" {
			byURL[url] = append(byURL[url], pinned{name: name, ref: refStr, defPos: entry.DefPos})
		}
	}

	for _, pins := range byURL {
		for i := 1; i < len(pins); i++ {
			if config.CompareVersionRefs(pins[i].ref, pins[0].ref) < 0 {
				r := position.Range{Start: pins[i].defPos, End: pins[i].defPos}
				out = append(out, errs.Newf(errs.KindEvaluation, r,
					"flake input '%s' pins an older ref ('%s') than input '%s' ('%s') for the same url",
					pins[i].name, pins[i].ref, pins[0].name, pins[0].ref))
			}
		}
	}
	return out
}

// stringField force-evaluates attrs[name] and reports it only if it is a
// string.
func stringField(ev *runtime.Evaluator, attrs *runtime.Attrs, name string) (string, bool) {
	entry, ok := attrs.Entries[name]
	if !ok {
		return "", false
	}
	v, ferr := ev.ForceValue(runtime.Value{Kind: runtime.KindThunk, Thunk: entry.Value})
	if ferr != nil || v.Kind != runtime.KindString {
		return "", false
	}
	return v.Str, true
}

// applyChange applies one content change to src. A nil Range means full
// replacement (spec §6.1). Positions are interpreted as byte offsets into
// their line, which matches this server's own position.Position
// convention; it does not attempt UTF-16-code-unit compatibility with
// clients that count differently.
func applyChange(src []byte, text string, rng *position.Range) []byte {
	if rng == nil {
		return []byte(text)
	}
	start := offsetAt(src, rng.Start)
	end := offsetAt(src, rng.End)
	if end < start {
		end = start
	}
	out := make([]byte, 0, len(src)-(end-start)+len(text))
	out = append(out, src[:start]...)
	out = append(out, text...)
	out = append(out, src[end:]...)
	return out
}

func offsetAt(src []byte, pos position.Position) int {
	line := uint32(0)
	i := 0
	for line < pos.Line && i < len(src) {
		if src[i] == '\n' {
			line++
		}
		i++
	}
	end := i + int(pos.Column)
	if end > len(src) {
		end = len(src)
	}
	return end
}

// Store is the process-wide document table (spec §3's "document table",
// spec §5: "process-wide; initialised once, never torn down, never
// mutated concurrently" — safe without locks under the single-threaded
// cooperative dispatch model).
type Store struct {
	docs map[string]*Document
}

// NewStore returns an empty document table.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// DidOpen creates and stores a Document for uri.
func (s *Store) DidOpen(uri, text, installResourceDir string) *Document {
	d := Open(uri, text, installResourceDir)
	s.docs[uri] = d
	return d
}

// Get returns the Document for uri, or nil if it is absent (spec §4.9:
// "Queries against absent return null").
func (s *Store) Get(uri string) *Document {
	return s.docs[uri]
}

// DidClose removes uri's document.
func (s *Store) DidClose(uri string) {
	delete(s.docs, uri)
}
