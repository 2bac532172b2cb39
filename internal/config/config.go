// Package config discovers and merges the per-document configuration
// stack (spec §6.2): a `nix-analyzer-config.nix` file may exist in
// ancestors of the document path, in the user config directory, and in
// the install resource directory; all that exist are loaded and merged
// most-specific wins.
//
// Grounded on cue/load's ancestor-walk idiom (config.go's findModRoot,
// fs.go's repeated filepath.Dir/Split loop): a directory is walked
// upward, checking for a marker at each level, until the filesystem root
// is reached.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/parser"
	"nls.dev/nls/internal/runtime"
	"nls.dev/nls/internal/staticenv"
)

// FileName is the configuration file spec §6.2 names, parameterised by
// this implementation's language name.
const FileName = "nix-analyzer-config.nix"

// overrideFileName is a sibling YAML file carrying server-only settings
// that have no business living inside a value written in the host
// grammar itself (the formatter binary and package-root override) — see
// SPEC_FULL.md's DOMAIN STACK entry for gopkg.in/yaml.v3 and DESIGN.md's
// Open Question resolution #1.
const overrideFileName = "config.yaml"

// packageRootEnvVar is the NIX_PATH-style fallback for Open Question
// resolution #1 (PackageRoot).
const packageRootEnvVar = "NLS_PACKAGE_ROOT"

// DefaultFormatter is used when no override supplies one (spec §6.3).
var DefaultFormatter = []string{"alejandra", "--quiet"}

// Overrides is the shape of the optional sibling YAML file.
type Overrides struct {
	PackageRoot         string   `yaml:"packageRoot"`
	Formatter           []string `yaml:"formatter"`
	PackageFilePatterns []string `yaml:"packageFilePatterns"`
}

// TraceEntry records that one file supplied a value for one top-level
// key — the "config precedence trace" supplemented feature
// (SPEC_FULL.md), grounded on cue/load's verbose mode. Stack.Trace holds
// one entry per key per file, least specific file first, so the last
// entry for a key names the file whose value won.
type TraceEntry struct {
	Key  string
	File string
}

// Stack is the result of loading and merging a document's configuration
// (spec §6.2).
type Stack struct {
	// Files lists every config file that was found to exist, most
	// specific first (nearest ancestor, then the user config dir, then
	// the install resource dir).
	Files []string

	// Merged is the most-specific-wins union of every file's top-level
	// attrs, or nil if no file existed or all failed to load.
	Merged *runtime.Attrs

	Trace []TraceEntry

	PackageRoot      string
	FormatterCommand []string

	// PackageFilePatterns overrides internal/document's default
	// package-file recognition convention ("default.nix"). Empty means
	// the caller should fall back to that default; see GLOSSARY's
	// "Package file": "recognised by convention or configuration".
	PackageFilePatterns []string
}

// Discover returns the configuration file candidates for a document at
// docPath, most specific first (spec §6.2: ancestors nearest-first, then
// the config dir, then the install resource dir), filtered to paths that
// actually exist. The only config dir searched is the user's one
// (os.UserConfigDir()/nls); system-wide config directories are not
// searched.
func Discover(docPath, installResourceDir string) []string {
	var candidates []string

	dir := filepath.Dir(docPath)
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	for {
		candidates = append(candidates, filepath.Join(dir, FileName))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if userCfg, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(userCfg, "nls", FileName))
	}
	if installResourceDir != "" {
		candidates = append(candidates, filepath.Join(installResourceDir, FileName))
	}

	var existing []string
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			existing = append(existing, c)
		}
	}
	return existing
}

// Load discovers, parses, evaluates, and merges the configuration stack
// for a document at docPath (spec §6.2). Parse diagnostics of a file are
// reported, and the partial value the error-tolerant parser still yields
// is merged. Files that cannot be read, or fail to evaluate to an
// attribute set, are skipped and reported as diagnostics, following spec
// §7's "IO errors during config ... load are logged and treated as file
// not present" policy (extended here to evaluation failures of a config
// file, which are no more fatal than a missing one).
func Load(docPath, installResourceDir string) (*Stack, *errs.List) {
	var el errs.List
	existing := Discover(docPath, installResourceDir)

	stack := &Stack{Files: existing}
	ev := runtime.NewEvaluator()

	// existing is most-specific-first; apply least-specific first so
	// that a later (more specific) file's attrs win on conflicting keys,
	// matching "most-specific wins" via the right-biased '//' update
	// semantics internal/runtime already implements for the grammar
	// itself.
	for i := len(existing) - 1; i >= 0; i-- {
		path := existing[i]
		attrs, err := loadOneFile(ev, path, &el)
		if err != nil {
			el.Add(err)
			continue
		}
		stack.Merged = mergeAttrs(stack.Merged, attrs)
		for _, name := range attrs.Names {
			stack.Trace = append(stack.Trace, TraceEntry{Key: name, File: path})
		}
	}

	overrides := loadOverrides(existing)
	stack.PackageRoot = resolvePackageRoot(overrides)
	stack.FormatterCommand = resolveFormatter(overrides)
	stack.PackageFilePatterns = overrides.PackageFilePatterns

	return stack, &el
}

func loadOneFile(ev *runtime.Evaluator, path string, el *errs.List) (*runtime.Attrs, *errs.Error) {
	src, ioErr := os.ReadFile(path)
	if ioErr != nil {
		return nil, errs.NewSentinelf(errs.KindIO, "reading config file %s: %v", path, ioErr)
	}
	var fileErrs errs.List
	p := parser.New(src, &fileErrs)
	root := p.Parse()
	staticenv.Build(root, nil, &fileErrs)
	for _, e := range fileErrs.All() {
		el.Add(e)
	}

	v, evalErr := ev.Eval(root, runtime.DefaultBuiltinsEnv())
	if evalErr != nil {
		return nil, evalErr
	}
	forced, forceErr := ev.ForceValue(v)
	if forceErr != nil {
		return nil, forceErr
	}
	if forced.Kind != runtime.KindAttrs {
		return nil, errs.NewSentinelf(errs.KindEvaluation, "config file %s does not evaluate to an attribute set", path)
	}
	return forced.Attrs, nil
}

// mergeAttrs implements the same right-biased merge as the grammar's own
// '//' operator (internal/runtime's evalUpdate), reused here directly so
// config precedence matches what a user would expect from writing
// `base // override` themselves.
func mergeAttrs(base, override *runtime.Attrs) *runtime.Attrs {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}
	out := &runtime.Attrs{Entries: make(map[string]runtime.AttrsEntry, len(base.Entries)+len(override.Entries))}
	seen := make(map[string]bool, len(out.Entries))
	for _, name := range base.Names {
		out.Names = append(out.Names, name)
		out.Entries[name] = base.Entries[name]
		seen[name] = true
	}
	for _, name := range override.Names {
		if !seen[name] {
			out.Names = append(out.Names, name)
			seen[name] = true
		}
		out.Entries[name] = override.Entries[name]
	}
	return out
}

// loadOverrides reads the sibling config.yaml next to the most-specific
// existing primary config file, if any. Only one override file is
// consulted: server-only settings are not expected to layer the same way
// the primary language-native stack does.
func loadOverrides(existing []string) Overrides {
	var out Overrides
	if len(existing) == 0 {
		return out
	}
	dir := filepath.Dir(existing[0])
	data, err := os.ReadFile(filepath.Join(dir, overrideFileName))
	if err != nil {
		return out
	}
	_ = yaml.Unmarshal(data, &out)
	return out
}

func resolvePackageRoot(o Overrides) string {
	if o.PackageRoot != "" {
		return o.PackageRoot
	}
	if v := os.Getenv(packageRootEnvVar); v != "" {
		return v
	}
	return ""
}

func resolveFormatter(o Overrides) []string {
	if len(o.Formatter) > 0 {
		return o.Formatter
	}
	return DefaultFormatter
}

// ValidVersionRef reports whether ref looks like a semver tag (spec
// GLOSSARY's flake input descriptor carries an optional `ref`; a tag-
// shaped ref is validated the same way the teacher validates
// nixConfig-like version pins in module files). A non-semver ref (a
// branch name, a commit SHA) is not an error — this only judges refs
// that claim to be versions.
func ValidVersionRef(ref string) bool {
	if !strings.HasPrefix(ref, "v") {
		ref = "v" + ref
	}
	return semver.IsValid(ref)
}

// CompareVersionRefs orders two semver-shaped refs the way
// golang.org/x/mod/semver.Compare does (-1, 0, 1); refs failing
// ValidVersionRef compare as equal, since there is no ordering to report.
func CompareVersionRefs(a, b string) int {
	if !ValidVersionRef(a) || !ValidVersionRef(b) {
		return 0
	}
	norm := func(s string) string {
		if !strings.HasPrefix(s, "v") {
			return "v" + s
		}
		return s
	}
	return semver.Compare(norm(a), norm(b))
}
