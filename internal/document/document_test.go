package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"nls.dev/nls/internal/config"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/runtime"
)

func TestClassifyFlakeFileBySuffix(t *testing.T) {
	qt.Assert(t, qt.Equals(Classify("/home/user/proj/flake.nix", nil), FileKindFlake))
}

func TestClassifyPackageFileByDefaultConvention(t *testing.T) {
	qt.Assert(t, qt.Equals(Classify("/home/user/proj/default.nix", nil), FileKindPackage))
}

func TestClassifyPlainFileOtherwise(t *testing.T) {
	qt.Assert(t, qt.Equals(Classify("/home/user/proj/lib.nix", nil), FileKindPlain))
}

func TestClassifyHonorsConfiguredPackagePatterns(t *testing.T) {
	stack := &config.Stack{PackageFilePatterns: []string{"pkg-*.nix"}}
	qt.Assert(t, qt.Equals(Classify("/x/pkg-foo.nix", stack), FileKindPackage))
	qt.Assert(t, qt.Equals(Classify("/x/default.nix", stack), FileKindPlain))
}

func TestOpenParsesLazily(t *testing.T) {
	d := Open("/tmp/does-not-exist/doc.nix", "1 + 1", "")
	qt.Assert(t, qt.Equals(d.state, StateUnparsed))
	root := d.Root()
	qt.Assert(t, qt.IsNotNil(root))
	qt.Assert(t, qt.Equals(d.state, StateParsed))
}

func TestChangeInvalidatesParse(t *testing.T) {
	d := Open("/tmp/does-not-exist/doc.nix", "1", "")
	d.EnsureParsed()
	qt.Assert(t, qt.Equals(d.state, StateParsed))

	d.Change([]ContentChange{{Text: "2"}})
	qt.Assert(t, qt.Equals(d.state, StateUnparsed))
	qt.Assert(t, qt.Equals(string(d.Source), "2"))
}

func TestChangeAppliesRangeEdit(t *testing.T) {
	d := Open("/tmp/does-not-exist/doc.nix", "let a = 1; in a", "")
	rng := position.Range{
		Start: position.Position{Line: 0, Column: 8},
		End:   position.Position{Line: 0, Column: 9},
	}
	d.Change([]ContentChange{{Text: "2", Range: &rng}})
	qt.Assert(t, qt.Equals(string(d.Source), "let a = 2; in a"))
}

func TestStoreDidOpenGetDidClose(t *testing.T) {
	s := NewStore()
	s.DidOpen("/tmp/x/doc.nix", "1", "")
	qt.Assert(t, qt.IsNotNil(s.Get("/tmp/x/doc.nix")))
	s.DidClose("/tmp/x/doc.nix")
	qt.Assert(t, qt.IsNil(s.Get("/tmp/x/doc.nix")))
}

func TestFlakeDiagnosticsFlagsUnknownKey(t *testing.T) {
	root := t.TempDir()
	flakePath := filepath.Join(root, "flake.nix")
	qt.Assert(t, qt.IsNil(os.WriteFile(flakePath, []byte(`{ description = "x"; bogus = 1; outputs = x: x; }`), 0o644)))

	d := Open(flakePath, `{ description = "x"; bogus = 1; outputs = x: x; }`, "")
	qt.Assert(t, qt.Equals(d.Kind, FileKindFlake))

	ev := runtime.NewEvaluator()
	diags := d.FlakeDiagnostics(ev)
	qt.Assert(t, qt.Equals(len(diags), 1))
}

func TestFlakeDiagnosticsAcceptsRecognizedKeys(t *testing.T) {
	d := Open("/tmp/proj/flake.nix", `{ description = "x"; outputs = x: x; }`, "")
	ev := runtime.NewEvaluator()
	diags := d.FlakeDiagnostics(ev)
	qt.Assert(t, qt.Equals(len(diags), 0))
}

func TestFlakeDiagnosticsFlagsMalformedVersionRef(t *testing.T) {
	src := `{ description = "x"; inputs = { nixpkgs = { url = "github:x"; ref = "v1.2.3.4"; }; }; outputs = x: x; }`
	d := Open("/tmp/proj/flake.nix", src, "")
	ev := runtime.NewEvaluator()
	diags := d.FlakeDiagnostics(ev)
	qt.Assert(t, qt.Equals(len(diags), 1))
	qt.Assert(t, qt.IsTrue(strings.Contains(diags[0].Message, "malformed version ref")))
}

func TestFlakeDiagnosticsFlagsOlderPinnedRefForSameURL(t *testing.T) {
	src := `{ description = "x"; inputs = { a = { url = "github:x"; ref = "v2.0.0"; }; b = { url = "github:x"; ref = "v1.0.0"; }; }; outputs = x: x; }`
	d := Open("/tmp/proj/flake.nix", src, "")
	ev := runtime.NewEvaluator()
	diags := d.FlakeDiagnostics(ev)
	qt.Assert(t, qt.Equals(len(diags), 1))
	qt.Assert(t, qt.IsTrue(strings.Contains(diags[0].Message, "pins an older ref")))
}
