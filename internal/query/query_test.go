package query

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"

	"nls.dev/nls/internal/document"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/runtime"
)

func TestCompletionListsAttrsKeysAfterSelectionDot(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{apple = 4; banana = 7; }.a", "")
	ev := runtime.NewEvaluator()
	items := Completion(d, position.Position{Line: 0, Column: 27}, ev)
	want := []CompletionItem{
		{Label: "apple"},
		{Label: "banana"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("completion items mismatch (-want +got):\n%s", diff)
	}
}

func TestCompletionFallsBackToLexicalScope(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "let x = 1; in y", "")
	ev := runtime.NewEvaluator()
	items := Completion(d, position.Position{Line: 0, Column: 14}, ev)
	names := map[string]bool{}
	for _, it := range items {
		names[it.Label] = true
	}
	qt.Assert(t, qt.IsTrue(names["x"]))
}

func TestHoverSelectionPrintsValueAndDefinitionPosition(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{ a = 1; b = 2; }.a", "")
	ev := runtime.NewEvaluator()
	h := Hover(d, position.Position{Line: 0, Column: 18}, ev)
	qt.Assert(t, qt.Not(qt.IsNil(h)))
	qt.Assert(t, qt.Equals(h.Markdown, "1"))
	qt.Assert(t, qt.Not(qt.IsNil(h.DefPos)))
	qt.Assert(t, qt.Equals(*h.DefPos, position.Position{Line: 0, Column: 2}))
}

func TestHoverFormalPrintsDeclaredDefault(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{a ? 5}: a", "")
	ev := runtime.NewEvaluator()
	h := Hover(d, position.Position{Line: 0, Column: 1}, ev)
	qt.Assert(t, qt.Not(qt.IsNil(h)))
	qt.Assert(t, qt.Equals(h.Markdown, "5"))
}

func TestHoverLambdaPrintsSignature(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{a, b}: a", "")
	ev := runtime.NewEvaluator()
	h := Hover(d, position.Position{Line: 0, Column: 0}, ev)
	qt.Assert(t, qt.Not(qt.IsNil(h)))
	qt.Assert(t, qt.Equals(h.Markdown, "{ a, b }: <function>"))
}

func TestDefinitionReusesHoverDefinitionPosition(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{ a = 1; b = 2; }.a", "")
	ev := runtime.NewEvaluator()
	defPos := Definition(d, position.Position{Line: 0, Column: 18}, ev)
	qt.Assert(t, qt.Not(qt.IsNil(defPos)))
	qt.Assert(t, qt.Equals(*defPos, position.Position{Line: 0, Column: 2}))
}

func TestDefinitionNilForBareVariableReference(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "let a = 1; in a", "")
	ev := runtime.NewEvaluator()
	defPos := Definition(d, position.Position{Line: 0, Column: 14}, ev)
	qt.Assert(t, qt.IsNil(defPos))
}

func TestDiagnosticsIncludesDuplicateAttributeParseDiagnostic(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{a = 2; a = 3;}", "")
	ev := runtime.NewEvaluator()
	diags := Diagnostics(d, ev)
	qt.Assert(t, qt.IsTrue(len(diags) > 0))
}

func TestDiagnosticsCleanForWellFormedDocument(t *testing.T) {
	d := document.Open("/tmp/plain.nix", "{ a = 1; }", "")
	ev := runtime.NewEvaluator()
	diags := Diagnostics(d, ev)
	qt.Assert(t, qt.Equals(len(diags), 0))
}

func TestDiagnosticsFlagsUnrecognisedFlakeAttribute(t *testing.T) {
	d := document.Open("/proj/flake.nix", `{ bogus = 1; outputs = { self }: self; }`, "")
	qt.Assert(t, qt.Equals(d.Kind, document.FileKindFlake))
	ev := runtime.NewEvaluator()
	diags := Diagnostics(d, ev)
	found := false
	for _, e := range diags {
		if e.Message == "unrecognised flake attribute 'bogus'" {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found))
}
