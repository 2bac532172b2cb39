package format

import (
	"context"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestFormatReturnsStdoutOnZeroExit(t *testing.T) {
	out := Format(context.Background(), []string{"cat"}, []byte("{ a = 1; }"))
	qt.Assert(t, qt.Equals(string(out), "{ a = 1; }"))
}

func TestFormatReturnsNilOnNonZeroExit(t *testing.T) {
	out := Format(context.Background(), []string{"sh", "-c", "exit 1"}, []byte("{ a = 1; }"))
	qt.Assert(t, qt.IsNil(out))
}

func TestFormatReturnsNilOnSpawnFailure(t *testing.T) {
	out := Format(context.Background(), []string{"not-a-real-formatter-binary"}, []byte("{ a = 1; }"))
	qt.Assert(t, qt.IsNil(out))
}

func TestFormatFallsBackToDefaultFormatterWhenCmdEmpty(t *testing.T) {
	// cmd[0] resolving to a missing binary is indistinguishable, from the
	// caller's side, from one that happens to exit non-zero - both report
	// nil - so this only exercises that an empty cmd does not panic and
	// still reaches exec.CommandContext with config.DefaultFormatter.
	out := Format(context.Background(), nil, []byte("{ a = 1; }"))
	_ = out
}

func TestIdempotentTrueWhenTwoRunsAgree(t *testing.T) {
	qt.Assert(t, qt.IsTrue(Idempotent(context.Background(), []string{"cat"}, []byte("{ a = 1; }"))))
}

func TestIdempotentFalseWhenFormatterFails(t *testing.T) {
	qt.Assert(t, qt.IsFalse(Idempotent(context.Background(), []string{"sh", "-c", "exit 1"}, []byte("{ a = 1; }"))))
}
