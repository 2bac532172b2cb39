// Package format implements spec §6.3's formatting handler: an external
// formatter binary is spawned per request, the document's source is
// written to its standard input, and its standard output is captured as
// the new document text on success.
//
// Grounded on google-gapid's core/os/shell.Cmd — a small builder over
// os/exec with Stdin/Stdout/Stderr fields and a blocking Run — adapted
// down to this package's single concern (pipe source in, capture output,
// report only success/failure) rather than that package's general
// cross-target process model.
package format

import (
	"bytes"
	"context"
	"os/exec"

	"nls.dev/nls/internal/config"
)

// Format runs the configured formatter (cmd, falling back to
// config.DefaultFormatter when cmd is empty) against source and returns
// its captured stdout. Spec §6.3: "on zero exit code returns the
// captured bytes as the new text. Non-zero exit or spawn failure yields
// a null formatting response" — both of those cases are reported here as
// a nil result, never as an error the caller must unwrap.
func Format(ctx context.Context, cmd []string, source []byte) []byte {
	if len(cmd) == 0 {
		cmd = config.DefaultFormatter
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Stdin = bytes.NewReader(source)
	var stdout bytes.Buffer
	c.Stdout = &stdout

	if err := c.Run(); err != nil {
		return nil
	}
	return stdout.Bytes()
}

// Idempotent runs the formatter twice, feeding the first run's output
// back in as the second run's input, and reports whether both agree
// (spec §8's round-trip property: "formatting a document twice produces
// the same text as formatting once"). It is a diagnostic helper, not
// part of the formatting response itself — a non-idempotent external
// formatter is a fact about that binary, not something this server can
// repair.
func Idempotent(ctx context.Context, cmd []string, source []byte) bool {
	once := Format(ctx, cmd, source)
	if once == nil {
		return false
	}
	twice := Format(ctx, cmd, once)
	if twice == nil {
		return false
	}
	return bytes.Equal(once, twice)
}
