package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nls.dev/nls/internal/document"
	"nls.dev/nls/internal/format"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/query"
	"nls.dev/nls/internal/runtime"
)

// errExit is returned internally by the exit handler to unwind Serve's
// loop (spec §6.1's exit row: "Terminate the loop").
var errExit = errors.New("rpc: exit")

// Server drives spec §6.1's request/notification loop over a single
// stream. Its document table and evaluator are shared process-wide state
// (spec §5), touched only from the goroutine that calls Serve.
type Server struct {
	store              *document.Store
	ev                 *runtime.Evaluator
	installResourceDir string
	sessionID          string
	log                *slog.Logger

	shutdown bool
}

// NewServer returns a Server ready to serve one connection. log may be
// nil, in which case slog.Default() is used (matching internal/httplog's
// own nil-logger fallback convention).
func NewServer(installResourceDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:              document.NewStore(),
		ev:                 runtime.NewEvaluator(),
		installResourceDir: installResourceDir,
		sessionID:          uuid.NewString(),
		log:                log,
	}
}

// Serve reads framed messages from r and writes framed responses to w
// until an exit notification arrives, the stream closes, or ctx is
// cancelled. It is intentionally sequential: spec §5 rules out concurrent
// access to the evaluator and document table, so one message is read,
// dispatched, and (if it was a request) answered before the next is read.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	in := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		body, err := readFrame(in)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			s.log.Error("rpc", "event", "decode", "error", err.Error())
			continue // protocol error: abort this message, loop continues.
		}

		if err := s.dispatch(ctx, w, env); err != nil {
			if err == errExit {
				return nil
			}
			return err
		}
	}
}

// dispatch handles one decoded envelope, logging and (for requests)
// writing a response. A handler panic or malformed params is a protocol
// error under spec §7: it aborts this message only.
func (s *Server) dispatch(ctx context.Context, w io.Writer, env envelope) error {
	start := time.Now()
	result, rpcErr, handlerErr := s.safeHandle(ctx, env)
	duration := time.Since(start)

	logArgs := []any{"event", "message", "method", env.Method, "duration_ms", duration.Milliseconds()}
	if len(env.ID) > 0 {
		logArgs = append(logArgs, "id", string(env.ID))
	}
	switch {
	case handlerErr != nil && handlerErr != errExit:
		logArgs = append(logArgs, "error", handlerErr.Error())
	case rpcErr != nil:
		logArgs = append(logArgs, "error", rpcErr.Message)
	}
	s.log.Info("rpc", logArgs...)

	if handlerErr == errExit {
		return errExit
	}
	if !env.isRequest() {
		return nil
	}

	var out []byte
	var err error
	if rpcErr != nil {
		out, err = json.Marshal(errorResponse{JSONRPC: "2.0", ID: env.ID, Error: rpcErr})
	} else {
		out, err = json.Marshal(response{JSONRPC: "2.0", ID: env.ID, Result: result})
	}
	if err != nil {
		return err
	}
	return writeFrame(w, out)
}

// safeHandle contains a panic from any handler to this one message,
// grounded on google-gapid's Connection.recvRoutine/sendRoutine recover
// pattern: a handler bug becomes a protocol-error response rather than
// taking down the whole Serve loop.
func (s *Server) safeHandle(ctx context.Context, env envelope) (result any, rpcErr *responseError, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, nil
			rpcErr = &responseError{Code: -32603, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	return s.handle(ctx, env)
}

// handle runs the method named by env, returning the result to place in a
// response (for requests), a JSON-RPC error object, or a fatal error that
// should unwind Serve (only errExit qualifies).
func (s *Server) handle(ctx context.Context, env envelope) (any, *responseError, error) {
	if s.shutdown && env.Method != "exit" {
		if env.isRequest() {
			return nil, &responseError{Code: -32600, Message: "server is shutting down"}, nil
		}
		return nil, nil, nil
	}

	switch env.Method {
	case "initialize":
		return s.onInitialize(), nil, nil

	case "shutdown":
		s.shutdown = true
		return nil, nil, nil

	case "exit":
		return nil, nil, errExit

	case "textDocument/didOpen":
		var p didOpenParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		s.store.DidOpen(p.TextDocument.URI, p.TextDocument.Text, s.installResourceDir)
		return nil, nil, nil

	case "textDocument/didChange":
		var p didChangeParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		doc := s.store.Get(p.TextDocument.URI)
		if doc == nil {
			return nil, nil, nil
		}
		changes := make([]document.ContentChange, len(p.ContentChanges))
		for i, c := range p.ContentChanges {
			changes[i] = document.ContentChange{Text: c.Text, Range: toInternalRange(c.Range)}
		}
		doc.Change(changes)
		return nil, nil, nil

	case "textDocument/didSave":
		var p didSaveParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		if doc := s.store.Get(p.TextDocument.URI); doc != nil {
			doc.Refresh(s.installResourceDir)
		}
		return nil, nil, nil

	case "textDocument/hover":
		var p textDocumentPositionParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		return s.onHover(p), nil, nil

	case "textDocument/definition":
		var p textDocumentPositionParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		return s.onDefinition(p), nil, nil

	case "textDocument/completion":
		var p textDocumentPositionParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		return s.onCompletion(p), nil, nil

	case "textDocument/diagnostic":
		var p textDocumentParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		return s.onDiagnostic(p), nil, nil

	case "textDocument/formatting":
		var p textDocumentParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, protocolError(err), nil
		}
		return s.onFormatting(ctx, p), nil, nil

	default:
		if env.isRequest() {
			return nil, &responseError{Code: -32601, Message: "method not found: " + env.Method}, nil
		}
		return nil, nil, nil
	}
}

func protocolError(err error) *responseError {
	return &responseError{Code: -32700, Message: "parse error: " + err.Error()}
}

func (s *Server) onInitialize() initializeResult {
	return initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync:           2,
			HoverProvider:              true,
			DefinitionProvider:         true,
			CompletionProvider:         completionProviderOptions{TriggerCharacters: []string{"."}},
			DiagnosticProvider:         diagnosticProviderOptions{InterFileDependencies: false},
			DocumentFormattingProvider: true,
		},
		ServerInfo: serverInfo{Name: "nlsd", Version: s.sessionID},
	}
}

func (s *Server) onHover(p textDocumentPositionParams) any {
	doc := s.store.Get(p.TextDocument.URI)
	if doc == nil {
		return nil
	}
	h := query.Hover(doc, toInternalPosition(p.Position), s.ev)
	if h == nil {
		return nil
	}
	return hoverResult{Contents: markupContent{Kind: "markdown", Value: h.Markdown}}
}

func (s *Server) onDefinition(p textDocumentPositionParams) any {
	doc := s.store.Get(p.TextDocument.URI)
	if doc == nil {
		return nil
	}
	defPos := query.Definition(doc, toInternalPosition(p.Position), s.ev)
	if defPos == nil {
		return nil
	}
	return location{URI: p.TextDocument.URI, Range: toWireRange(position.Range{Start: *defPos, End: *defPos})}
}

func (s *Server) onCompletion(p textDocumentPositionParams) any {
	doc := s.store.Get(p.TextDocument.URI)
	if doc == nil {
		return nil
	}
	items := query.Completion(doc, toInternalPosition(p.Position), s.ev)
	out := make([]completionItem, len(items))
	for i, it := range items {
		out[i] = completionItem{Label: it.Label}
	}
	return out
}

func (s *Server) onDiagnostic(p textDocumentParams) any {
	doc := s.store.Get(p.TextDocument.URI)
	if doc == nil {
		return diagnosticReport{Kind: "full", Items: []diagnosticItem{}}
	}
	diags := query.Diagnostics(doc, s.ev)
	items := make([]diagnosticItem, len(diags))
	for i, d := range diags {
		items[i] = diagnosticItem{Range: toWireRange(d.Range), Message: d.Message}
	}
	return diagnosticReport{Kind: "full", Items: items}
}

func (s *Server) onFormatting(ctx context.Context, p textDocumentParams) any {
	doc := s.store.Get(p.TextDocument.URI)
	if doc == nil {
		return nil
	}
	var cmd []string
	if doc.ConfigStack != nil {
		cmd = doc.ConfigStack.FormatterCommand
	}
	out := format.Format(ctx, cmd, doc.Source)
	if out == nil {
		return nil
	}
	whole := wholeDocumentRange(doc.Source)
	return []textEdit{{Range: whole, NewText: string(out)}}
}

func toInternalPosition(p wirePosition) position.Position {
	return position.Position{Line: p.Line, Column: p.Character}
}

func toWirePosition(p position.Position) wirePosition {
	return wirePosition{Line: p.Line, Character: p.Column}
}

func toWireRange(r position.Range) wireRange {
	return wireRange{Start: toWirePosition(r.Start), End: toWirePosition(r.End)}
}

func toInternalRange(r *wireRange) *position.Range {
	if r == nil {
		return nil
	}
	return &position.Range{Start: toInternalPosition(r.Start), End: toInternalPosition(r.End)}
}

// wholeDocumentRange reports the [0,0)-to-end-of-file range a formatting
// response replaces (spec §6.1: "a single-edit array [{range: whole-doc,
// newText}]").
func wholeDocumentRange(src []byte) wireRange {
	line, col := uint32(0), uint32(0)
	for _, b := range src {
		if b == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return wireRange{
		Start: wirePosition{Line: 0, Character: 0},
		End:   wirePosition{Line: line, Character: col},
	}
}
