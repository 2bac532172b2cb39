package rpc

import "encoding/json"

// envelope is the common shape every incoming message parses into first
// (spec §6.1's three message shapes all share these fields; params is
// decoded per-method once the method name is known).
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (e envelope) isRequest() bool { return len(e.ID) > 0 && e.ID != nil }

// responseError mirrors a JSON-RPC 2.0 error object.
type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// response is the shape written back for every request (spec §6.1's
// Response row: "result" or "error", never both). A successful response
// always carries a "result" key, even when its value is null (spec's
// shutdown row: "Reply null" means the key is present with a JSON null,
// not that the key is absent), so Result has no omitempty; dispatch
// writes an error response with the separate errorResponse type instead.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *responseError  `json:"error,omitempty"`
}

// errorResponse is the wire shape for a JSON-RPC error response, which
// must not carry a "result" key at all.
type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *responseError  `json:"error"`
}

// Wire shapes for params and results. Field names follow the textDocument
// LSP convention the spec's method table itself uses; position.Position
// fields are already zero-based, matching "Positions are zero-based"
// verbatim, so no translation happens at this boundary.

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentItem struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

type wirePosition struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type wireRange struct {
	Start wirePosition `json:"start"`
	End   wirePosition `json:"end"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type contentChange struct {
	Text  string     `json:"text"`
	Range *wireRange `json:"range,omitempty"`
}

type didChangeParams struct {
	TextDocument   textDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange        `json:"contentChanges"`
}

type didSaveParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textDocumentPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     wirePosition           `json:"position"`
}

type textDocumentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

// Result shapes.

type markupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type hoverResult struct {
	Contents markupContent `json:"contents"`
}

type location struct {
	URI   string    `json:"uri"`
	Range wireRange `json:"range"`
}

type completionItem struct {
	Label string `json:"label"`
}

type diagnosticItem struct {
	Range   wireRange `json:"range"`
	Message string    `json:"message"`
}

type diagnosticReport struct {
	Kind  string           `json:"kind"`
	Items []diagnosticItem `json:"items"`
}

type textEdit struct {
	Range   wireRange `json:"range"`
	NewText string    `json:"newText"`
}

type serverCapabilities struct {
	TextDocumentSync           int                       `json:"textDocumentSync"`
	HoverProvider              bool                      `json:"hoverProvider"`
	DefinitionProvider         bool                      `json:"definitionProvider"`
	CompletionProvider         completionProviderOptions `json:"completionProvider"`
	DiagnosticProvider         diagnosticProviderOptions `json:"diagnosticProvider"`
	DocumentFormattingProvider bool                      `json:"documentFormattingProvider"`
}

type completionProviderOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
}

type diagnosticProviderOptions struct {
	InterFileDependencies bool `json:"interFileDependencies"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfo         `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
