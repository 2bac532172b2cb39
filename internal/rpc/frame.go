// Package rpc implements spec §6.1's wire protocol: Content-Length-framed
// JSON-RPC 2.0 messages read from and written to a single stream, with a
// sequential request/notification dispatch loop over the query, document,
// format, and config layers.
//
// Grounded on google-gapid's core/langsvr/protocol.Connection for the
// framing and method-dispatch shape (a readPacket/decode/dispatch split,
// a method name to request-type table), adapted down to a single
// goroutine: that connection runs a recvRoutine, a sendRoutine, and a
// select-driven dispatch loop concurrently, but spec §5 rules out
// concurrent access to the evaluator and document table for this server
// ("only the main task touches them"), so this package reads, dispatches,
// and writes one message at a time on the caller's own goroutine.
package rpc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readFrame reads one Content-Length-delimited message body from r (spec
// §6.1: "Each message is preceded by headers terminated by CRLF CRLF...
// Content-Type is tolerated and ignored").
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("rpc: malformed header %q", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if strings.EqualFold(name, "Content-Length") {
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("rpc: bad Content-Length %q: %w", value, err)
			}
			length = n
		}
		// Content-Type and any other header is tolerated and ignored.
	}
	if length < 0 {
		return nil, fmt.Errorf("rpc: missing Content-Length header")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// writeFrame writes body to w framed with a Content-Length header.
func writeFrame(w io.Writer, body []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
