package processor

import (
	"bytes"
	"strings"
)

var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("HEAD "),
	[]byte("DELETE "), []byte("OPTIONS "), []byte("CONNECT "), []byte("PATCH "), []byte("TRACE "),
}

// HTTPRequest is the request line and header layout of an HTTP/1.x request.
type HTTPRequest struct {
	Method    string
	URI       string
	Version   string
	Host      string
	UserAgent string
	Headers   []string // header names, in order, lower-cased
	String    string
}

// parseHTTPRequest parses a request head at the start of a TCP payload.
func parseHTTPRequest(payload []byte) *HTTPRequest {
	isRequest := false
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			isRequest = true
			break
		}
	}
	if !isRequest {
		return nil
	}

	line, rest, ok := bytes.Cut(payload, []byte("\r\n"))
	if !ok {
		return nil
	}
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return nil
	}
	req := &HTTPRequest{Method: parts[0], URI: parts[1], Version: parts[2]}

	for len(rest) > 0 {
		var hdr []byte
		hdr, rest, ok = bytes.Cut(rest, []byte("\r\n"))
		if len(hdr) == 0 || !ok {
			break
		}
		name, value, found := bytes.Cut(hdr, []byte(":"))
		if !found {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(string(name)))
		req.Headers = append(req.Headers, key)
		switch key {
		case "host":
			req.Host = strings.TrimSpace(string(value))
		case "user-agent":
			req.UserAgent = strings.TrimSpace(string(value))
		}
	}

	var b strings.Builder
	b.WriteString("(" + req.Method + ")(" + req.Version + ")(")
	for _, h := range req.Headers {
		b.WriteString("(" + h + ")")
	}
	b.WriteByte(')')
	req.String = b.String()
	return req
}
