// Package cgi runs CGI/1.1 executables on behalf of a parsed request.
//
// A call is synchronous: the process is spawned, fed the request body on
// stdin, drained and reaped before Call returns. With a zero Timeout the
// caller blocks for the full lifetime of the child.
package cgi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/acl"
	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/request"
)

// ErrUnreachable is returned when the executable cannot be started or is
// killed by the timeout.
var ErrUnreachable = errors.New("cgi: origin is unreachable")

// Invocation describes one call.
type Invocation struct {
	// Path of the executable.
	Path string
	// Args is a command-line argument string split on white space.
	Args string
	// Env is merged over the process environment and the CGI defaults.
	Env  map[string]string
	Body []byte
	Dir  string
	// Timeout bounds the child lifetime. Zero means no bound.
	Timeout time.Duration
}

// Result is the split output of a finished process.
type Result struct {
	// RawHeader is the header section as written, terminator excluded.
	RawHeader string
	Header    request.Header
	Body      []byte
	ExitCode  int
	Duration  time.Duration
}

// DefaultEnv returns the CGI variables every invocation starts from.
func DefaultEnv(path, software string) map[string]string {
	name := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		name = path[i+1:]
	}
	return map[string]string{
		"CONTENT_TYPE":      "application/x-www-form-urlencoded",
		"CONTENT_LENGTH":    "0",
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_NAME":       "",
		"SERVER_SOFTWARE":   software,
		"SERVER_PROTOCOL":   "HTTP/1.1",
		"SERVER_PORT":       "80",
		"PATH_INFO":         "",
		"PATH_TRANSLATED":   path,
		"SCRIPT_NAME":       name,
		"DOCUMENT_ROOT":     name,
		"REQUEST_METHOD":    "GET",
		"REQUEST_URI":       "",
		"QUERY_STRING":      "",
		"REMOTE_HOST":       "127.0.0.1",
		"REMOTE_ADDR":       "127.0.0.1",
		"AUTH_TYPE":         "",
		"REMOTE_USER":       "",
		"HTTP_ACCEPT":       "text/html,application/xhtml,application/xml",
		"HTTP_USER_AGENT":   software,
		"HTTP_REFERER":      "",
		"HTTP_COOKIE":       "",
		"HTTPS":             "",
	}
}

// Server identifies the gateway to the child.
type Server struct {
	Name     string
	Software string
	Port     int
}

// EnvFromRequest maps request metadata onto CGI variables.
func EnvFromRequest(r *request.Request, srv Server) map[string]string {
	env := map[string]string{
		"REQUEST_METHOD":  r.Method,
		"SERVER_PORT":     strconv.Itoa(srv.Port),
		"PATH_INFO":       r.Path,
		"REQUEST_URI":     r.Target,
		"REMOTE_HOST":     acl.HostOnly(r.RemoteAddr),
		"REMOTE_ADDR":     acl.HostOnly(r.RemoteAddr),
		"REMOTE_USER":     r.User(),
		"HTTP_USER_AGENT": r.UserAgent(),
		"HTTP_REFERER":    r.Referer(),
		"SERVER_NAME":     srv.Name,
	}
	if srv.Software != "" {
		env["SERVER_SOFTWARE"] = srv.Software
	}
	if v := r.ContentType(); v != "" {
		env["CONTENT_TYPE"] = v
	}
	if v, ok := r.Header.Lookup("Content-Length"); ok {
		env["CONTENT_LENGTH"] = v
	} else {
		env["CONTENT_LENGTH"] = strconv.Itoa(len(r.Body))
	}
	if _, query, ok := strings.Cut(r.Target, "?"); ok && query != "" {
		env["QUERY_STRING"] = query
	}
	if r.Authorization() != "" {
		env["AUTH_TYPE"] = "Basic"
	}
	if v := r.Accept(); v != "" {
		env["HTTP_ACCEPT"] = v
	}
	if v := r.Cookie(); v != "" {
		env["HTTP_COOKIE"] = v
	}
	return env
}

// Call spawns inv.Path and waits for it to exit. A non-zero exit status is
// not an error: whatever the child wrote is still returned.
func Call(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Path, strings.Fields(inv.Args)...)
	cmd.Dir = inv.Dir
	cmd.Env = buildEnv(inv)
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if len(inv.Body) > 0 {
		cmd.Stdin = bytes.NewReader(inv.Body)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, inv.Path, ctx.Err())
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, inv.Path, err)
		}
	}

	raw, header, body := ParseOutput(stdout.Bytes())
	logging.Debug("CGI process finished",
		zap.String("path", inv.Path),
		zap.Int("exit_code", exitCode),
		zap.Int("header_bytes", len(raw)),
		zap.Int("body_bytes", len(body)),
		zap.Duration("duration", elapsed),
	)

	return &Result{
		RawHeader: raw,
		Header:    header,
		Body:      body,
		ExitCode:  exitCode,
		Duration:  elapsed,
	}, nil
}

func buildEnv(inv Invocation) []string {
	vars := DefaultEnv(inv.Path, "aprsgate")
	for k, v := range inv.Env {
		vars[k] = v
	}
	if len(inv.Body) > 0 {
		vars["CONTENT_LENGTH"] = strconv.Itoa(len(inv.Body))
		vars["REQUEST_METHOD"] = "POST"
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Process environment first so that later CGI entries win.
	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// ParseOutput splits child output into a header section and a body.
//
// Output starting with '\n' has no header section and the body follows that
// newline. Output starting with '<' is all body. Otherwise the header ends at
// the first "\n\n" or "\r\n\r\n"; with no terminator the whole output is
// header and the body is empty.
func ParseOutput(out []byte) (raw string, header request.Header, body []byte) {
	if len(out) == 0 {
		return "", nil, nil
	}
	switch out[0] {
	case '\n':
		return "", nil, out[1:]
	case '<':
		return "", nil, out
	}

	end, skip := -1, 0
	if i := bytes.Index(out, []byte("\n\n")); i >= 0 {
		end, skip = i, 2
	}
	if i := bytes.Index(out, []byte("\r\n\r\n")); i >= 0 && (end < 0 || i < end) {
		end, skip = i, 4
	}
	if end < 0 {
		raw = string(out)
		return raw, request.ParseHeader(raw), nil
	}

	raw = string(out[:end])
	return raw, request.ParseHeader(raw), out[end+skip:]
}
