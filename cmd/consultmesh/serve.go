package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/consultmesh"
	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/logging"
)

// maxLineBytes bounds one protocol request (inline code context included).
const maxLineBytes = 16 << 20

// Protocol methods.
const (
	methodConsult      = "consult_gemini"
	methodListSessions = "list_sessions"
	methodEndSession   = "end_session"
)

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Kind      core.Kind `json:"kind"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	Retryable bool      `json:"retryable"`
}

type consultParams struct {
	core.ConsultRequest
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

type consultResult struct {
	*core.ConsultResult
	Text string `json:"text"`
}

type listResult struct {
	Sessions []core.SessionSummary `json:"sessions"`
	Text     string                `json:"text"`
}

type endParams struct {
	SessionID string `json:"session_id"`
}

type endResult struct {
	SessionID string `json:"session_id"`
	Ended     bool   `json:"ended"`
	Text      string `json:"text"`
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve consultations as JSON lines on stdin/stdout",
		Long: `Reads one JSON request per line from stdin and writes one JSON response
per line to stdout. Logs go to stderr.

  {"id":1,"method":"consult_gemini","params":{"problem_description":"...","code_context":"...","specific_question":"..."}}
  {"id":2,"method":"list_sessions"}
  {"id":3,"method":"end_session","params":{"session_id":"..."}}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mesh, logger, err := opts.build(ctx)
			if err != nil {
				return err
			}
			mesh.Start(ctx)
			defer mesh.Close()

			srv := newServer(mesh, logger.WithComponent("server"))
			return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// server dispatches protocol requests to a Mesh. Requests run concurrently;
// responses are written one line at a time in completion order.
type server struct {
	mesh   *consultmesh.Mesh
	logger logging.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

func newServer(mesh *consultmesh.Mesh, logger logging.Logger) *server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &server{mesh: mesh, logger: logger}
}

// Serve handles requests from in until EOF or ctx ends, then waits for the
// requests still running.
func (s *server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.enc = json.NewEncoder(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			var req request
			if err := json.Unmarshal(line, &req); err != nil {
				s.write(response{ID: json.RawMessage("null"), Error: &wireError{Kind: core.KindInvalidRequest, Message: "malformed request: " + err.Error()}})
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.write(s.handle(ctx, req))
			}()
		}
	}
}

func (s *server) handle(ctx context.Context, req request) response {
	resp := response{ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	start := time.Now()
	result, err := s.dispatch(ctx, req)
	if err != nil {
		resp.Error = toWireError(err)
		s.logger.Warn("Request failed", "method", req.Method, "kind", string(resp.Error.Kind), "duration", time.Since(start), "error", err)
		return resp
	}
	s.logger.Debug("Request handled", "method", req.Method, "duration", time.Since(start))
	resp.Result = result
	return resp
}

func (s *server) dispatch(ctx context.Context, req request) (any, error) {
	switch req.Method {
	case methodConsult, "consult":
		var p consultParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.TimeoutSeconds > 0 {
			p.Timeout = time.Duration(p.TimeoutSeconds * float64(time.Second))
		}
		res, err := s.mesh.Consult(ctx, p.ConsultRequest)
		if err != nil {
			return nil, err
		}
		return consultResult{ConsultResult: res, Text: consultmesh.FormatAnswer(res)}, nil

	case methodListSessions:
		list := s.mesh.ListSessions()
		if list == nil {
			list = []core.SessionSummary{}
		}
		return listResult{Sessions: list, Text: consultmesh.FormatSessions(list)}, nil

	case methodEndSession:
		var p endParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" {
			return nil, &core.Error{Kind: core.KindInvalidRequest, Msg: "session_id is required"}
		}
		if err := s.mesh.EndSession(p.SessionID); err != nil {
			return nil, err
		}
		return endResult{SessionID: p.SessionID, Ended: true, Text: fmt.Sprintf("Session %s has been ended", p.SessionID)}, nil

	default:
		return nil, &core.Error{Kind: core.KindInvalidRequest, Msg: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func (s *server) write(resp response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.logger.Error("Writing response failed", "error", err)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &core.Error{Kind: core.KindInvalidRequest, Msg: "invalid params", Err: err}
	}
	return nil
}

func toWireError(err error) *wireError {
	we := &wireError{Kind: core.KindOf(err), Message: consultmesh.FriendlyError(err)}
	if we.Kind == "" {
		we.Kind = core.KindTransport
	}
	var cerr *core.Error
	if errors.As(err, &cerr) {
		we.SessionID = cerr.SessionID
	}
	we.Retryable = we.Kind.Retryable()
	return we
}
