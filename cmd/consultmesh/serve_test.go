package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/consultmesh"
	"github.com/hupe1980/consultmesh/internal/testutil"
	"github.com/hupe1980/consultmesh/model"
)

type wireResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
}

func newTestServer(t *testing.T) (*server, *model.MockModel) {
	t.Helper()
	mm := model.NewMockModel("mock", "mock")
	mesh, err := consultmesh.New(func(o *consultmesh.Options) {
		o.Model = mm
		o.RateInterval = 0
		o.Reader = testutil.NewMapReader(map[string]string{"/a.go": "package a"})
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mesh.Close() })
	return newServer(mesh, nil), mm
}

func run(t *testing.T, srv *server, lines ...string) map[int]wireResponse {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	got := map[int]wireResponse{}
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r wireResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got[r.ID] = r
	}
	return got
}

func TestServe_ConsultFollowUpListEnd(t *testing.T) {
	srv, _ := newTestServer(t)

	got := run(t, srv, `{"id":1,"method":"consult_gemini","params":{"problem_description":"p","code_context":"c","specific_question":"q1"}}`)
	require.Contains(t, got, 1)
	require.Nil(t, got[1].Error)
	var first struct {
		SessionID  string `json:"session_id"`
		TurnNumber int    `json:"turn_number"`
		Answer     string `json:"answer"`
		Text       string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(got[1].Result, &first))
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, 1, first.TurnNumber)
	assert.Contains(t, first.Text, "**Message #1**")

	got = run(t, srv,
		`{"id":2,"method":"consult_gemini","params":{"session_id":"`+first.SessionID+`","specific_question":"q2","attached_files":["/a.go","/missing.go"]}}`,
	)
	require.Nil(t, got[2].Error)
	var second struct {
		TurnNumber int `json:"turn_number"`
		FileErrors []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"file_errors"`
	}
	require.NoError(t, json.Unmarshal(got[2].Result, &second))
	assert.Equal(t, 2, second.TurnNumber)
	require.Len(t, second.FileErrors, 1)
	assert.Equal(t, "/missing.go", second.FileErrors[0].Path)
	assert.Equal(t, "file_unreadable", second.FileErrors[0].Kind)

	got = run(t, srv, `{"id":3,"method":"list_sessions"}`)
	assert.Contains(t, string(got[3].Result), first.SessionID)

	got = run(t, srv,
		`{"id":4,"method":"end_session","params":{"session_id":"`+first.SessionID+`"}}`,
	)
	require.Nil(t, got[4].Error)

	got = run(t, srv, `{"id":5,"method":"end_session","params":{"session_id":"`+first.SessionID+`"}}`)
	require.NotNil(t, got[5].Error)
	assert.Equal(t, "session_not_found", string(got[5].Error.Kind))
}

func TestServe_Errors(t *testing.T) {
	srv, mm := newTestServer(t)

	got := run(t, srv,
		`{"id":1,"method":"consult_gemini","params":{"specific_question":"q"}}`,
		`{"id":2,"method":"explode"}`,
		`{"id":3,"method":"consult_gemini","params":{"session_id":"nope","specific_question":"q"}}`,
		`{"id":4,"method":"end_session","params":{}}`,
		`{"id":5,"method":"consult_gemini","params":"not an object"}`,
	)
	require.Len(t, got, 5)
	assert.Equal(t, "missing_initial_context", string(got[1].Error.Kind))
	assert.Equal(t, "invalid_request", string(got[2].Error.Kind))
	assert.Equal(t, "session_not_found", string(got[3].Error.Kind))
	assert.Contains(t, got[3].Error.Message, "expired")
	assert.Equal(t, "invalid_request", string(got[4].Error.Kind))
	assert.Equal(t, "invalid_request", string(got[5].Error.Kind))
	assert.Empty(t, mm.Prompts())
}

func TestServe_MalformedLine(t *testing.T) {
	srv, _ := newTestServer(t)
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader("{oops\n"), &out))
	assert.Contains(t, out.String(), `"id":null`)
	assert.Contains(t, out.String(), "invalid_request")
}

func TestServe_ConcurrentSessions(t *testing.T) {
	srv, mm := newTestServer(t)
	lines := make([]string, 0, 4)
	for i := 1; i <= 4; i++ {
		lines = append(lines, `{"id":`+strconv.Itoa(i)+`,"method":"consult_gemini","params":{"problem_description":"p","code_context":"c","specific_question":"q"}}`)
	}
	got := run(t, srv, lines...)
	require.Len(t, got, 4)
	for _, r := range got {
		assert.Nil(t, r.Error)
	}
	assert.Len(t, mm.Prompts(), 4)
	assert.Len(t, srv.mesh.ListSessions(), 4)
}

func TestChat_StartsAndContinuesSession(t *testing.T) {
	mm := model.NewMockModel("mock", "mock")
	mesh, err := consultmesh.New(func(o *consultmesh.Options) {
		o.Model = mm
		o.RateInterval = 0
	})
	require.NoError(t, err)

	in := strings.NewReader("first question\nsecond question\n/sessions\n/end\n/quit\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), mesh, &chatOptions{problem: "problem"}, "func main() {}", in, &out))

	assert.Contains(t, out.String(), "Mock response #1")
	assert.Contains(t, out.String(), "Mock response #2")
	assert.Contains(t, out.String(), "ended")
	require.Len(t, mm.Prompts(), 2)
	assert.Contains(t, mm.Prompts()[1], "first question")
	assert.Empty(t, mesh.ListSessions())
}
