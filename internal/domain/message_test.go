package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageDecodeDispatchesOnCapability(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Payload
	}{
		{
			name: "prompt refine",
			raw:  `{"id":"m1","capability":"prompt-refine","threadId":"t","payload":{"userRequest":"make a button","context":{"code":"x","filePath":"a.ts"}}}`,
			want: PromptRefinePayload{UserRequest: "make a button", Context: RequestContext{Code: "x", FilePath: "a.ts"}},
		},
		{
			name: "ui gen",
			raw:  `{"id":"m2","capability":"ui-gen","threadId":"t","payload":{"prompt":"p","metadata":{"theme":"dark"}}}`,
			want: UIGenPayload{Prompt: "p", Metadata: map[string]any{"theme": "dark"}},
		},
		{
			name: "error flag",
			raw:  `{"id":"m3","capability":"error-flag","threadId":"t","payload":{"code":"eval(x)","filePath":"b.js"}}`,
			want: ErrorFlagPayload{Code: "eval(x)", FilePath: "b.js"},
		},
		{
			name: "code fix",
			raw:  `{"id":"m4","capability":"code-fix","threadId":"t","payload":{"filePath":"c.ts","code":"x","errors":[{"line":1,"message":"possible undefined access","type":"bug"}]}}`,
			want: CodeFixPayload{FilePath: "c.ts", Code: "x", Errors: []ErrorFlag{{Line: 1, Message: "possible undefined access", Type: IssueBug}}},
		},
		{
			name: "null payload",
			raw:  `{"id":"m5","capability":"ui-gen","threadId":"t","payload":null}`,
			want: UIGenPayload{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &m))
			assert.Equal(t, tt.want, m.Payload)
			assert.Equal(t, tt.want.Capability(), m.Capability)
			assert.Equal(t, "t", m.ThreadID)
		})
	}
}

func TestMessageDecodeUnknownCapability(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"m","capability":"deploy","payload":{}}`), &m)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMessageEncodeWireShape(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := Message{
		ID:         "01J",
		Capability: CapabilityErrorFlag,
		Payload:    ErrorFlagPayload{Code: "var x"},
		Timestamp:  ts,
		ThreadID:   "thread-1",
	}
	data, err := json.Marshal(AgentRequest{Message: m, Thread: []Message{m}})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	msg := generic["message"].(map[string]any)
	assert.Equal(t, "error-flag", msg["capability"])
	assert.Equal(t, "thread-1", msg["threadId"])
	assert.Equal(t, "var x", msg["payload"].(map[string]any)["code"])
	assert.Len(t, generic["thread"], 1)

	var back AgentRequest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Payload, back.Message.Payload)
	assert.True(t, ts.Equal(back.Message.Timestamp))
}

func TestDecodeResponse(t *testing.T) {
	r, err := DecodeResponse(CapabilityPromptRefine, []byte(`{"prompt":"refined","improvements":["a"],"extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, PromptRefineResponse{Prompt: "refined", Improvements: []string{"a"}}, r)

	r, err = DecodeResponse(CapabilityErrorFlag, []byte(`{"flags":[{"line":1,"message":"possible undefined access"}]}`))
	require.NoError(t, err)
	assert.Len(t, r.(ErrorFlagResponse).Flags, 1)

	_, err = DecodeResponse(CapabilityUIGen, []byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeResponse("bogus", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestWorkflowResultJSON(t *testing.T) {
	res := WorkflowResult{ThreadID: "t", RefinedPrompt: "p", Errors: []ErrorFlag{}}
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Contains(t, generic, "errors")
	assert.NotContains(t, generic, "fixes")
	assert.False(t, res.FixesApplied())
}
