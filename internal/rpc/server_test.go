package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHandlesRequestAndWritesResponse(t *testing.T) {
	d := newTestDispatcher(t, nil)
	s := NewServer(d, nil)

	params, err := json.Marshal(map[string]any{"content": "a note", "tier": "core", "scope": "global"})
	require.NoError(t, err)
	reqLine, err := json.Marshal(Request{JSONRPC: "2.0", ID: 1, Method: "store_memory", Params: params})
	require.NoError(t, err)

	in := bytes.NewBufferString(string(reqLine) + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Nil(t, resp.Error)
}

func TestServeSkipsNotificationsWithoutWritingResponse(t *testing.T) {
	d := newTestDispatcher(t, nil)
	s := NewServer(d, nil)

	reqLine, err := json.Marshal(Request{JSONRPC: "2.0", Method: "get_memory_stats"})
	require.NoError(t, err)

	in := bytes.NewBufferString(string(reqLine) + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))
	assert.Empty(t, strings.TrimSpace(out.String()))
}

func TestServeRecoversFromMalformedLine(t *testing.T) {
	d := newTestDispatcher(t, nil)
	s := NewServer(d, nil)

	in := bytes.NewBufferString("not json\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}
