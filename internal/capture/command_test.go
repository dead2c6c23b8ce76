package capture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandWireFormat(t *testing.T) {
	tests := []struct {
		cmd  Command
		wire string
	}{
		{Start("/rec/a.wav"), `{"Start":"/rec/a.wav"}`},
		{Stop(), `"Stop"`},
		{Status(), `"Status"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.cmd)
		require.NoError(t, err)
		assert.JSONEq(t, tt.wire, string(data))

		var decoded Command
		require.NoError(t, json.Unmarshal([]byte(tt.wire), &decoded))
		assert.Equal(t, tt.cmd, decoded)
	}
}

func TestResponseWireFormat(t *testing.T) {
	tests := []struct {
		resp Response
		wire string
	}{
		{Ok(), `"Ok"`},
		{StatusOf("Listening"), `{"Status":"Listening"}`},
		{Errorf(MsgAlreadyRecording), `{"Error":"Already recording"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.resp)
		require.NoError(t, err)
		assert.JSONEq(t, tt.wire, string(data))

		var decoded Response
		require.NoError(t, json.Unmarshal([]byte(tt.wire), &decoded))
		assert.Equal(t, tt.resp, decoded)
	}
}

func TestCommandDecodeErrors(t *testing.T) {
	bad := []string{
		`"Launch"`,
		`{"Start":42}`,
		`{"Start":"/a","Stop":null}`,
		`{"Stop":"/a"}`,
		`"Start"`,
		`[1,2]`,
		`{}`,
	}

	for _, input := range bad {
		var cmd Command
		assert.Error(t, json.Unmarshal([]byte(input), &cmd), "input %s", input)
	}
}

func TestResponseString(t *testing.T) {
	assert.Equal(t, "Ok", Ok().String())
	assert.Equal(t, "Error(Not recording)", Errorf(MsgNotRecording).String())
	assert.Equal(t, "Start(/x.wav)", Start("/x.wav").String())
}
