package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, " matrixd ", "test")
	logger.Info("matrix transaction committed", slog.String("op", "register"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "matrixd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "matrix transaction committed", line["message"])
	require.Equal(t, "register", line["op"])
	require.Contains(t, line, "timestamp")
	require.NotContains(t, line, "msg")
}

func TestNewOmitsEmptyEnv(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "matrixd", "").Warn("x")
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.NotContains(t, line, "env")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "secret").Value.String())
	require.Equal(t, RedactedValue, MaskField("signature", "0xabcdef").Value.String())
	require.Equal(t, "rpc", MaskField("component", "rpc").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.True(t, IsAllowlisted(" Reason "))
	require.True(t, IsAllowlisted("request-id"))
	require.True(t, IsAllowlisted("signer"))
	require.False(t, IsAllowlisted("passphrase"))
}
