package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("creditd", "test", Options{Output: &buf})
	logger.Info("credit: user liquidated", "user", "0xabc", "authorization", "Bearer x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "credit: user liquidated", line["message"])
	require.Equal(t, "creditd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("creditd", "", Options{Output: &buf, Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestSetupRotatesIntoFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "creditd.log")
	var buf bytes.Buffer
	logger := Setup("creditd", "", Options{Output: &buf, File: path, MaxSizeMB: 1})
	logger.Info("written twice")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "written twice")
	require.Contains(t, buf.String(), "written twice")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("Authorization", "Bearer x").Value.String())
	require.Equal(t, RedactedValue, MaskField("dsn", "postgres://u:p@db/credit").Value.String())
	require.Equal(t, "", MaskField("dsn", "").Value.String())
	require.Equal(t, "withdraw", MaskField("op", "withdraw").Value.String())
}

func TestShortAddress(t *testing.T) {
	require.Equal(t, "0x5aAe..eAed", ShortAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	require.Equal(t, "0xabc", ShortAddress("0xabc"))
	require.Equal(t, "main", ShortAddress("main"))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	return line
}

func TestSetupRedactsSecretsAndAccounts(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	const user = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	var buf bytes.Buffer
	logger := Setup("creditd", "test", Options{Output: &buf})
	logger.Error("creditd: request failed",
		"caller", user,
		"keeper", user,
		"authorization", "Bearer x",
		"dsn", "file:journal.db",
		"route", "/v1/borrow",
		"repaid", 10,
	)

	line := decodeLine(t, &buf)
	require.Equal(t, "0x5aAe..eAed", line["caller"])
	require.Equal(t, "0x5aAe..eAed", line["keeper"])
	require.Equal(t, RedactedValue, line["authorization"])
	require.Equal(t, RedactedValue, line["dsn"])
	require.Equal(t, "/v1/borrow", line["route"])
	require.EqualValues(t, 10, line["repaid"])
}

func TestSetupKeepsFullAddressesWhenAsked(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	const user = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	var buf bytes.Buffer
	logger := Setup("creditd", "test", Options{Output: &buf, FullAddresses: true})
	logger.Info("credit: user liquidated", "user", user, "token", "abc")

	line := decodeLine(t, &buf)
	require.Equal(t, user, line["user"])
	require.Equal(t, RedactedValue, line["token"])
}
