package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/netq"
	"github.com/velmie/netq/internal/admin"
	"github.com/velmie/netq/mysql"
)

func TestExecuteVersionAndHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), []string{"version"}, &stdout, &stderr))
	require.Equal(t, netq.Version+"\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, execute(context.Background(), []string{"help"}, &stdout, &stderr))
	require.Contains(t, stdout.String(), "collect")
	require.Contains(t, stdout.String(), "migrate")
}

func TestExecuteUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitUsage, execute(context.Background(), nil, &stdout, &stderr))
	require.Equal(t, exitUsage, execute(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), `unknown command "frobnicate"`)

	stderr.Reset()
	require.Equal(t, exitUsage, execute(context.Background(), []string{"get", "--no-such-flag"}, &stdout, &stderr))

	stderr.Reset()
	require.Equal(t, exitUsage, execute(context.Background(), []string{"status", "-o", "xml"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "unknown output format")
}

func TestExecuteRequiresDSN(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitUsage, execute(context.Background(), []string{"status"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "dsn is required")
}

func TestExecuteSchema(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), []string{"schema", "--prefix", "app"}, &stdout, &stderr))

	want, err := mysql.Schema("app")
	require.NoError(t, err)
	require.Equal(t, want+"\n", stdout.String())

	require.Equal(t, exitFailure, execute(context.Background(), []string{"schema", "--prefix", "bad-name"}, &stdout, &stderr))
}

func TestParseHeaders(t *testing.T) {
	headers, err := parseHeaders([]string{"Content-Type: text/plain", "X-Empty:", "Authorization: Bearer a:b"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"Content-Type":  "text/plain",
		"X-Empty":       "",
		"Authorization": "Bearer a:b",
	}, headers)

	for _, bad := range []string{"NoColon", ": value"} {
		_, err := parseHeaders([]string{bad})
		require.ErrorIs(t, err, errUsage, bad)
	}
}

func TestReadBody(t *testing.T) {
	body, err := readBody("", "")
	require.NoError(t, err)
	require.Nil(t, body)

	body, err = readBody(`{"a":1}`, "")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(body))

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o600))
	body, err = readBody("", path)
	require.NoError(t, err)
	require.Equal(t, `[1,2]`, string(body))

	_, err = readBody("x", path)
	require.ErrorIs(t, err, errUsage)
}

func TestParseIDArg(t *testing.T) {
	id, err := parseIDArg([]string{"42"})
	require.NoError(t, err)
	require.Equal(t, netq.ID(42), id)

	_, err = parseIDArg(nil)
	require.ErrorIs(t, err, errUsage)
	_, err = parseIDArg([]string{"-1"})
	require.ErrorIs(t, err, netq.ErrInvalidID)
}

func TestPrinter(t *testing.T) {
	resp := netq.Response{ID: 7, Status: netq.StatusError, Error: "Couldn't connect to server"}
	view := admin.NewCollectionView(netq.Collection{Status: netq.CollectError, Message: resp.Error, Response: &resp})

	var buf bytes.Buffer
	p, err := newPrinter("yaml", &buf)
	require.NoError(t, err)
	require.NoError(t, p.print(view))
	require.Contains(t, buf.String(), "status: ERROR\n")
	require.Contains(t, buf.String(), "message: Couldn't connect to server\n")
	require.Contains(t, buf.String(), "  status: error\n")

	buf.Reset()
	p, err = newPrinter("", &buf)
	require.NoError(t, err)
	require.NoError(t, p.print(enqueued{ID: 3}))
	require.JSONEq(t, `{"id":"3"}`, buf.String())
}

func TestStatusView(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	view := newStatusView(mysql.WorkerState{Instance: "a", StartedAt: now, HeartbeatAt: now}, true, 3)
	require.True(t, view.Up)
	require.Equal(t, &now, view.StartedAt)
	require.Nil(t, view.ExitedAt)
	require.Equal(t, 3, view.Pending)
}
