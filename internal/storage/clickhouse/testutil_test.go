package clickhouse

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const initDir = "/docker-entrypoint-initdb.d"

// startClickhouse runs a ClickHouse container whose entrypoint creates the
// receipt schema in the default database, and returns a connection to it.
func startClickhouse(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping clickhouse container test in short mode")
	}
	ctx := context.Background()

	schema, err := filepath.Glob(filepath.Join("..", "migrations", "clickhouse", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, schema, "no receipt migrations found")

	var files []testcontainers.ContainerFile
	for _, path := range schema {
		files = append(files, testcontainers.ContainerFile{
			HostFilePath:      path,
			ContainerFilePath: initDir + "/" + filepath.Base(path),
			FileMode:          0o644,
		})
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp", "8123/tcp"},
			Files:        files,
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			// The init pass runs on a loopback-only server; the HTTP ping
			// answers once the real server listens.
			WaitingFor: wait.ForAll(
				wait.ForHTTP("/ping").WithPort("8123/tcp"),
				wait.ForListeningPort("9000/tcp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate clickhouse container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s/default", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
