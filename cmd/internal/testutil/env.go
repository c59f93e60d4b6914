//go:build integration

// Package testutil provides a MySQL-backed netq environment for the binaries' integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/velmie/netq"
	"github.com/velmie/netq/mysql"
)

const (
	mysqlImage     = "mysql:8.0.36"
	mysqlDatabase  = "netq"
	mysqlPassword  = "secret"
	mysqlAlias     = "mysql"
	mysqlPort      = nat.Port("3306/tcp")
	tablePrefix    = "netq"
	startupTimeout = 2 * time.Minute
)

// Env is a MySQL server holding the netq tables. Tests reach it through DB and
// HostDSN; binaries started with RunCLI reach it through DSN.
type Env struct {
	DB      *sql.DB
	DSN     string
	HostDSN string
	Prefix  string

	network string
}

// StartEnv starts MySQL on a private network and creates the netq schema.
// The test is skipped when Docker is unavailable.
func StartEnv(t *testing.T, ctx context.Context) *Env {
	t.Helper()

	networkName := startNetwork(t, ctx)
	hostDSN := startMySQL(t, ctx, networkName)

	env := &Env{
		DB:      openDB(t, hostDSN),
		DSN:     rootDSN(mysqlAlias, mysqlPort.Port()),
		HostDSN: hostDSN,
		Prefix:  tablePrefix,
		network: networkName,
	}
	env.createSchema(t, ctx)

	return env
}

// Store opens a netq store on the environment's tables.
func (e *Env) Store(t *testing.T, opts ...mysql.Option) *mysql.Store {
	t.Helper()

	store, err := mysql.NewStore(e.DB, append([]mysql.Option{mysql.WithPrefix(e.Prefix)}, opts...)...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	return store
}

// Enqueue queues reqs in one committed transaction and returns their ids.
func (e *Env) Enqueue(t *testing.T, ctx context.Context, store *mysql.Store, reqs ...netq.Request) []netq.ID {
	t.Helper()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	ids := make([]netq.ID, 0, len(reqs))
	for _, req := range reqs {
		id, err := store.Enqueue(ctx, tx, req)
		if err != nil {
			_ = tx.Rollback()
			t.Fatalf("enqueue %s: %v", req.URL, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	return ids
}

// Count returns the number of rows in one of the netq tables, e.g. "response".
func (e *Env) Count(t *testing.T, ctx context.Context, table string) int {
	t.Helper()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s_%s", e.Prefix, table)
	if err := e.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}

	return count
}

func (e *Env) createSchema(t *testing.T, ctx context.Context) {
	t.Helper()

	schema, err := mysql.Schema(e.Prefix)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := e.DB.ExecContext(ctx, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
}

func rootDSN(host, port string) string {
	return fmt.Sprintf("root:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		mysqlPassword, host, port, mysqlDatabase)
}

func startNetwork(t *testing.T, ctx context.Context) string {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() {
		_ = net.Remove(ctx)
	})

	return net.Name
}

// startMySQL returns the DSN under which the server is reachable from the host.
func startMySQL(t *testing.T, ctx context.Context, networkName string) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{string(mysqlPort)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {mysqlAlias}},
			WaitingFor: wait.ForSQL(mysqlPort, "mysql", func(host string, port nat.Port) string {
				return rootDSN(host, port.Port())
			}).WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve mysql host: %v", err)
	}
	port, err := container.MappedPort(ctx, mysqlPort)
	if err != nil {
		t.Fatalf("resolve mysql port: %v", err)
	}

	return rootDSN(host, port.Port())
}

func openDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
