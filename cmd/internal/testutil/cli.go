//go:build integration

package testutil

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	cliImage       = "alpine:3.20"
	cliPath        = "/netq-cli"
	cliExitTimeout = 2 * time.Minute
)

// BuildBinary builds the command in the current directory for linux and returns its path.
func BuildBinary(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("resolve working dir: %v", err)
	}
	bin := filepath.Join(t.TempDir(), filepath.Base(wd))

	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS=linux", "GOARCH="+runtime.GOARCH)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s: %v\n%s", filepath.Base(wd), err, out)
	}

	return bin
}

// RunCLI runs bin in a container next to the database, pointed at it with
// --dsn and --prefix. It returns the exit code and combined output.
func (e *Env) RunCLI(t *testing.T, ctx context.Context, bin string, args ...string) (int, string) {
	t.Helper()

	args = append(args, "--dsn", e.DSN, "--prefix", e.Prefix)
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cliImage,
			Entrypoint: []string{cliPath},
			Cmd:        args,
			Networks:   []string{e.network},
			Files: []testcontainers.ContainerFile{
				{HostFilePath: bin, ContainerFilePath: cliPath, FileMode: 0o755},
			},
			WaitingFor: wait.ForExit().WithExitTimeout(cliExitTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", filepath.Base(bin), err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	return exitResult(t, ctx, container)
}

func exitResult(t *testing.T, ctx context.Context, container testcontainers.Container) (int, string) {
	t.Helper()

	logs, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("read container logs: %v", err)
	}
	defer logs.Close()

	out, err := io.ReadAll(logs)
	if err != nil {
		t.Fatalf("read container logs: %v", err)
	}
	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("read container state: %v", err)
	}

	return state.ExitCode, string(out)
}
