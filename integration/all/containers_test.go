//go:build integration

package all

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type containerSpec struct {
	name  string
	image string
	port  nat.Port
	env   map[string]string
	cmd   []string
	wait  wait.Strategy
}

var (
	redisSpec = containerSpec{
		name:  "redis",
		image: "redis:7-bookworm",
		port:  "6379/tcp",
		wait:  wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	natsSpec = containerSpec{
		name:  "nats",
		image: "nats:2",
		port:  "4222/tcp",
		cmd:   []string{"-js"},
		wait:  wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}
	postgresSpec = containerSpec{
		name:  "postgres",
		image: "postgres:16-bookworm",
		port:  "5432/tcp",
		env:   map[string]string{"POSTGRES_PASSWORD": "pass", "POSTGRES_USER": "user", "POSTGRES_DB": "app"},
		wait:  wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	mysqlSpec = containerSpec{
		name:  "mysql",
		image: "mysql:8",
		port:  "3306/tcp",
		env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "pass",
			"MYSQL_DATABASE":      "app",
			"MYSQL_USER":          "user",
			"MYSQL_PASSWORD":      "pass",
		},
		wait: wait.ForAll(
			wait.ForListeningPort("3306/tcp").WithStartupTimeout(90*time.Second),
			wait.ForLog("ready for connections").WithOccurrence(2).WithStartupTimeout(90*time.Second),
		),
	}
	dynamoSpec = containerSpec{
		name:  "dynamodb-local",
		image: "amazon/dynamodb-local:latest",
		port:  "8000/tcp",
		wait:  wait.ForListeningPort("8000/tcp").WithStartupTimeout(45 * time.Second),
	}
)

// startContainer runs spec and returns host:port of its exposed port. The
// container is terminated when the test ends.
func startContainer(t *testing.T, spec containerSpec) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			ExposedPorts: []string{string(spec.port)},
			Env:          spec.env,
			Cmd:          spec.cmd,
			WaitingFor:   spec.wait,
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", spec.name, err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(shutdownCtx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s container host: %v", spec.name, err)
	}
	port, err := container.MappedPort(ctx, spec.port)
	if err != nil {
		t.Fatalf("%s container port: %v", spec.name, err)
	}
	return net.JoinHostPort(host, port.Port())
}

// driverEnabled reads INTEGRATION_DRIVER, a comma list; empty or "all"
// selects every driver.
func driverEnabled(name string) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv("INTEGRATION_DRIVER")))
	if value == "" || value == "all" {
		return true
	}
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == name {
			return true
		}
	}
	return false
}

func retry(timeout, interval time.Duration, fn func() error) error {
	deadline := time.Now().Add(timeout)
	for {
		err := fn()
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(interval)
	}
}
