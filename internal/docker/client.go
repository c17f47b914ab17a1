package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/shinji-kodama/envboot/internal/model"
)

// defaultPingTimeout bounds the connectivity check. Docker Desktop on macOS
// can take a few seconds to answer when it has just resumed.
const defaultPingTimeout = 5 * time.Second

// windowsPipe is the named pipe Docker Desktop listens on.
const windowsPipe = `//./pipe/docker_engine`

// Client wraps the Docker Engine SDK client. It handles socket detection
// across platforms and maps daemon failures to
// model.ExitContainerEngineUnavailable.
//
// Usage:
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* daemon not running */ }
type Client struct {
	inner *client.Client
}

// NewClient creates a Docker client.
//
// DOCKER_HOST is honoured when set, as every Docker tool does. Otherwise
// the platform's default endpoints are tried in order:
//   - Linux: /var/run/docker.sock
//   - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//   - Windows: the docker_engine named pipe
//
// The socket existing does not mean the daemon is up; call Ping for that.
func NewClient() (*Client, error) {
	// Step 1: An explicit DOCKER_HOST wins. The SDK parses the connection
	// string (unix://, tcp://, npipe://, ssh://).
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return newClientWithHost(host)
	}

	// Step 2: Try the platform's default endpoints. The first one that
	// exists is used even if the daemon behind it is down.
	host, err := detectDockerHost(runtime.GOOS)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			"Docker socket not found",
			err,
		)
	}
	return newClientWithHost(host)
}

// newClientWithHost creates a Docker client for a connection string such as
// "unix:///var/run/docker.sock" or "npipe:////./pipe/docker_engine".
// API version negotiation keeps older daemons working.
func newClientWithHost(host string) (*Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		// Negotiation pings the daemon on the first request and lowers the
		// API version to what it supports.
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}
	return &Client{inner: c}, nil
}

// detectDockerHost returns the Docker endpoint for goos.
func detectDockerHost(goos string) (string, error) {
	switch goos {
	case "linux":
		return detectUnixSocket(unixSocketCandidates(goos, ""))

	case "darwin":
		home, _ := os.UserHomeDir()
		return detectUnixSocket(unixSocketCandidates(goos, home))

	case "windows":
		// os.Stat does not work on named pipes, so try a dial instead.
		conn, err := net.DialTimeout("pipe", windowsPipe, 1*time.Second)
		if err != nil {
			return "", fmt.Errorf("docker named pipe not found at %s: %w", windowsPipe, err)
		}
		_ = conn.Close()
		return "npipe://" + windowsPipe, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// unixSocketCandidates lists the socket paths to try, most preferred
// first. home may be empty when the home directory is unknown.
func unixSocketCandidates(goos, home string) []string {
	paths := []string{"/var/run/docker.sock"}
	if goos == "darwin" && home != "" {
		paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
	}
	return paths
}

// detectUnixSocket returns the host URI of the first path that exists.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("docker socket not found at any of: %v", paths)
}

// Ping verifies that the Docker daemon is reachable, waiting at most
// defaultPingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			"Docker daemon is not responding, is Docker running?",
			err,
		)
	}
	return nil
}

// ImageExists reports whether ref is present in the local image store.
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	images, err := c.inner.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			"failed to list Docker images",
			err,
		)
	}
	return len(images) > 0, nil
}

// PullImage pulls ref and blocks until the pull has finished. Progress is
// written to w when it is non-nil.
//
// The daemon answers a pull with HTTP 200 before it knows whether the pull
// will succeed, and reports failures (unknown tag, full disk) as an error
// message inside the JSON progress stream. The stream is therefore decoded
// with jsonmessage, as the docker CLI does, rather than just drained.
func (c *Client) PullImage(ctx context.Context, ref string, w io.Writer) error {
	// Step 1: Ask the daemon to pull. An error here means the request itself
	// was rejected (bad reference, daemon down).
	rc, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	defer func() { _ = rc.Close() }()

	if w == nil {
		w = io.Discard
	}

	// Step 2: Read the progress stream to the end. The pull only completes
	// once it has been consumed, and a *jsonmessage.JSONError from the
	// stream is the daemon's verdict on the pull.
	if err := jsonmessage.DisplayJSONMessagesStream(rc, w, 0, false, nil); err != nil {
		return model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	return nil
}

// EnsureImage makes ref available according to policy:
//   - PullAlways pulls unconditionally
//   - PullMissing pulls only when the image is not present
//   - PullNever fails when the image is not present
//
// It returns whether a pull happened.
func (c *Client) EnsureImage(ctx context.Context, ref string, policy model.PullPolicy, w io.Writer) (bool, error) {
	if policy != model.PullAlways {
		present, err := c.ImageExists(ctx, ref)
		if err != nil {
			return false, err
		}
		if present {
			return false, nil
		}
		if policy == model.PullNever {
			return false, model.NewCLIError(
				model.ExitContainerEngineUnavailable,
				fmt.Sprintf("image %q is not present and the pull policy is %q", ref, policy),
			)
		}
	}

	if err := c.PullImage(ctx, ref, w); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the resources held by the client. It is safe to call more
// than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Inner returns the underlying Docker SDK client for operations the
// wrapper does not expose.
func (c *Client) Inner() *client.Client {
	return c.inner
}
