package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// FakeDockerAPIVersion is the API version the fake daemon advertises.
const FakeDockerAPIVersion = "1.47"

// versionPrefix matches the "/v1.47" prefix the SDK puts on every path.
var versionPrefix = regexp.MustCompile(`^/v[0-9]+\.[0-9]+`)

// DockerCall is one request received by a FakeDocker.
type DockerCall struct {
	Method string
	Path   string // without the API version prefix
	Query  url.Values
}

// FakeDocker is an in-process Docker Engine API server covering the calls
// envboot makes: ping, image list and pull, and the create, wait, start,
// logs and remove cycle of a step container.
//
// Containers "exit" when their logs have been served: the wait request
// registered for a container answers only then, as the real daemon does.
type FakeDocker struct {
	// Host is the DOCKER_HOST value for the server ("tcp://127.0.0.1:port").
	Host string

	// ImagePresent makes the image list non-empty.
	ImagePresent bool

	// PullStream is the JSON progress stream returned by a pull.
	PullStream string

	// Stdout and Stderr are written to every container's log stream.
	Stdout string
	Stderr string

	// ExitCodes maps a step label value ("create", "install", "launch") to
	// the exit status its container reports. Missing steps exit 0.
	ExitCodes map[string]int

	// HangLogs keeps log streams open until the client goes away, like a
	// step that never finishes. LogsOpened is closed when the first log
	// stream has been opened.
	HangLogs   bool
	LogsOpened chan struct{}

	mu       sync.Mutex
	calls    []DockerCall
	creates  []container.CreateRequest
	exited   map[string]chan struct{}
	steps    map[string]string
	logsOnce sync.Once
	nextID   int
	server   *httptest.Server
}

// NewFakeDocker starts a fake daemon that is shut down when the test ends.
func NewFakeDocker(t *testing.T) *FakeDocker {
	t.Helper()

	f := &FakeDocker{
		PullStream: `{"status":"Pulling from library/python","id":"3-slim"}` + "\n" +
			`{"status":"Digest: sha256:0123"}` + "\n" +
			`{"status":"Status: Downloaded newer image for python:3-slim"}` + "\n",
		ExitCodes:  map[string]int{},
		LogsOpened: make(chan struct{}),
		exited:     map[string]chan struct{}{},
		steps:      map[string]string{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)

	f.Host = "tcp://" + strings.TrimPrefix(f.server.URL, "http://")
	return f
}

// Calls returns the requests received so far.
func (f *FakeDocker) Calls() []DockerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DockerCall(nil), f.calls...)
}

// Called reports whether a request with method and path was received.
func (f *FakeDocker) Called(method, path string) bool {
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			return true
		}
	}
	return false
}

// Creates returns the bodies of the container create requests.
func (f *FakeDocker) Creates() []container.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]container.CreateRequest(nil), f.creates...)
}

func (f *FakeDocker) serve(w http.ResponseWriter, r *http.Request) {
	path := versionPrefix.ReplaceAllString(r.URL.Path, "")

	f.mu.Lock()
	f.calls = append(f.calls, DockerCall{Method: r.Method, Path: path, Query: r.URL.Query()})
	f.mu.Unlock()

	switch {
	case path == "/_ping":
		w.Header().Set("Api-Version", FakeDockerAPIVersion)
		w.Header().Set("Ostype", "linux")
		_, _ = w.Write([]byte("OK"))

	case r.Method == http.MethodGet && path == "/images/json":
		if f.ImagePresent {
			writeJSON(w, http.StatusOK, []map[string]any{{"Id": "sha256:0123", "RepoTags": []string{"python:3-slim"}}})
		} else {
			writeJSON(w, http.StatusOK, []any{})
		}

	case r.Method == http.MethodPost && path == "/images/create":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.PullStream))

	case r.Method == http.MethodPost && path == "/containers/create":
		f.createContainer(w, r)

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/containers/"):
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "/containers/"):
		id, action, _ := strings.Cut(strings.TrimPrefix(path, "/containers/"), "/")
		f.containerAction(w, r, id, action)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "page not found: " + path})
	}
}

func (f *FakeDocker) createContainer(w http.ResponseWriter, r *http.Request) {
	var req container.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("c%04d", f.nextID)
	f.creates = append(f.creates, req)
	f.exited[id] = make(chan struct{})
	if req.Config != nil {
		f.steps[id] = req.Config.Labels["envboot.step"]
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, container.CreateResponse{ID: id, Warnings: []string{}})
}

func (f *FakeDocker) containerAction(w http.ResponseWriter, r *http.Request, id, action string) {
	f.mu.Lock()
	exited, ok := f.exited[id]
	step := f.steps[id]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No such container: " + id})
		return
	}

	switch action {
	case "start":
		w.WriteHeader(http.StatusNoContent)

	case "wait":
		// Headers go out at once; the body follows on exit.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		select {
		case <-exited:
		case <-r.Context().Done():
			return
		}
		f.mu.Lock()
		code := f.ExitCodes[step]
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(container.WaitResponse{StatusCode: int64(code)})

	case "logs":
		f.logsOnce.Do(func() { close(f.LogsOpened) })
		w.Header().Set("Content-Type", "application/vnd.docker.multiplexed-stream")
		w.WriteHeader(http.StatusOK)
		if f.HangLogs {
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
			<-r.Context().Done()
			return
		}
		if f.Stdout != "" {
			_, _ = stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte(f.Stdout))
		}
		if f.Stderr != "" {
			_, _ = stdcopy.NewStdWriter(w, stdcopy.Stderr).Write([]byte(f.Stderr))
		}
		f.mu.Lock()
		select {
		case <-exited:
		default:
			close(exited)
		}
		f.mu.Unlock()

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "page not found: " + action})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
