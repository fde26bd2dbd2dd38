package launcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/shehryarbajwa/browsercontext/pkg/log"
)

const devtoolsPort nat.Port = "3000/tcp"

// dockerAPI is the part of the docker client the launcher uses
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// Options configures the launcher
type Options struct {
	Image string
	// Host is where published ports are reached, usually localhost
	Host         string
	ReadyTimeout time.Duration
}

// Instance is a running browser container
type Instance struct {
	ContainerID string
	Port        string
	// Endpoint is the DevTools websocket address of the browser
	Endpoint string
}

// Launcher starts headless Chrome containers for the chromium engine
type Launcher struct {
	docker dockerAPI
	http   *retryablehttp.Client
	opts   Options
	logger *log.Logger
}

// New creates a launcher talking to the docker daemon from the environment
func New(opts Options, logger *log.Logger) (*Launcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return newLauncher(cli, opts, logger), nil
}

func newLauncher(docker dockerAPI, opts Options, logger *log.Logger) *Launcher {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}

	const interval = 500 * time.Millisecond
	hc := retryablehttp.NewClient()
	hc.RetryWaitMin = interval
	hc.RetryWaitMax = interval
	hc.RetryMax = int(opts.ReadyTimeout / interval)
	hc.Logger = leveledLogger{logger}

	return &Launcher{
		docker: docker,
		http:   hc,
		opts:   opts,
		logger: logger,
	}
}

// EnsureImage pulls the browser image unless it is already present
func (l *Launcher) EnsureImage(ctx context.Context) error {
	images, err := l.docker.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	for _, img := range images {
		if slices.Contains(img.RepoTags, l.opts.Image) {
			return nil
		}
	}

	l.logger.Infof("Launcher:EnsureImage", "pulling %s", l.opts.Image)

	reader, err := l.docker.ImagePull(ctx, l.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close() //nolint:errcheck

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Start runs a browser container and waits until its DevTools endpoint answers
func (l *Launcher) Start(ctx context.Context) (*Instance, error) {
	name := "browsercontext-" + uuid.New().String()[:8]

	containerConfig := &container.Config{
		Image: l.opts.Image,
		Labels: map[string]string{
			"managed-by": "browsercontext",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			devtoolsPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{
				{
					HostIP:   "0.0.0.0",
					HostPort: "0",
				},
			},
		},
	}

	resp, err := l.docker.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	inst, err := l.start(ctx, resp.ID)
	if err != nil {
		l.remove(resp.ID)
		return nil, err
	}

	l.logger.Infof("Launcher:Start", "container %s ready at %s", shortID(resp.ID), inst.Endpoint)

	return inst, nil
}

func (l *Launcher) start(ctx context.Context, id string) (*Instance, error) {
	if err := l.docker.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := l.docker.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	if inspect.NetworkSettings == nil || len(inspect.NetworkSettings.Ports[devtoolsPort]) == 0 {
		return nil, fmt.Errorf("container %s has no published devtools port", shortID(id))
	}
	port := inspect.NetworkSettings.Ports[devtoolsPort][0].HostPort

	if err := l.waitReady(ctx, port); err != nil {
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &Instance{
		ContainerID: id,
		Port:        port,
		Endpoint:    fmt.Sprintf("ws://%s:%s", l.opts.Host, port),
	}, nil
}

// Stop stops and removes the container
func (l *Launcher) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := l.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := l.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// Close releases the docker client
func (l *Launcher) Close() error {
	return l.docker.Close()
}

func (l *Launcher) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		l.logger.Warnf("Launcher:Start", "removing container %s: %v", shortID(id), err)
	}
}

// waitReady polls /json/version until the browser answers 200
func (l *Launcher) waitReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://%s:%s/json/version", l.opts.Host, port)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// leveledLogger routes retryablehttp logging into the category logger
type leveledLogger struct {
	l *log.Logger
}

func (ll leveledLogger) Error(msg string, kv ...any) { ll.l.Errorf("Launcher:HTTP", "%s %v", msg, kv) }
func (ll leveledLogger) Info(msg string, kv ...any)  { ll.l.Debugf("Launcher:HTTP", "%s %v", msg, kv) }
func (ll leveledLogger) Debug(msg string, kv ...any) { ll.l.Debugf("Launcher:HTTP", "%s %v", msg, kv) }
func (ll leveledLogger) Warn(msg string, kv ...any)  { ll.l.Debugf("Launcher:HTTP", "%s %v", msg, kv) }
