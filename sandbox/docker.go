package sandbox

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerRuntime executes scripts in a throwaway container. Each run creates a
// fresh container with the arena directory bind-mounted at /vee, a hard
// memory cgroup limit, and the network disabled unless the limits explicitly
// allow it. The container is force-removed when the run ends, discarding all
// side effects.
type DockerRuntime struct {
	cli   client.APIClient
	image string
}

// DockerOptions configures a DockerRuntime.
type DockerOptions struct {
	// Image is the container image used for runs, default "python:3.12-slim".
	Image string
	// Client overrides the Docker API client (useful for tests).
	Client client.APIClient
}

// NewDockerRuntime constructs a DockerRuntime connected to the local daemon.
func NewDockerRuntime(optFns ...func(o *DockerOptions)) (*DockerRuntime, error) {
	opts := DockerOptions{Image: "python:3.12-slim"}
	for _, fn := range optFns {
		fn(&opts)
	}

	cli := opts.Client
	if cli == nil {
		c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, &SetupError{Stage: "docker client", Err: err}
		}
		cli = c
	}
	return &DockerRuntime{cli: cli, image: opts.Image}, nil
}

// Run implements Runtime. A cancelled context kills the container outright;
// no partial output survives.
func (r *DockerRuntime) Run(ctx context.Context, spec RunSpec) (RunOutput, error) {
	const arena = "/vee"

	netMode := container.NetworkMode("none")
	if spec.Limits.AllowNetwork {
		netMode = container.NetworkMode("bridge")
	}

	cfg := &container.Config{
		Image:      r.image,
		Cmd:        []string{"python3", filepath.Join(arena, filepath.Base(spec.ScriptPath))},
		WorkingDir: arena,
		Env: []string{
			"VEE_INPUT=" + filepath.Join(arena, filepath.Base(spec.InputPath)),
			"VEE_OUTPUT=" + filepath.Join(arena, filepath.Base(spec.OutputPath)),
		},
	}
	hostCfg := &container.HostConfig{
		Binds:       []string{spec.Dir + ":" + arena},
		NetworkMode: netMode,
		Resources: container.Resources{
			Memory: int64(spec.Limits.MaxMemoryMB) * 1024 * 1024,
		},
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return RunOutput{}, &SetupError{Stage: "container create", Err: err}
	}
	// Cleanup never uses the run context: a timed-out run must still be removed.
	defer func() {
		_ = r.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return RunOutput{}, &SetupError{Stage: "container start", Err: err}
	}

	waitCh, waitErrCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case <-ctx.Done():
		_ = r.cli.ContainerKill(context.Background(), created.ID, "SIGKILL")
		return RunOutput{}, ctx.Err()
	case err := <-waitErrCh:
		if err != nil {
			return RunOutput{}, &SetupError{Stage: "container wait", Err: err}
		}
	case status := <-waitCh:
		exitCode = int(status.StatusCode)
	}

	out := RunOutput{ExitCode: exitCode}

	logs, err := r.cli.ContainerLogs(context.Background(), created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err == nil {
		var stdout, stderr bytes.Buffer
		_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
		_ = logs.Close()
		out.Stdout = stdout.Bytes()
		out.Stderr = stderr.Bytes()
	}

	if inspect, err := r.cli.ContainerInspect(context.Background(), created.ID); err == nil && inspect.State != nil {
		if inspect.State.OOMKilled {
			out.ExitCode = 137
		}
	}
	return out, nil
}
