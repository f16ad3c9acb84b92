// File: sandbox/sandbox.go
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSubmission covers malformed submission names and archives
	// that are missing or oversized.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrInvalidEntryFile rejects harness entry points that could smuggle
	// shell syntax into the exec command.
	ErrInvalidEntryFile = errors.New("invalid entry file")
)

var (
	hexName   = regexp.MustCompile(`^[0-9a-f]+$`)
	entryName = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
)

const (
	sandboxHome = "/home/sandbox"
	sandboxUser = "sandbox"
	cpuPeriod   = 100_000

	// teardownTimeout bounds the engine calls made while killing a
	// container, independent of the caller's context.
	teardownTimeout = 30 * time.Second
)

// Config carries the provisioning limits for one sandbox container.
type Config struct {
	Image           string
	RepoPath        string
	HarnessPath     string
	EntryPoint      string
	MemoryBytes     int64
	CPUCount        float64
	UnrunTimeout    time.Duration
	RunTimeout      time.Duration
	MaxArchiveBytes int64
}

// outer is the wall-clock lifetime of the container: provisioning slack plus
// the harness run budget.
func (c Config) outer() time.Duration {
	return c.UnrunTimeout + c.RunTimeout
}

// Runner provisions one locked-down container per submission and exposes the
// harness process inside it as a byte stream.
type Runner struct {
	engine Engine
	cfg    Config
	log    *zap.SugaredLogger
}

func NewRunner(engine Engine, cfg Config, log *zap.SugaredLogger) *Runner {
	return &Runner{engine: engine, cfg: cfg, log: log}
}

// VerifyImage fails fast when the sandbox image is not present locally.
// Matches cannot run without it, so callers should treat this as fatal.
func (r *Runner) VerifyImage(ctx context.Context) error {
	if _, _, err := r.engine.ImageInspectWithRaw(ctx, r.cfg.Image); err != nil {
		return fmt.Errorf("sandbox image %q: %w", r.cfg.Image, err)
	}
	return nil
}

// submissionArchive validates the submission name and resolves its archive
// on disk, enforcing the size cap.
func (r *Runner) submissionArchive(hash string) (string, error) {
	if !hexName.MatchString(hash) {
		return "", fmt.Errorf("%w: name %q is not lowercase hex", ErrInvalidSubmission, hash)
	}
	archive := filepath.Join(r.cfg.RepoPath, hash+".tar")
	info, err := os.Stat(archive)
	if err != nil {
		return "", fmt.Errorf("%w: no archive for %q", ErrInvalidSubmission, hash)
	}
	if r.cfg.MaxArchiveBytes > 0 && info.Size() > r.cfg.MaxArchiveBytes {
		return "", fmt.Errorf("%w: archive for %q is %d bytes, limit %d", ErrInvalidSubmission, hash, info.Size(), r.cfg.MaxArchiveBytes)
	}
	return archive, nil
}

// Start provisions a container for the submission and launches the harness
// inside it. The returned instance's stream carries the harness stdio; the
// caller owns Kill.
func (r *Runner) Start(ctx context.Context, hash string) (*Instance, error) {
	archive, err := r.submissionArchive(hash)
	if err != nil {
		return nil, err
	}
	if !entryName.MatchString(r.cfg.EntryPoint) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryFile, r.cfg.EntryPoint)
	}
	if _, err := os.Stat(r.cfg.HarnessPath); err != nil {
		return nil, fmt.Errorf("harness path: %w", err)
	}

	name := "arena-sandbox-" + ksuid.New().String()
	outer := r.cfg.outer()
	created, err := r.engine.ContainerCreate(ctx,
		&container.Config{
			Image:  r.cfg.Image,
			Cmd:    strslice.StrSlice{"sleep", strconv.Itoa(int(outer.Seconds()))},
			Labels: map[string]string{"arena.submission": hash},
		},
		&container.HostConfig{
			Resources: container.Resources{
				Memory:     r.cfg.MemoryBytes,
				MemorySwap: r.cfg.MemoryBytes,
				CPUPeriod:  cpuPeriod,
				CPUQuota:   int64(r.cfg.CPUCount * cpuPeriod),
			},
			CapDrop:     strslice.StrSlice{"ALL"},
			NetworkMode: "none",
			Tmpfs: map[string]string{
				"/tmp":      "size=1m",
				"/var/tmp":  "size=1m",
				"/run/lock": "size=1m",
				"/var/lock": "size=1m",
			},
		},
		nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox container: %w", err)
	}

	inst := &Instance{runner: r, id: created.ID, name: name, hash: hash}
	if err := r.engine.ContainerStart(ctx, inst.id, container.StartOptions{}); err != nil {
		inst.Kill()
		return nil, fmt.Errorf("starting sandbox container: %w", err)
	}
	go inst.reap(outer)

	if err := r.provision(ctx, inst.id, archive); err != nil {
		inst.Kill()
		return nil, err
	}

	stream, err := r.launchHarness(ctx, inst.id)
	if err != nil {
		inst.Kill()
		return nil, err
	}
	inst.stream = stream
	r.log.Debugw("sandbox started", "container", name, "submission", hash)
	return inst, nil
}

// provision copies the harness and the re-rooted submission into the home
// directory, then locks the tree down so the sandbox user can read and
// execute but not write.
func (r *Runner) provision(ctx context.Context, id, archive string) error {
	harness, err := tarDirectory(r.cfg.HarnessPath)
	if err != nil {
		return fmt.Errorf("packing harness: %w", err)
	}
	if err := r.engine.CopyToContainer(ctx, id, sandboxHome, harness, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copying harness: %w", err)
	}

	submission, err := rerootArchive(archive, "submission")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if err := r.engine.CopyToContainer(ctx, id, sandboxHome, submission, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copying submission: %w", err)
	}

	for _, cmd := range [][]string{
		{"chown", "-R", "sandbox:sandbox", sandboxHome},
		{"chmod", "-R", "ugo=rx", sandboxHome},
	} {
		if err := r.execAsRoot(ctx, id, cmd); err != nil {
			return err
		}
	}
	return nil
}

// execAsRoot runs a setup command inside the container and waits for it to
// finish by draining its output.
func (r *Runner) execAsRoot(ctx context.Context, id string, cmd []string) error {
	exec, err := r.engine.ContainerExecCreate(ctx, id, container.ExecOptions{
		User:         "root",
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("exec %v: %w", cmd, err)
	}
	resp, err := r.engine.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("exec %v: %w", cmd, err)
	}
	defer resp.Close()
	if _, err := io.Copy(io.Discard, resp.Reader); err != nil {
		return fmt.Errorf("exec %v: %w", cmd, err)
	}
	return nil
}

// launchHarness starts the harness process as the unprivileged user with
// stdio attached. The run timeout inside the container is the last line of
// defence; the reaper is the outer one.
func (r *Runner) launchHarness(ctx context.Context, id string) (*execStream, error) {
	cmd := fmt.Sprintf("timeout %d python3 -u -m %s", int(r.cfg.RunTimeout.Seconds()), r.cfg.EntryPoint)
	exec, err := r.engine.ContainerExecCreate(ctx, id, container.ExecOptions{
		User:         sandboxUser,
		WorkingDir:   sandboxHome,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"sh", "-c", cmd},
	})
	if err != nil {
		return nil, fmt.Errorf("creating harness exec: %w", err)
	}
	resp, err := r.engine.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attaching harness exec: %w", err)
	}
	return newExecStream(resp), nil
}

// Instance is one live sandbox: a running container plus the attached
// harness stream.
type Instance struct {
	runner *Runner
	id     string
	name   string
	hash   string
	stream *execStream

	killOnce sync.Once
	killErr  error
}

// Stream returns the harness stdio. Reads are the demultiplexed process
// output, writes go to its stdin.
func (i *Instance) Stream() io.ReadWriteCloser { return i.stream }

// Hash returns the submission this instance runs.
func (i *Instance) Hash() string { return i.hash }

// reap waits for the container to stop on its own and removes it. If the
// outer wall-clock budget expires first, the container is killed outright.
// This watchdog is independent of any in-flight protocol I/O.
func (i *Instance) reap(outer time.Duration) {
	waitCh, errCh := i.runner.engine.ContainerWait(context.Background(), i.id, container.WaitConditionNotRunning)
	timer := time.NewTimer(outer)
	defer timer.Stop()
	select {
	case <-waitCh:
	case <-errCh:
	case <-timer.C:
		i.runner.log.Warnw("sandbox exceeded wall clock budget", "container", i.name, "submission", i.hash)
	}
	i.Kill()
}

// Kill stops the container immediately and removes it. It is idempotent and
// tolerates a container that is already gone.
func (i *Instance) Kill() error {
	i.killOnce.Do(func() {
		if i.stream != nil {
			i.stream.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		zero := 0
		if err := i.runner.engine.ContainerStop(ctx, i.id, container.StopOptions{Timeout: &zero}); err != nil && !errdefs.IsNotFound(err) {
			i.killErr = fmt.Errorf("stopping sandbox container: %w", err)
		}
		if err := i.runner.engine.ContainerRemove(ctx, i.id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) && i.killErr == nil {
			i.killErr = fmt.Errorf("removing sandbox container: %w", err)
		}
		i.runner.log.Debugw("sandbox killed", "container", i.name, "submission", i.hash)
	})
	return i.killErr
}

// execStream adapts a hijacked exec attachment to an io.ReadWriteCloser.
// The engine multiplexes stdout and stderr over one connection when no TTY
// is allocated; both are folded into the read side so stray stderr output
// surfaces as protocol prints.
type execStream struct {
	hijack types.HijackedResponse
	pr     *io.PipeReader
}

func newExecStream(resp types.HijackedResponse) *execStream {
	pr, pw := io.Pipe()
	s := &execStream{hijack: resp, pr: pr}
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, resp.Reader)
		pw.CloseWithError(err)
	}()
	return s
}

func (s *execStream) Read(p []byte) (int, error)  { return s.pr.Read(p) }
func (s *execStream) Write(p []byte) (int, error) { return s.hijack.Conn.Write(p) }

func (s *execStream) Close() error {
	s.hijack.Close()
	return s.pr.Close()
}
