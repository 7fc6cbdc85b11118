package trainer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/metrics"
)

// stderrTail is how many trailing stderr lines are kept for error messages.
const stderrTail = 20

// ExecFineTuner runs an external trainer command. Fine-tuning invokes
// `<command> <args...> fine-tune <output-dir>/job.json`; prediction invokes
// `<command> <args...> predict <model-dir>` with the text on stdin.
type ExecFineTuner struct {
	command string
	args    []string
	workDir string
	env     []string
	logger  *zap.Logger
}

// Option configures an ExecFineTuner.
type Option func(*ExecFineTuner)

// WithWorkDir runs the trainer in dir.
func WithWorkDir(dir string) Option {
	return func(e *ExecFineTuner) { e.workDir = dir }
}

// WithEnv appends KEY=VALUE pairs to the trainer environment.
func WithEnv(env ...string) Option {
	return func(e *ExecFineTuner) { e.env = append(e.env, env...) }
}

// WithLogger sends trainer output to l instead of the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *ExecFineTuner) { e.logger = l }
}

// NewExecFineTuner creates an ExecFineTuner. If command is empty,
// "nercv-trainer" is used.
func NewExecFineTuner(command string, args []string, opts ...Option) *ExecFineTuner {
	if command == "" {
		command = "nercv-trainer"
	}
	e := &ExecFineTuner{command: command, args: append([]string(nil), args...)}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *ExecFineTuner) log() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return zap.L()
}

func (e *ExecFineTuner) cmd(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.command, append(append([]string(nil), e.args...), args...)...)
	cmd.Dir = e.workDir
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}
	return cmd
}

// FineTune writes the job file, runs the trainer to completion and checks
// that it produced test.tsv. The trainer's stdout and stderr are logged line
// by line. A failed run is returned as is; it is never retried.
func (e *ExecFineTuner) FineTune(ctx context.Context, job Job) error {
	dir, err := layout.EnsureDir(job.OutputDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return eris.Wrap(err, "trainer: marshal job")
	}
	jobPath := filepath.Join(dir, JobFile)
	if err := os.WriteFile(jobPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "trainer: write %s", jobPath)
	}

	cmd := e.cmd(ctx, "fine-tune", jobPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return eris.Wrap(err, "trainer: stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return eris.Wrap(err, "trainer: stderr pipe")
	}

	log := e.log().With(zap.String("model", job.ModelName), zap.String("output_dir", dir))
	log.Info("trainer: starting", zap.String("command", e.command), zap.String("job", jobPath))

	if err := cmd.Start(); err != nil {
		return eris.Wrapf(err, "trainer: start %s", e.command)
	}

	tail := newTailBuffer(stderrTail)
	var g errgroup.Group
	g.Go(func() error { return streamLines(stdout, log.With(zap.String("stream", "stdout")), nil) })
	g.Go(func() error { return streamLines(stderr, log.With(zap.String("stream", "stderr")), tail) })
	streamErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		return eris.Wrapf(err, "trainer: fine-tune %s failed: %s", job.ModelName, tail.String())
	}
	if streamErr != nil {
		return eris.Wrap(streamErr, "trainer: read output")
	}

	predictions := filepath.Join(dir, metrics.PredictionsFile)
	if _, err := os.Stat(predictions); err != nil {
		return eris.Wrapf(err, "trainer: %s not produced", predictions)
	}

	log.Info("trainer: finished")
	return nil
}

// streamLines logs each line read from r until EOF.
func streamLines(r io.Reader, log *zap.Logger, tail *tailBuffer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		log.Info(line)
		if tail != nil {
			tail.add(line)
		}
	}
	return sc.Err()
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// Predict tags text with the model saved in modelDir.
func (e *ExecFineTuner) Predict(ctx context.Context, modelDir, text string) (*Prediction, error) {
	cmd := e.cmd(ctx, "predict", modelDir)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "trainer: predict failed for %s: %s", modelDir, stderr.String())
	}

	var p Prediction
	if err := json.Unmarshal(stdout.Bytes(), &p); err != nil {
		return nil, eris.Wrapf(err, "trainer: decode prediction for %s", modelDir)
	}
	return &p, nil
}
