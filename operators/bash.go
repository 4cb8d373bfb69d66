package operators

import (
	"bytes"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/templating"
	"github.com/warriorguo/dagflow/types"
)

const (
	DefaultSkipExitCode = 99
	DefaultShell        = "bash"

	ReturnValueKey = "return_value"
	commandField   = "bash_command"
)

var (
	_ types.TemplatedOperator = &BashOperator{}
	_ types.ShellOperator     = &BashOperator{}
)

type BashOption func(*BashOperator)

// WithEnv replaces the inherited process environment unless WithAppendEnv is set.
// Values are templated.
func WithEnv(env map[string]string) BashOption {
	return func(o *BashOperator) {
		o.env = env
	}
}

func WithAppendEnv(appendEnv bool) BashOption {
	return func(o *BashOperator) {
		o.appendEnv = appendEnv
	}
}

// WithCwd runs the command in dir instead of a fresh temporary directory.
func WithCwd(dir string) BashOption {
	return func(o *BashOperator) {
		o.cwd = dir
	}
}

// WithSkipExitCode marks the task skipped when the command exits with code.
func WithSkipExitCode(code int) BashOption {
	return func(o *BashOperator) {
		o.skipExitCode = code
	}
}

func WithShell(shell string) BashOption {
	return func(o *BashOperator) {
		o.shell = shell
		o.shellSet = true
	}
}

// BashOperator runs a templated command through `<shell> -c`.
type BashOperator struct {
	command string

	env          map[string]string
	appendEnv    bool
	cwd          string
	skipExitCode int
	shell        string
	shellSet     bool
}

func NewBashOperator(command string, opts ...BashOption) (*BashOperator, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.BadRequestf("bash command is empty")
	}
	if err := templating.Validate(command); err != nil {
		return nil, errors.Annotatef(err, "bash command template")
	}
	o := &BashOperator{
		command:      command,
		skipExitCode: DefaultSkipExitCode,
		shell:        DefaultShell,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// MustBashOperator panics on an invalid command, for static declarations.
func MustBashOperator(command string, opts ...BashOption) *BashOperator {
	o, err := NewBashOperator(command, opts...)
	if err != nil {
		panic(err)
	}
	return o
}

func (o *BashOperator) Command() string {
	return o.command
}

func (o *BashOperator) SetDefaultShell(shell string) {
	if !o.shellSet && shell != "" {
		o.shell = shell
	}
}

func (o *BashOperator) RenderTemplateFields(templateContext types.Data) (map[string]string, error) {
	fields := make(map[string]string, len(o.env)+1)
	command, err := templating.Render(o.command, templateContext)
	if err != nil {
		return nil, errors.Annotatef(err, "render %s", commandField)
	}
	fields[commandField] = command

	for key, value := range o.env {
		rendered, err := templating.Render(value, templateContext)
		if err != nil {
			return nil, errors.Annotatef(err, "render env %s", key)
		}
		fields["env."+key] = rendered
	}
	return fields, nil
}

// RenderedCommand is the command as it would run in ctx.
func (o *BashOperator) RenderedCommand(ctx types.Context) (string, error) {
	command, err := templating.Render(o.command, ctx.GetTemplateContext())
	return command, errors.Annotatef(err, "render %s", commandField)
}

func (o *BashOperator) Execute(ctx types.Context) (types.Data, error) {
	fields, err := o.RenderTemplateFields(ctx.GetTemplateContext())
	if err != nil {
		return nil, errors.Trace(err)
	}
	command := fields[commandField]

	dir := o.cwd
	if dir == "" {
		if dir, err = os.MkdirTemp("", "dagflowtmp"); err != nil {
			return nil, errors.Annotatef(err, "create working directory")
		}
		defer os.RemoveAll(dir)
	}

	logger := ctx.Logger()
	logger.Infof("Running command: %s", command)

	out := newLineLogger(logger)
	cmd := exec.CommandContext(ctx, o.shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = o.buildEnv(ctx, fields)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 5 * time.Second
	setProcessGroup(cmd)

	runErr := cmd.Run()
	out.flush()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Annotatef(ctxErr, "command interrupted")
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			logger.Infof("Command exited with return code %d", code)
			if code == o.skipExitCode {
				return nil, types.NewSkipErrorf("command exited with skip code %d", code)
			}
			return nil, errors.Errorf("bash command failed, the command returned a non-zero exit code %d", code)
		}
		return nil, errors.Annotatef(runErr, "run command")
	}

	logger.Info("Command exited with return code 0")
	return types.Data{ReturnValueKey: out.lastLine()}, nil
}

func (o *BashOperator) buildEnv(ctx types.Context, fields map[string]string) []string {
	env := map[string]string{}
	if o.env == nil || o.appendEnv {
		for _, kv := range os.Environ() {
			if k, v, found := strings.Cut(kv, "="); found {
				env[k] = v
			}
		}
	}
	for key := range o.env {
		env[key] = fields["env."+key]
	}

	owner := ""
	if task, ok := ctx.GetTemplateContext()["task"].(map[string]any); ok {
		owner, _ = task["owner"].(string)
	}
	env["AIRFLOW_CTX_DAG_ID"] = ctx.GetDAGID()
	env["AIRFLOW_CTX_TASK_ID"] = ctx.GetTaskID()
	env["AIRFLOW_CTX_DAG_RUN_ID"] = ctx.GetRunID()
	env["AIRFLOW_CTX_EXECUTION_DATE"] = ctx.GetLogicalDate().UTC().Format(templating.TSLayout)
	env["AIRFLOW_CTX_TRY_NUMBER"] = strconv.Itoa(ctx.GetTryNumber())
	env["AIRFLOW_CTX_DAG_OWNER"] = owner

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}

// lineLogger forwards complete output lines to the task logger.
type lineLogger struct {
	mu     sync.Mutex
	logger *logrus.Entry
	buf    bytes.Buffer
	last   string
}

func newLineLogger(logger *logrus.Entry) *lineLogger {
	return &lineLogger{logger: logger}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		l.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (l *lineLogger) emit(line string) {
	l.logger.Info(line)
	l.last = line
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) lastLine() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
