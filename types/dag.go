package types

// Operator is the capability a task runs. Execute is called once per try.
type Operator interface {
	Execute(ctx Context) (Data, error)
}

type OperatorFunc func(ctx Context) (Data, error)

func (f OperatorFunc) Execute(ctx Context) (Data, error) {
	return f(ctx)
}

// TemplatedOperator is implemented by operators whose fields are rendered
// against the template context before execution.
type TemplatedOperator interface {
	Operator
	RenderTemplateFields(templateContext Data) (map[string]string, error)
}

// ShellOperator is implemented by operators that accept the engine's default shell.
type ShellOperator interface {
	Operator
	SetDefaultShell(shell string)
}

type DAG interface {
	ID() string
	Args() DAGArgs

	Task(taskID string, op Operator, options ...TaskOption) error
	Edge(from, to string) error
	/**
	 * SetDownstream links from before each of to, the `from >> [to...]` form.
	 */
	SetDownstream(from string, to ...string) error
	SetUpstream(to string, from ...string) error

	SetDocMD(taskID, doc string) error
	SetDAGDocMD(doc string)

	TaskIDs() []string
	Upstream(taskID string) []string
	Downstream(taskID string) []string
	TaskArgs(taskID string) (TaskArgs, bool)
	Operator(taskID string) (Operator, bool)
}

type DAGHandler func(dag DAG) error
