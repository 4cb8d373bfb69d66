package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDagsList(t *testing.T) {
	out, err := execute(t, "dags", "list")
	require.Nil(t, err)
	assert.Contains(t, out, "tutorial")
	assert.Contains(t, out, "@every 24h0m0s")
	assert.Contains(t, out, "example")
}

func TestDagsShow(t *testing.T) {
	out, err := execute(t, "dags", "show", "tutorial")
	require.Nil(t, err)
	assert.Contains(t, out, `"print_date" -> "sleep"`)
	assert.Contains(t, out, `"print_date" -> "templated"`)

	_, err = execute(t, "dags", "show", "unknown")
	assert.NotNil(t, err)
}

func TestDagsDetails(t *testing.T) {
	out, err := execute(t, "dags", "details", "tutorial")
	require.Nil(t, err)
	assert.Contains(t, out, "A simple tutorial DAG")
	assert.Contains(t, out, "2021-01-01T00:00:00Z")
	assert.Contains(t, out, "print_date,sleep,templated")
	assert.Contains(t, out, "### Tutorial DAG Documentation")
}

func TestTasksCommands(t *testing.T) {
	out, err := execute(t, "tasks", "list", "tutorial")
	require.Nil(t, err)
	assert.Contains(t, out, "templated")
	assert.Contains(t, out, "all_success")

	out, err = execute(t, "tasks", "render", "tutorial", "templated", "2021-01-01")
	require.Nil(t, err)
	assert.Contains(t, out, `echo "Loop 5: Execution date is 2021-01-01"`)
	assert.Contains(t, out, "Date +7 days: 2021-01-08")

	out, err = execute(t, "tasks", "doc", "tutorial", "sleep")
	require.Nil(t, err)
	assert.Contains(t, out, "It will retry up to 3 times if interrupted.")

	_, err = execute(t, "tasks", "doc", "tutorial", "unknown")
	assert.NotNil(t, err)

	out, err = execute(t, "tasks", "test", "tutorial", "templated", "2021-01-01")
	require.Nil(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "2021-01-08")

	_, err = execute(t, "tasks", "render", "tutorial", "templated", "not-a-date")
	assert.NotNil(t, err)
}

func TestDagsPause(t *testing.T) {
	out, err := execute(t, "dags", "pause", "tutorial")
	require.Nil(t, err)
	assert.Contains(t, out, "DAG tutorial paused: true")

	_, err = execute(t, "dags", "unpause", "unknown")
	assert.NotNil(t, err)
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "dags", "list")
	assert.NotNil(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2021-01-01")
	require.Nil(t, err)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2021-01-01T08:00:00+08:00")
	require.Nil(t, err)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("yesterday")
	assert.NotNil(t, err)
}
