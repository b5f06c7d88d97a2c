package pm2

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukkala/procpilot/internal/command"
)

const jlistOutput = `[
  {
    "pid": 1234,
    "name": "svc1",
    "pm_id": 0,
    "monit": {"memory": 52428800, "cpu": 1.5},
    "pm2_env": {
      "status": "online",
      "pm_uptime": 1700000000000,
      "restart_time": 2,
      "unstable_restarts": 0,
      "created_at": 1699990000000
    }
  },
  {
    "pid": 0,
    "name": "svc2",
    "pm_id": 1,
    "monit": {"memory": 0, "cpu": 0},
    "pm2_env": {"status": "stopped"}
  }
]`

// recordingRunner replies with a fixed outcome per command prefix and
// records every command it sees.
type recordingRunner struct {
	commands []string
	outcomes map[string]*command.Outcome
}

func (r *recordingRunner) Run(ctx context.Context, cmd, workdir string) (*command.Outcome, error) {
	r.commands = append(r.commands, cmd)
	if outcome, ok := r.outcomes[cmd]; ok {
		return outcome, nil
	}
	return &command.Outcome{Stdout: "", ExitCode: 0}, nil
}

func newTestService(runner command.Runner) *Service {
	executor := command.NewExecutor(runner, nil)
	return NewService(executor, Options{
		CommandTimeout: time.Second,
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
	})
}

func TestServiceList(t *testing.T) {
	runner := &recordingRunner{outcomes: map[string]*command.Outcome{
		"pm2 jlist": {Stdout: jlistOutput},
	}}
	service := newTestService(runner)

	processes, err := service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, processes, 2)

	assert.Equal(t, "svc1", processes[0].Name)
	assert.Equal(t, 1234, processes[0].PID)
	assert.Equal(t, int64(52428800), processes[0].Monit.Memory)
	assert.True(t, processes[0].IsOnline())

	assert.Equal(t, "svc2", processes[1].Name)
	assert.Equal(t, "stopped", processes[1].Env.Status)
	assert.False(t, processes[1].IsOnline())
}

func TestServiceListInvalidJSON(t *testing.T) {
	runner := &recordingRunner{outcomes: map[string]*command.Outcome{
		"pm2 jlist": {Stdout: "pm2: command garbled"},
	}}
	service := newTestService(runner)

	_, err := service.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pm2 process list")
}

func TestServiceGet(t *testing.T) {
	runner := &recordingRunner{outcomes: map[string]*command.Outcome{
		"pm2 jlist": {Stdout: jlistOutput},
	}}
	service := newTestService(runner)

	process, err := service.Get(context.Background(), "svc1")
	require.NoError(t, err)
	assert.Equal(t, "svc1", process.Name)

	_, err = service.Get(context.Background(), "absent")
	var notFound ProcessNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "absent", notFound.Name)
}

func TestServiceCommands(t *testing.T) {
	runner := &recordingRunner{}
	service := newTestService(runner)
	ctx := context.Background()

	require.NoError(t, service.Start(ctx, "svc1"))
	require.NoError(t, service.Stop(ctx, "svc1"))
	require.NoError(t, service.Restart(ctx, "svc1"))
	require.NoError(t, service.Delete(ctx, "svc1"))
	require.NoError(t, service.Save(ctx))
	require.NoError(t, service.StartConfig(ctx, "/home/pm2/pm2-configs/svc1.config.js"))

	assert.Equal(t, []string{
		"pm2 start svc1",
		"pm2 stop svc1",
		"pm2 restart svc1",
		"pm2 delete svc1",
		"pm2 save",
		"pm2 start /home/pm2/pm2-configs/svc1.config.js --force",
	}, runner.commands)
}

func TestServiceRejectsInvalidNames(t *testing.T) {
	runner := &recordingRunner{}
	service := newTestService(runner)
	ctx := context.Background()

	for _, name := range []string{"x; touch /pwned", "x`id`", "../other", ""} {
		var invalid InvalidNameError
		require.ErrorAs(t, service.Start(ctx, name), &invalid)
		require.ErrorAs(t, service.Stop(ctx, name), &invalid)
		require.ErrorAs(t, service.Restart(ctx, name), &invalid)
		require.ErrorAs(t, service.Delete(ctx, name), &invalid)
	}

	// No command line was ever composed from a rejected name.
	assert.Empty(t, runner.commands)
}

func TestServiceVerify(t *testing.T) {
	runner := &recordingRunner{outcomes: map[string]*command.Outcome{
		"pm2 --version": {Stdout: "5.3.0\n"},
	}}
	service := newTestService(runner)

	version, err := service.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.3.0", version)
}
