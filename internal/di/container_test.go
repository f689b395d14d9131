package di

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/ingest"
	"github.com/mikey/applytrack/internal/notify"
	"github.com/mikey/applytrack/internal/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagSet(t *testing.T) {
	fs := flag.NewFlagSet("applytrack-cli", flag.ContinueOnError)
	flags := ParseFlagSet(fs, []string{
		"-user", "alice", "-action", "edit-approve", "-id", "m1",
		"-company", "Acme", "-status", "interviewing", "-limit", "5", "-verbose",
	})

	assert.Equal(t, "alice", flags.User)
	assert.Equal(t, "edit-approve", flags.Action)
	assert.Equal(t, "m1", flags.ID)
	assert.Equal(t, "Acme", flags.Company)
	assert.Equal(t, "interviewing", flags.Status)
	assert.Equal(t, 5, flags.Limit)
	assert.True(t, flags.Verbose)
	assert.False(t, flags.JSONLog)
}

func TestBuildCLIContainerResolvesPipeline(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, `
openai:
  api_key: sk-test
store:
  sqlite_path: `+filepath.Join(dir, "app.db")+`
mailbox:
  provider: smtp
  smtp_domain: inbox.local
`)

	container, err := BuildCLIContainer(&CLIFlags{ConfigFile: cfgPath})
	require.NoError(t, err)

	err = container.Invoke(func(
		cfg *config.Config,
		o *ingest.Orchestrator,
		w *review.Workflow,
		p *notify.Projector,
	) {
		assert.Equal(t, "smtp", cfg.GetMailbox().Provider)
		assert.NotNil(t, o)
		assert.NotNil(t, w)
		assert.NotNil(t, p)
	})
	require.NoError(t, err)
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
