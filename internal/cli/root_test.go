package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/merge"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/search"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "filingindex", cmd.Use)
	assert.Contains(t, cmd.Long, "ESEF")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"sync-sec"}, {"sync-esef"}, {"reconcile-filers"}, {"tag-duplicates"}, {"refresh-tables"},
		{"search"}, {"industries"}, {"tasks"}, {"tasks", "close"}, {"tasks", "stats"}, {"serve"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestSyncSECCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync-sec"})
	require.NoError(t, err)

	for _, name := range []string{"from", "to", "no-keep-last", "reload", "skip-latest", "skip-reconcile", "only-new-filers"} {
		assert.NotNil(t, syncCmd.Flags().Lookup(name), name)
	}
}

func TestSearchCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	searchCmd, _, err := cmd.Find([]string{"search"})
	require.NoError(t, err)

	dialect := searchCmd.Flags().Lookup("dialect")
	require.NotNil(t, dialect)
	assert.Equal(t, "sqlite", dialect.DefValue)

	limit := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "0", limit.DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "tasks"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// seedDatabase writes a database holding one January feed.
func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	jan := time.Date(2022, 1, 28, 10, 0, 0, 0, time.UTC)
	loader := testutil.NewMemLoader()
	loader.Set("jan", testutil.RSSFeed(jan,
		testutil.FeedItem{Accession: "A-1", CIK: "0000000001", Company: "ACME CORP", Pub: jan, SIC: 2834},
		testutil.FeedItem{Accession: "B-1", CIK: "0000000002", Company: "GLOBEX INC", Pub: jan, SIC: 4911},
	))
	_, err = merge.New(st, loader, nil, nil).Merge(context.Background(), merge.Source{URI: "jan", FeedID: 202201})
	require.NoError(t, err)
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

type searchResponse struct {
	Status   string          `json:"status"`
	Data     []search.Record `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    *CLIError       `json:"error"`
}

func TestSearchCommand(t *testing.T) {
	db := seedDatabase(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "search", "--system", "sec", "--filer-name", "acme", "--country", "FR")
	require.NoError(t, err)

	var resp searchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "A-1", resp.Data[0].FilingNumber)
	assert.Len(t, resp.Warnings, 1)
}

func TestSearchCommand_Text(t *testing.T) {
	db := seedDatabase(t)

	out, _, err := execute(t, "--db", db, "search", "--system", "sec", "--industry-tree", "49")
	require.NoError(t, err)
	assert.Contains(t, out, "GLOBEX INC")
	assert.NotContains(t, out, "ACME CORP")
	assert.Contains(t, out, "1 filings")
}

func TestSearchCommand_ShowSQL(t *testing.T) {
	db := seedDatabase(t)

	out, _, err := execute(t, "--db", db, "search", "--system", "sec", "--limit", "3", "--show-sql", "--dialect", "mssql")
	require.NoError(t, err)
	assert.Contains(t, out, "FETCH NEXT 3 ROWS ONLY")
	assert.Contains(t, out, "@p1")
}

func TestSearchCommand_Errors(t *testing.T) {
	db := seedDatabase(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "search")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	var resp searchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(model.ErrCodeBadSearchParameter), resp.Error.Code)

	_, _, err = execute(t, "--db", filepath.Join(t.TempDir(), "missing.db"), "search", "--system", "sec")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, model.IsCode(err, model.ErrCodeDatabaseNotFound))
}

func TestIndustriesCommand(t *testing.T) {
	db := seedDatabase(t)

	out, _, err := execute(t, "--db", db, "industries", "28")
	require.NoError(t, err)
	assert.Contains(t, out, "28 ")
	assert.Contains(t, out, "  283 ")
	assert.Contains(t, out, "    2834 ")

	_, _, err = execute(t, "--db", db, "industries", "chemicals")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTasksCommands(t *testing.T) {
	db := seedDatabase(t)

	out, _, err := execute(t, "--db", db, "tasks", "close", "update-feeds")
	require.NoError(t, err)
	assert.Contains(t, out, "No open tracker for update-feeds")

	_, _, err = execute(t, "--db", db, "tasks", "close", "make-coffee")
	require.Error(t, err)
	assert.True(t, model.IsCode(err, model.ErrCodeUnknownAction))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, _, err = execute(t, "--db", db, "--format", "json", "tasks")
	require.NoError(t, err)
	var resp struct {
		Status string     `json:"status"`
		Data   taskReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data.Trackers)
}
