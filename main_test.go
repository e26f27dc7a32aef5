package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_social_publisher/compose"
	"auto_social_publisher/config"
)

func TestParseAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	now := time.Date(2024, time.March, 4, 21, 0, 0, 0, loc)

	got, err := parseAt("now", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseAt("slot", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, time.March, 5, 8, 0, 0, 0, loc)))

	got, err = parseAt("2024-03-05T12:30:00+01:00", now)
	require.NoError(t, err)
	assert.Equal(t, 11, got.UTC().Hour())

	_, err = parseAt("2024-03-04T12:00:00+01:00", now)
	assert.ErrorContains(t, err, "not in the future")
	_, err = parseAt("demain", now)
	assert.Error(t, err)
}

func TestBuildGenerator(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	gen, tr, err := buildGenerator(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, gen)
	assert.NotNil(t, tr)

	cfg.LLM.Provider = "deepseek"
	cfg.LLM.APIKey = "sk-test"
	_, _, err = buildGenerator(cfg, nil)
	assert.True(t, config.IsConfigError(err))

	cfg.LLM.BaseURL = "https://api.deepseek.example/v1"
	_, _, err = buildGenerator(cfg, nil)
	assert.NoError(t, err)

	cfg.LLM.Provider = "claude"
	_, _, err = buildGenerator(cfg, nil)
	assert.ErrorContains(t, err, "not supported")
}

func TestFlowEntries_SinksBuiltOnDemand(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	cfg.Facebook.PageID = "123"
	cfg.Facebook.AccessToken = "tok"
	cfg.Facebook.Groups = []config.Group{{Name: "Voisins", ID: "g1"}}
	gen, _, err := buildGenerator(cfg, nil)
	require.NoError(t, err)

	entries := flowEntries(cfg, gen, time.UTC, nil)
	require.Len(t, entries, 2)
	assert.Equal(t, labelPost, entries[0].Label)

	p, err := entries[0].Build()
	require.NoError(t, err)
	assert.Equal(t, "post", p.Kind)

	_, err = entries[1].Build()
	assert.True(t, config.IsConfigError(err), "odoo settings are missing")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	created := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	err := printHistory(&buf, []compose.Record{
		{Kind: "email", Op: "schedule", ReceiptID: "31", When: created.Add(48 * time.Hour), Excerpt: "Fête", CreatedAt: created},
		{Kind: "post", Op: "publish", ReceiptID: "123_456", Excerpt: "post v1", CreatedAt: created},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2024-03-06T09:00:00Z")
	assert.Contains(t, lines[2], " - ")
}

func TestWhenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flow:\n  timezone: Europe/Paris\n"), 0o600))

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"when", "--config", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "post:")
	assert.Contains(t, out.String(), "mailing: Wed")
}

func TestHistoryCommand_JournalDisabled(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"history", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := cmd.Execute()
	assert.True(t, config.IsConfigError(err))
}
