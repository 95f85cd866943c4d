package reverseproxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gtmRules = `
- domain: googletagmanager.com
  headers:
    user-agent: shopfront
- domains:
    - google-analytics.com
    - analytics.google.com
  paths:
    - /g/collect
  headers:
    referer: none
`

func writeRules(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRuleSet(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "gtm.yaml", gtmRules)
	writeRules(t, dir, "notes.txt", "not yaml: [")
	other := writeRules(t, t.TempDir(), "other.yml", "- domain: example.com\n")

	rs, err := LoadRuleSet(dir + ";" + other + "; ")
	require.NoError(t, err)

	assert.Equal(t, 3, rs.Count())
	assert.ElementsMatch(t, []string{"googletagmanager.com", "google-analytics.com", "analytics.google.com", "example.com"}, rs.Domains())
	assert.Equal(t, 4, rs.DomainCount())
}

func TestLoadRuleSetEmpty(t *testing.T) {
	rs, err := LoadRuleSet("")
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestLoadRuleSetErrors(t *testing.T) {
	_, err := LoadRuleSet(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	bad := writeRules(t, t.TempDir(), "bad.yaml", "- domain: [unterminated")
	_, err = LoadRuleSet(bad)
	assert.ErrorContains(t, err, "syntax error")

	badRegex := writeRules(t, t.TempDir(), "regex.yaml", "- domain: a.com\n  regexRules:\n    - match: \"(\"\n      replace: x\n")
	_, err = LoadRuleSet(badRegex)
	assert.ErrorContains(t, err, "invalid regex")
}

func TestRuleSetMatch(t *testing.T) {
	dir := t.TempDir()
	rs, err := LoadRuleSet(writeRules(t, dir, "gtm.yaml", gtmRules))
	require.NoError(t, err)

	assert.Equal(t, "shopfront", rs.Match("www.googletagmanager.com", "/gtm.js").Headers.UserAgent)
	assert.Equal(t, "none", rs.Match("region1.google-analytics.com", "/g/collect").Headers.Referer)
	assert.Empty(t, rs.Match("region1.google-analytics.com", "/other").Headers.Referer)
	assert.Empty(t, rs.Match("notgoogletagmanager.com", "/").Headers.UserAgent)
}
