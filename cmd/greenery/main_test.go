package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"urban-greenery/decision/workflow"
)

const citiesCSV = `city,lat,lon,temperature,humidity,rainfall,green_cover
Delhi,28.61,77.21,38,70,8,20
Pune,18.52,73.86,27,60,40,47
`

func writeCities(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "city_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(citiesCSV), 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"greenery", "--log-level", "error", "--data", writeCities(t)}, args...))
	return out.String(), err
}

func TestAnalyzeJSON(t *testing.T) {
	out, err := runApp(t, "analyze", "--city", "Delhi", "--format", "json")
	require.NoError(t, err)

	var res workflow.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Delhi", res.Bundle.City)
	assert.Equal(t, 800, res.Bundle.Plan.TreesToPlant)
	assert.Len(t, res.Log, 5)
}

func TestAnalyzeTable(t *testing.T) {
	out, err := runApp(t, "analyze", "--city", "delhi")
	require.NoError(t, err)
	assert.Contains(t, out, "GREENERY PLAN: Delhi")
	assert.Contains(t, out, "₹800,000")
	assert.Contains(t, out, "Sustainability Advisor")
}

func TestAnalyzeMarkdown(t *testing.T) {
	out, err := runApp(t, "analyze", "--city", "Pune", "--format", "markdown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Urban Greenery Analysis Report: Pune"))
}

func TestAnalyzeDenyExitsWithTwo(t *testing.T) {
	_, err := runApp(t, "analyze", "--city", "Delhi", "--cost-limit", "1000")
	require.Error(t, err)

	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.ExitCode())
}

func TestAnalyzeUnknownCity(t *testing.T) {
	_, err := runApp(t, "analyze", "--city", "Atlantis")
	assert.Error(t, err)
}

func TestCompareRanked(t *testing.T) {
	out, err := runApp(t, "compare", "--rank")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "Pune"))
	assert.True(t, strings.HasPrefix(lines[2], "Delhi"))
}

func TestQuery(t *testing.T) {
	out, err := runApp(t, "query", "--city", "Delhi", "how", "expensive", "is", "it")
	require.NoError(t, err)
	assert.Contains(t, out, "₹800,000")
}

func TestScenario(t *testing.T) {
	out, err := runApp(t, "scenario", "--city", "Delhi", "--type", "rainfall", "--change", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulating: Rainfall Change (+10mm) for Delhi")
	assert.Contains(t, out, "Resilience change: +")
}

func TestScenarioOutOfRange(t *testing.T) {
	_, err := runApp(t, "scenario", "--city", "Delhi", "--type", "temperature", "--change", "9")
	assert.Error(t, err)
}

func TestReportToDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, "report", "--city", "Delhi", "--out", dir)
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(dir, "greenery_report_delhi.md"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "# Urban Greenery Analysis Report: Delhi")

	_, err = runApp(t, "report", "--city", "Delhi", "--format", "json", "--out", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "greenery_data_delhi.json"))
}

func TestPolicyList(t *testing.T) {
	out, err := runApp(t, "policy", "list", "--cost-limit", "5000")
	require.NoError(t, err)
	assert.Contains(t, out, "heat_mortality")
	assert.Contains(t, out, "cli-cost-limit [cost_limit]")
	assert.Contains(t, out, "threshold 5000")
}

func TestCitiesList(t *testing.T) {
	out, err := runApp(t, "cities", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "city,lat,lon")
	assert.Contains(t, out, "Pune")
}

func TestPredictWithoutModel(t *testing.T) {
	_, err := runApp(t, "predict", "--location", "Thane", "--month", "7",
		"--min-temp", "22.5", "--max-temp", "35", "--mean-temp", "28",
		"--precip", "150", "--solar-rad", "1.5e9", "--rainy-days", "15")
	assert.ErrorContains(t, err, "no model configured")

	_, err = runApp(t, "predict", "--location", "Thane", "--month", "7")
	assert.ErrorContains(t, err, "min-temp")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "₹₹₹...", truncate("₹₹₹₹₹₹₹₹", 6))
}
