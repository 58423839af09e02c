package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/errors"
)

func TestParseFieldSelection(t *testing.T) {
	tests := []struct {
		in      string
		want    conflict.FieldSelection
		wantErr bool
	}{
		{in: "products.json:7:price=local", want: conflict.FieldSelection{File: "products.json", RecordID: 7, Field: "price", UseLocal: true}},
		{in: "products.json:7:name=remote", want: conflict.FieldSelection{File: "products.json", RecordID: 7, Field: "name"}},
		{in: "data/a:b.json:3:stock=theirs", want: conflict.FieldSelection{File: "data/a:b.json", RecordID: 3, Field: "stock"}},
		{in: "products.json:7:price", wantErr: true},
		{in: "products.json:x:price=local", wantErr: true},
		{in: "products.json:7:price=both", wantErr: true},
		{in: "price=local", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFieldSelection(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`publish -m "Spring prices"`, []string{"publish", "-m", "Spring prices"}},
		{"  status\t ", []string{"status"}},
		{`resolve --field 'a b.json:1:name=local'`, []string{"resolve", "--field", "a b.json:1:name=local"}},
		{`restore my\ file.json`, []string{"restore", "my file.json"}},
		{`publish -m ""`, []string{"publish", "-m", ""}},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := splitArgs(`publish -m "unfinished`)
	assert.Error(t, err)
	_, err = splitArgs(`status \`)
	assert.Error(t, err)
}

func TestCompletions(t *testing.T) {
	assert.Contains(t, completions("pu"), "publish")
	assert.Contains(t, completions("pu"), "pull")
	assert.Equal(t, []string{"remote set-url"}, completions("remote s"))
	assert.Empty(t, completions("shell"))
}

func TestEmitFormats(t *testing.T) {
	v := struct {
		Clean bool `json:"clean" yaml:"clean"`
	}{Clean: true}

	defer func(old string) { outputFormat = old }(outputFormat)

	var buf bytes.Buffer
	outputFormat = "json"
	require.NoError(t, emit(&buf, v, func() string { return "text" }))
	assert.JSONEq(t, `{"clean": true}`, buf.String())

	buf.Reset()
	outputFormat = "yaml"
	require.NoError(t, emit(&buf, v, func() string { return "text" }))
	assert.Equal(t, "clean: true\n", buf.String())

	buf.Reset()
	outputFormat = "text"
	require.NoError(t, emit(&buf, v, func() string { return "text" }))
	assert.Equal(t, "text\n", buf.String())
}

func TestCommandTree(t *testing.T) {
	names := completions("")
	for _, want := range []string{"status", "publish", "continue", "pull", "resolve", "conflicts", "abort", "restore", "undo", "remote", "remote validate", "reset", "watch", "changes", "check"} {
		assert.Contains(t, names, want)
	}
	assert.NotContains(t, names, "shell")
}

// execute runs the command tree with args and resets what a run leaves
// behind on the package-level root command.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs([]string{})
		repoDir = "."
		app = nil
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "catsync")
	assert.Contains(t, out, "publish")
	assert.Contains(t, out, "--log-level")
}

func TestCommandRejectsNonRepository(t *testing.T) {
	_, err := execute(t, "status", "-C", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotAVcsRepo))
	assert.Nil(t, app)
}

func TestContinueAcceptsFiles(t *testing.T) {
	assert.NoError(t, continueCmd.ValidateArgs([]string{"products.json", "coupons.json"}))
}
