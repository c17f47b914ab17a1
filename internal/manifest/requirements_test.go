package manifest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/envboot/internal/model"
)

// TestParse verifies the requirement forms that show up in real
// requirements files.
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []model.Requirement
	}{
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
		{
			name:    "bare names",
			content: "requests\nbeautifulsoup4\n",
			want: []model.Requirement{
				{Name: "requests", Line: 1},
				{Name: "beautifulsoup4", Line: 2},
			},
		},
		{
			name:    "comments and blank lines are skipped",
			content: "# scraping\n\nrequests==2.31.0  # pinned\n",
			want: []model.Requirement{
				{Name: "requests", Specifier: "==2.31.0", Line: 3},
			},
		},
		{
			name:    "specifier with spaces and ranges",
			content: "urllib3 >= 1.26, < 3\n",
			want: []model.Requirement{
				{Name: "urllib3", Specifier: ">=1.26,<3", Line: 1},
			},
		},
		{
			name:    "extras and marker",
			content: `uvicorn[standard, http]~=0.30; python_version >= "3.9"` + "\n",
			want: []model.Requirement{
				{
					Name:      "uvicorn",
					Extras:    []string{"standard", "http"},
					Specifier: "~=0.30",
					Marker:    `python_version >= "3.9"`,
					Line:      1,
				},
			},
		},
		{
			name:    "line continuation keeps the starting line number",
			content: "lxml \\\n  >=5.0\nchardet\n",
			want: []model.Requirement{
				{Name: "lxml", Specifier: ">=5.0", Line: 1},
				{Name: "chardet", Line: 3},
			},
		},
		{
			name:    "dotted and underscored names",
			content: "zope.interface\ntyping_extensions\n",
			want: []model.Requirement{
				{Name: "zope.interface", Line: 1},
				{Name: "typing_extensions", Line: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(strings.NewReader(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Requirements)
		})
	}
}

// TestParseOptionsAndUnparsed verifies that option lines and direct
// references are kept aside rather than rejected.
func TestParseOptionsAndUnparsed(t *testing.T) {
	content := strings.Join([]string{
		"--index-url https://pypi.example.com/simple",
		"-r base.txt",
		"-e .",
		"requests",
		"https://example.com/pkg-1.0.tar.gz#egg=pkg",
		"mypkg @ git+https://example.com/mypkg.git",
		"./vendor/localpkg",
		"",
	}, "\n")

	m, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, []string{"requests"}, m.Names())
	assert.Equal(t, []string{
		"--index-url https://pypi.example.com/simple",
		"-r base.txt",
		"-e .",
	}, m.Options)
	assert.Equal(t, []string{
		"https://example.com/pkg-1.0.tar.gz#egg=pkg",
		"mypkg @ git+https://example.com/mypkg.git",
		"./vendor/localpkg",
	}, m.Unparsed)
}

// TestLoad verifies reading from disk, including the error for a missing
// manifest.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte("requests\n"), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
	assert.Equal(t, []string{"requests"}, m.Names())

	_, err = Load(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist, "missing file should surface as not-exist")
}

// TestParseLongLines verifies that physical lines far beyond a typical
// buffer size are recorded rather than failing the read, and that CRLF
// line endings and a missing final newline are handled.
func TestParseLongLines(t *testing.T) {
	longURL := "bigpkg @ https://example.com/" + strings.Repeat("a", 70*1024) + ".whl"
	content := longURL + "\nrequests\r\nflask"

	m, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, []string{longURL}, m.Unparsed)
	require.Len(t, m.Requirements, 2)
	assert.Equal(t, model.Requirement{Name: "requests", Line: 2}, m.Requirements[0])
	assert.Equal(t, model.Requirement{Name: "flask", Line: 3}, m.Requirements[1])
}
