// Package manifest reads pip requirements files.
//
// pip remains the authority on the format: envboot always installs with
// "pip install -r <manifest>". This reader only extracts what envboot
// reports about (requirement names, specifiers, the options a file carries)
// and is deliberately lenient: lines it does not understand are recorded,
// never rejected. The only error is an unreadable file.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/shinji-kodama/envboot/internal/model"
)

// Manifest is the parsed content of a requirements file.
type Manifest struct {
	// Path is the file the manifest was read from.
	Path string `json:"path"`

	// Requirements lists named requirements in file order.
	Requirements []model.Requirement `json:"requirements"`

	// Options lists option lines such as "-r other.txt", "-e ." or
	// "--index-url ...", in file order.
	Options []string `json:"options,omitempty"`

	// Unparsed lists lines that are neither options nor recognizable
	// requirements (URLs, local paths). pip may still accept them.
	Unparsed []string `json:"unparsed,omitempty"`
}

// Names returns the requirement names in file order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		names = append(names, r.Name)
	}
	return names
}

// requirementRegex matches "name[extras]specifier". Names follow PEP 508:
// letters, digits, ".", "_" and "-", starting and ending with a letter or
// digit. Everything after the optional extras is the version specifier.
var requirementRegex = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

// Load reads and parses the requirements file at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse reads requirements-file content from r.
//
// Handled syntax:
//   - "#" comments (whole-line, or after whitespace on a requirement line)
//   - blank lines
//   - "\" line continuations
//   - option lines starting with "-"
//   - "name[extras]specifier; marker" requirements
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}

	// bufio.Reader rather than Scanner: direct URL requirements and hash
	// lists can exceed any fixed token limit.
	reader := bufio.NewReader(r)
	lineNo := 0
	startLine := 0
	var pending strings.Builder

	for {
		raw, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if raw == "" && err != nil {
			break
		}

		lineNo++
		line := strings.TrimRight(raw, "\r\n")
		if pending.Len() == 0 {
			startLine = lineNo
		}

		// A trailing backslash joins the next physical line.
		if strings.HasSuffix(line, `\`) {
			pending.WriteString(strings.TrimSuffix(line, `\`))
		} else {
			pending.WriteString(line)
			m.addLine(pending.String(), startLine)
			pending.Reset()
		}

		if err != nil {
			break
		}
	}

	// A continuation on the very last line still counts.
	if pending.Len() > 0 {
		m.addLine(pending.String(), startLine)
	}

	return m, nil
}

// addLine classifies one logical line.
func (m *Manifest) addLine(line string, lineNo int) {
	line = stripComment(line)
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "-") {
		m.Options = append(m.Options, line)
		return
	}

	req, ok := parseRequirement(line)
	if !ok {
		m.Unparsed = append(m.Unparsed, line)
		return
	}
	req.Line = lineNo
	m.Requirements = append(m.Requirements, req)
}

// stripComment removes a "#" comment. pip only treats "#" as a comment at
// the start of a line or after whitespace, so URL fragments survive.
func stripComment(line string) string {
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "\t#"); i >= 0 {
		line = line[:i]
	}
	return line
}

// parseRequirement splits a requirement line into its parts. It reports
// false for direct references ("name @ url"), URLs and paths, which are
// left to pip.
func parseRequirement(line string) (model.Requirement, bool) {
	spec, marker, _ := strings.Cut(line, ";")
	spec = strings.TrimSpace(spec)
	marker = strings.TrimSpace(marker)

	if strings.Contains(spec, "://") || strings.Contains(spec, " @ ") ||
		strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return model.Requirement{}, false
	}

	match := requirementRegex.FindStringSubmatch(spec)
	if match == nil {
		return model.Requirement{}, false
	}

	specifier := strings.ReplaceAll(match[3], " ", "")
	// Anything left that is not a comparison is not a requirement we know.
	if specifier != "" && !strings.ContainsAny(specifier[:1], "<>=!~(") {
		return model.Requirement{}, false
	}

	req := model.Requirement{
		Name:      match[1],
		Specifier: specifier,
		Marker:    marker,
	}
	if match[2] != "" {
		for _, extra := range strings.Split(match[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}
	return req, true
}
