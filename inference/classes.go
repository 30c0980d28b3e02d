package inference

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Names is the class names table of a model, indexed by the class ID the
// model emits.
type Names []string

// namesEntry matches one `index: 'label'` pair of the Python dict literal
// that ultralytics writes into the ONNX metadata under the "names" key.
var namesEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)

// Name returns the label for idx, or a synthetic "class_<idx>" label when the
// table has no entry for it.
func (n Names) Name(idx int) string {
	if idx >= 0 && idx < len(n) && n[idx] != "" {
		return n[idx]
	}
	return fmt.Sprintf("class_%d", idx)
}

// ParseNames parses the "names" metadata value of an exported YOLO model,
// e.g. `{0: 'Apple Scab', 1: 'Apple rust leaf'}`.
//
// Arguments:
//   - meta: The raw metadata value.
//
// Returns:
//   - Names: The names table. Missing indices are left empty.
//   - error: An error if no entries could be parsed.
func ParseNames(meta string) (Names, error) {
	matches := namesEntry.FindAllStringSubmatch(meta, -1)
	if len(matches) == 0 {
		return nil, errors.Errorf("no class names found in %q", meta)
	}

	byIndex := make(map[int]string, len(matches))
	maxIdx := -1
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid class index %q", m[1])
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		byIndex[idx] = unescape(name)
		maxIdx = max(maxIdx, idx)
	}

	names := make(Names, maxIdx+1)
	for idx, name := range byIndex {
		names[idx] = name
	}
	return names, nil
}

// LoadNames reads a labels file with one class name per line. Blank lines and
// lines starting with '#' are skipped.
func LoadNames(path string) (Names, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open labels file")
	}
	defer f.Close()

	var names Names
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels file")
	}
	if len(names) == 0 {
		return nil, errors.Errorf("labels file %s is empty", path)
	}
	return names, nil
}

// Resize returns a table of exactly n entries, padding with synthetic names
// or truncating as required so every class ID the model can emit resolves.
func (n Names) Resize(count int) Names {
	out := make(Names, count)
	for i := range out {
		out[i] = n.Name(i)
	}
	return out
}

// Sorted returns a sorted copy of the names.
func (n Names) Sorted() []string {
	out := append([]string(nil), n...)
	sort.Strings(out)
	return out
}

func unescape(s string) string {
	r := strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}
