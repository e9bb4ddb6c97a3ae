package validation

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
)

var docsTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"status": statusLabel,
	"pct":    func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"kwargs": func(m map[string]interface{}) string {
		var b bytes.Buffer
		for _, k := range sortedKeys(m) {
			if b.Len() > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, m[k])
		}
		return b.String()
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Data Docs</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
td, th { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
.succeeded { color: #2e7d32; }
.failed { color: #c62828; }
</style>
</head>
<body>
<h1>Validation Results</h1>
{{- range .}}
<h2 id="{{.Suite}}-{{.RunID}}">{{.Suite}} <small>{{.RunID}}</small></h2>
<p class="{{status .Success}}">{{status .Success}}: {{.Statistics.SuccessfulExpectations}} of {{.Statistics.EvaluatedExpectations}} expectations ({{pct .Statistics.SuccessPercent}})</p>
<table>
<tr><th>Expectation</th><th>Arguments</th><th>Status</th><th>Observed</th></tr>
{{- range .Results}}
<tr>
<td>{{.Expectation.Type}}</td>
<td>{{kwargs .Expectation.Kwargs}}</td>
<td class="{{status .Success}}">{{status .Success}}</td>
<td>{{if .ExceptionInfo.RaisedException}}{{.ExceptionInfo.ExceptionMessage}}{{else if .Result.ObservedValue}}{{.Result.ObservedValue}}{{else}}{{.Result.UnexpectedCount}} unexpected{{end}}</td>
</tr>
{{- end}}
</table>
{{- else}}
<p>No validation results.</p>
{{- end}}
</body>
</html>
`))

func statusLabel(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}

// DataDocsPath returns the index page of the local data docs site.
func (s *Store) DataDocsPath() string {
	return filepath.Join(s.root, uncommittedDir, "data_docs", "local_site", "index.html")
}

// BuildDataDocs renders every stored result into the data docs index page
// and returns its path.
func (s *Store) BuildDataDocs() (string, error) {
	results, err := s.ListResults()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := docsTemplate.Execute(&buf, results); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to render data docs")
	}

	path := s.DataDocsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create data docs directory")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write data docs")
	}
	return path, nil
}
