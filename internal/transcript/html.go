package transcript

import (
	"fmt"
	"html/template"
	"io"

	"github.com/stemsi/exstem-mocktest/internal/exam"
)

// Row content comes from the test payload and is already re-serialized by
// richtext.Render, so it is emitted unescaped.
var funcs = template.FuncMap{
	"raw":   func(s string) template.HTML { return template.HTML(s) },
	"label": optionLabel,
	"clock": func(sec float64) string { return exam.FormatRemaining(int(sec + 0.5)) },
	"marks": func(f float64) string { return fmt.Sprintf("%g", f) },
	"isSel": func(sel *int, k int) bool { return sel != nil && *sel == k },
	"isKey": func(key *int, k int) bool { return key != nil && *key == k },
}

var page = template.Must(template.New("transcript").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="{{.Language}}">
<head>
<meta charset="utf-8">
<title>{{.TestName}} - Transcript</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
.summary td { padding: 0.2rem 1rem 0.2rem 0; }
.question { border-top: 1px solid #ccc; padding: 1rem 0; page-break-inside: avoid; }
.status-correct { color: #1b7f3b; }
.status-wrong { color: #b3261e; }
.status-unattempted { color: #777; }
.options li.selected { font-weight: bold; }
.options li.key { text-decoration: underline; }
.table-responsive { overflow-x: auto; }
.passage { background: #f6f6f6; padding: 0.5rem; }
@media print { body { margin: 0; } .no-print { display: none; } }
</style>
</head>
<body>
<h1>{{.TestName}}</h1>
<table class="summary">
<tr><td>Score</td><td>{{marks .Result.Score}} / {{marks .Result.TotalMarks}}</td></tr>
<tr><td>Correct</td><td>{{.Result.Correct}}</td></tr>
<tr><td>Incorrect</td><td>{{.Result.Incorrect}}</td></tr>
<tr><td>Unattempted</td><td>{{.Result.Unattempted}}</td></tr>
<tr><td>Time taken</td><td>{{.Result.TimeTaken}} min</td></tr>
<tr><td>Submitted</td><td>{{.SubmittedAt.Format "2006-01-02 15:04:05"}}{{if eq .Reason "timeout"}} (time up){{end}}</td></tr>
</table>
{{range .Rows}}
<div class="question status-{{.Status}}">
<h3>Q{{.Number}}{{if .Review}} &#9873;{{end}}</h3>
{{if .Passage}}<div class="passage">{{raw .Passage}}</div>{{end}}
<div class="text">{{raw .Question}}</div>
<ol type="A" class="options">
{{- $sel := .Selected}}{{$key := .Correct}}
{{- range $k, $opt := .Options}}
<li class="{{if isSel $sel $k}}selected{{end}}{{if isKey $key $k}} key{{end}}">{{raw $opt}}</li>
{{- end}}
</ol>
<p>Your answer: {{label .Selected}} &middot; Correct answer: {{label .Correct}} &middot; <span class="status-{{.Status}}">{{.Status}}</span> &middot; Time: {{clock .TimeSpent}}</p>
{{if .Solution}}<div class="solution"><strong>Solution:</strong> {{raw .Solution}}</div>{{end}}
</div>
{{end}}
</body>
</html>
`))

// WriteHTML renders t as a standalone printable page.
func WriteHTML(w io.Writer, t *Transcript) error {
	return page.Execute(w, t)
}
