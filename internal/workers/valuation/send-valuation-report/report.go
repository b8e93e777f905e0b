package sendvaluationreport

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"house-price-workers/internal/pricing"
)

type reportData struct {
	ValuationID string
	Estimates   []pricing.Estimate
}

var textReport = template.Must(template.New("text").Parse(
	`Valuation {{.ValuationID}}
{{range .Estimates}}
{{.DisplayName}}: {{.Formatted}}{{if .Note}}
  {{.Note}}{{end}}
{{end}}`))

var htmlReport = htmltemplate.Must(htmltemplate.New("html").Parse(
	`<h2>Valuation {{.ValuationID}}</h2>
<table>
{{range .Estimates}}<tr><th>{{.DisplayName}}</th><td>{{.Formatted}}</td></tr>
{{if .Note}}<tr><td colspan="2"><small>{{.Note}}</small></td></tr>
{{end}}{{end}}</table>`))

// smsReport keeps a text message to the first estimate.
var smsReport = template.Must(template.New("sms").Parse(
	`House valuation {{with index .Estimates 0}}{{.DisplayName}}: {{.Formatted}}{{end}} (ref {{.ValuationID}})`))

func render(valuationID string, estimates []pricing.Estimate) (text, html, sms string, err error) {
	data := reportData{ValuationID: valuationID, Estimates: estimates}

	var buf bytes.Buffer
	if err = textReport.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	text = buf.String()

	buf.Reset()
	if err = htmlReport.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	html = buf.String()

	buf.Reset()
	if err = smsReport.Execute(&buf, data); err != nil {
		return "", "", "", err
	}
	sms = buf.String()
	return text, html, sms, nil
}
