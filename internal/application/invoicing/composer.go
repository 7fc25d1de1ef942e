package invoicing

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// dueDateLayout is how due dates appear in notification emails
const dueDateLayout = "January 2, 2006"

// emailData is the data bound to notification templates
type emailData struct {
	InvoiceNumber      string
	ClientName         string
	DueDate            string
	GrandTotal         string
	LateFee            string
	AmountPaid         string
	OutstandingBalance string
}

type emailTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Composer renders the notification email of each stage
type Composer struct {
	symbol    string
	loc       *time.Location
	templates map[invoicing.Stage]emailTemplate
}

// NewComposer creates a composer that renders amounts in the policy currency and dates
// in the policy location
func NewComposer(policy invoicing.Policy) (*Composer, error) {
	code := policy.Currency
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", code, err)
	}

	loc := policy.Location
	if loc == nil {
		loc = time.Local
	}

	templates := make(map[invoicing.Stage]emailTemplate, len(stageTemplates))
	for stage, src := range stageTemplates {
		templates[stage] = emailTemplate{
			subject: src.subject,
			html:    htmltemplate.Must(htmltemplate.New(string(stage) + ".html").Parse(src.html)),
			text:    texttemplate.Must(texttemplate.New(string(stage) + ".txt").Parse(src.text)),
		}
	}

	return &Composer{
		symbol:    message.NewPrinter(language.English).Sprint(currency.Symbol(unit)),
		loc:       loc,
		templates: templates,
	}, nil
}

// Compose renders the stage email for inv. For the late fee stage inv must already carry
// the assessed fee and the new due date.
func (c *Composer) Compose(stage invoicing.Stage, inv *invoicing.Invoice) (invoicing.Message, error) {
	tmpl, ok := c.templates[stage]
	if !ok {
		return invoicing.Message{}, fmt.Errorf("%w: %s", invoicing.ErrUnknownStage, stage)
	}

	data := emailData{
		InvoiceNumber:      inv.InvoiceNumber,
		ClientName:         strings.TrimSpace(inv.ClientName),
		DueDate:            c.formatDate(inv.DueDate),
		GrandTotal:         c.formatMoney(invoicing.GrandTotal(inv)),
		LateFee:            c.formatMoney(inv.LateFee),
		AmountPaid:         c.formatMoney(inv.AmountPaid),
		OutstandingBalance: c.formatMoney(invoicing.OutstandingBalance(inv)),
	}
	if data.ClientName == "" {
		data.ClientName = "Customer"
	}

	var html bytes.Buffer
	if err := tmpl.html.Execute(&html, data); err != nil {
		return invoicing.Message{}, fmt.Errorf("render %s html body: %w", stage, err)
	}
	var text bytes.Buffer
	if err := tmpl.text.Execute(&text, data); err != nil {
		return invoicing.Message{}, fmt.Errorf("render %s text body: %w", stage, err)
	}

	return invoicing.Message{
		To:       strings.TrimSpace(inv.ClientEmail),
		Subject:  fmt.Sprintf(tmpl.subject, inv.InvoiceNumber),
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}

// formatMoney renders amount with two decimals and thousands separators. The digits
// come from the decimal itself so large amounts keep every cent.
func (c *Composer) formatMoney(amount decimal.Decimal) string {
	digits := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	whole, frac, _ := strings.Cut(digits, ".")

	var b strings.Builder
	b.WriteString(c.symbol)
	b.WriteString(" ")
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func (c *Composer) formatDate(t *time.Time) string {
	if t == nil {
		return "receipt"
	}
	return t.In(c.loc).Format(dueDateLayout)
}

type templateSource struct {
	subject string
	html    string
	text    string
}

var stageTemplates = map[invoicing.Stage]templateSource{
	invoicing.StageReminder: {
		subject: "Reminder: invoice %s",
		html: `<p>Dear {{.ClientName}},</p>
<p>This is a friendly reminder that invoice <strong>{{.InvoiceNumber}}</strong> is due on {{.DueDate}}.</p>
<p>Amount due: <strong>{{.OutstandingBalance}}</strong></p>
<p>If you have already paid, please disregard this message.</p>`,
		text: `Dear {{.ClientName}},

This is a friendly reminder that invoice {{.InvoiceNumber}} is due on {{.DueDate}}.

Amount due: {{.OutstandingBalance}}

If you have already paid, please disregard this message.
`,
	},
	invoicing.StageLateFee: {
		subject: "Overdue: late fee applied to invoice %s",
		html: `<p>Dear {{.ClientName}},</p>
<p>Invoice <strong>{{.InvoiceNumber}}</strong> is overdue and a late fee of <strong>{{.LateFee}}</strong> has been applied.</p>
<table>
<tr><td>Invoice total</td><td>{{.GrandTotal}}</td></tr>
<tr><td>Paid</td><td>{{.AmountPaid}}</td></tr>
<tr><td>Balance due</td><td><strong>{{.OutstandingBalance}}</strong></td></tr>
</table>
<p>Please pay by {{.DueDate}}.</p>`,
		text: `Dear {{.ClientName}},

Invoice {{.InvoiceNumber}} is overdue and a late fee of {{.LateFee}} has been applied.

Invoice total: {{.GrandTotal}}
Paid: {{.AmountPaid}}
Balance due: {{.OutstandingBalance}}

Please pay by {{.DueDate}}.
`,
	},
	invoicing.StageFinalNotice: {
		subject: "Final notice: invoice %s",
		html: `<p>Dear {{.ClientName}},</p>
<p>Invoice <strong>{{.InvoiceNumber}}</strong> remains unpaid. This is our final notice.</p>
<p>Balance due: <strong>{{.OutstandingBalance}}</strong></p>
<p>Please settle the balance immediately to avoid further collection steps.</p>`,
		text: `Dear {{.ClientName}},

Invoice {{.InvoiceNumber}} remains unpaid. This is our final notice.

Balance due: {{.OutstandingBalance}}

Please settle the balance immediately to avoid further collection steps.
`,
	},
}
