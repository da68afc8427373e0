// Package grid projects roster rows onto an editable HTML table and reads
// the submitted form back into rows.
//
// Form layout: one repeated "row" field carries each row's display index
// in top-to-bottom order, and the cells of row i are named "r{i}.{field}"
// using the remote store's wire names. A checked paid box submits
// "r{i}.pagato=on"; an unchecked one submits nothing.
package grid

import (
	"bytes"
	_ "embed"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"

	"gymroster/internal/domain/roster"
)

// Form field names.
const (
	FieldRow        = "row"
	FieldFirstName  = "nome"
	FieldLastName   = "cognome"
	FieldEmail      = "email"
	FieldPhone      = "cell"
	FieldCardNumber = "tessera"
	FieldCertDate   = "dataCert"
	FieldPaid       = "pagato"
	FieldPaidAmount = "importo"
	FieldRemoteID   = "id"
	FieldFile       = "file"
)

// Column is one table header.
type Column struct {
	Field string
	Label string
}

// RowView is one rendered row.
type RowView struct {
	Index int
	Row   roster.Row
}

// Prefix returns the form name prefix of the row's cells.
func (r RowView) Prefix() string {
	return Prefix(r.Index)
}

// Prefix returns the form name prefix for the row at index.
func Prefix(index int) string {
	return "r" + strconv.Itoa(index) + "."
}

// FileField returns the form name of the upload input of the row at index.
func FileField(index int) string {
	return Prefix(index) + FieldFile
}

// View is the editable projection of a row sequence.
type View struct {
	Kind    string
	Columns []Column
	Rows    []RowView
	// Base is the path row actions post to, for example "/courses/Yoga".
	Base string
}

// Upload reports whether rows carry a document upload control.
func (v View) Upload() bool {
	return v.Kind == roster.KindDocument
}

// Columns returns the fixed column order for kind.
func Columns(kind string) []Column {
	cols := []Column{
		{FieldFirstName, "Nome"},
		{FieldLastName, "Cognome"},
		{FieldEmail, "Email"},
		{FieldPhone, "Cellulare"},
		{FieldCardNumber, "N. tessera"},
		{FieldCertDate, "Data certificato"},
		{FieldPaid, "Pagato"},
		{FieldPaidAmount, "Importo"},
	}
	if kind == roster.KindDocument {
		cols = append(cols, Column{FieldFile, "Scheda"})
	}
	return append(cols, Column{"delete", ""})
}

// Render builds the view of rows. Empty input renders one empty row.
// POST: len(View.Rows) >= 1 and Rows[i].Index == i
func Render(rows []roster.Row, kind string) View {
	rows = roster.Normalize(rows)
	v := View{Kind: kind, Columns: Columns(kind), Rows: make([]RowView, len(rows))}
	for i, r := range rows {
		v.Rows[i] = RowView{Index: i, Row: r}
	}
	return v
}

// WithBase returns v with row actions posting under base.
func (v View) WithBase(base string) View {
	v.Base = base
	return v
}

// Values returns the form values a browser submits for the unmodified view.
func (v View) Values() url.Values {
	values := url.Values{}
	for _, rv := range v.Rows {
		p := rv.Prefix()
		r := rv.Row
		values.Add(FieldRow, strconv.Itoa(rv.Index))
		values.Set(p+FieldFirstName, r.FirstName)
		values.Set(p+FieldLastName, r.LastName)
		values.Set(p+FieldEmail, r.Email)
		values.Set(p+FieldPhone, r.Phone)
		values.Set(p+FieldCardNumber, r.CardNumber)
		values.Set(p+FieldCertDate, r.CertificateDate)
		if r.Paid {
			values.Set(p+FieldPaid, "on")
		}
		values.Set(p+FieldPaidAmount, r.PaidAmount)
		values.Set(p+FieldRemoteID, r.RemoteID)
	}
	return values
}

// Collect reads rows back from submitted form values, in the order of the
// repeated row field. Text is trimmed and a present paid box means paid.
// Zero submitted rows yields an empty slice; callers normalize. Every
// kind submits the same cells, and an upload file is read separately.
func Collect(values url.Values) []roster.Row {
	indices := values[FieldRow]
	rows := make([]roster.Row, 0, len(indices))
	for _, idx := range indices {
		p := "r" + strings.TrimSpace(idx) + "."
		rows = append(rows, roster.Row{
			FirstName:       values.Get(p + FieldFirstName),
			LastName:        values.Get(p + FieldLastName),
			Email:           values.Get(p + FieldEmail),
			Phone:           values.Get(p + FieldPhone),
			CardNumber:      values.Get(p + FieldCardNumber),
			CertificateDate: values.Get(p + FieldCertDate),
			Paid:            values.Has(p + FieldPaid),
			PaidAmount:      values.Get(p + FieldPaidAmount),
			RemoteID:        values.Get(p + FieldRemoteID),
		}.Trimmed())
	}
	return rows
}

//go:embed grid.html
var tableSource string

var tableTmpl = template.Must(template.New("grid").Parse(tableSource))

// WriteHTML writes the table markup. It expects to sit inside a form.
func (v View) WriteHTML(w io.Writer) error {
	return tableTmpl.Execute(w, v)
}

// HTML renders the table for embedding in a page template.
func (v View) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := v.WriteHTML(&buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
