// Package payment hands a placed order over to the hosted payment gateway and
// reads what the gateway sends back.
package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/url"
	"strings"
)

// Value is a form field value. The order API sends amounts either as JSON
// numbers or strings; both decode to their literal text.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = Value(n.String())
	return nil
}

// RedirectDescriptor is the signed field set returned with an order that has
// to be paid on the gateway.
type RedirectDescriptor struct {
	URL                   string `json:"url,omitempty"`
	Amount                Value  `json:"amount"`
	TaxAmount             Value  `json:"tax_amount"`
	ProductServiceCharge  Value  `json:"product_service_charge"`
	ProductDeliveryCharge Value  `json:"product_delivery_charge"`
	TotalAmount           Value  `json:"total_amount"`
	TransactionUUID       Value  `json:"transaction_uuid"`
	ProductCode           Value  `json:"product_code"`
	SuccessURL            Value  `json:"success_url"`
	FailureURL            Value  `json:"failure_url"`
	SignedFieldNames      Value  `json:"signed_field_names"`
	Signature             Value  `json:"signature"`
}

// Field is one hidden input of the redirect form.
type Field struct {
	Name  string
	Value string
}

var ErrIncompleteDescriptor = errors.New("payment descriptor is missing required fields")

// Validate checks the fields the gateway refuses to work without.
func (d *RedirectDescriptor) Validate() error {
	if d == nil {
		return ErrIncompleteDescriptor
	}
	for _, v := range []Value{d.TotalAmount, d.TransactionUUID, d.ProductCode, d.SignedFieldNames, d.Signature} {
		if strings.TrimSpace(string(v)) == "" {
			return ErrIncompleteDescriptor
		}
	}
	return nil
}

// Fields lists the form inputs in the order the gateway documents them.
func (d *RedirectDescriptor) Fields() []Field {
	return []Field{
		{Name: "amount", Value: string(d.Amount)},
		{Name: "tax_amount", Value: string(d.TaxAmount)},
		{Name: "product_service_charge", Value: string(d.ProductServiceCharge)},
		{Name: "product_delivery_charge", Value: string(d.ProductDeliveryCharge)},
		{Name: "total_amount", Value: string(d.TotalAmount)},
		{Name: "transaction_uuid", Value: string(d.TransactionUUID)},
		{Name: "product_code", Value: string(d.ProductCode)},
		{Name: "success_url", Value: string(d.SuccessURL)},
		{Name: "failure_url", Value: string(d.FailureURL)},
		{Name: "signed_field_names", Value: string(d.SignedFieldNames)},
		{Name: "signature", Value: string(d.Signature)},
	}
}

// Action picks the form target: the descriptor's own URL wins over fallback.
func (d *RedirectDescriptor) Action(fallback string) string {
	if u := strings.TrimSpace(d.URL); u != "" {
		return u
	}
	return fallback
}

var formTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Redirecting to payment</title>
</head>
<body>
<form id="payment-redirect" method="POST" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
<script>document.getElementById("payment-redirect").submit();</script>
</body>
</html>
`))

// ErrUnsafeAction rejects a form action that is not an absolute http(s) URL.
var ErrUnsafeAction = errors.New("payment form action must be an absolute http or https URL")

// checkAction vets the action before it is rendered as a trusted URL.
func checkAction(action string) error {
	u, err := url.Parse(action)
	if err != nil || u.Host == "" {
		return ErrUnsafeAction
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "http":
		return nil
	}
	return ErrUnsafeAction
}

// RenderForm writes a page that POSTs the descriptor to the gateway as soon
// as it loads.
func RenderForm(w io.Writer, d *RedirectDescriptor, fallbackAction string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	action := d.Action(fallbackAction)
	if action == "" {
		return errors.New("payment form action is not configured")
	}
	if err := checkAction(action); err != nil {
		return err
	}
	return formTemplate.Execute(w, struct {
		Action template.URL
		Fields []Field
	}{
		Action: template.URL(action),
		Fields: d.Fields(),
	})
}
