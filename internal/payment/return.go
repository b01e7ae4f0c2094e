package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ReturnParams are the query parameters the gateway round trip lands with.
type ReturnParams struct {
	OrderID string
	Error   string
	Data    string
}

// ParseReturn reads the return query. Both orderId and order_id are accepted.
func ParseReturn(q url.Values) ReturnParams {
	orderID := q.Get("orderId")
	if orderID == "" {
		orderID = q.Get("order_id")
	}
	return ReturnParams{
		OrderID: strings.TrimSpace(orderID),
		Error:   strings.TrimSpace(q.Get("error")),
		Data:    strings.TrimSpace(q.Get("data")),
	}
}

// SuccessData is the base64 JSON blob appended to the success URL. It is
// informational only; the order API verifies the signature.
type SuccessData struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      Value  `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

// DecodeSuccessData decodes the data parameter of a success return.
func DecodeSuccessData(data string) (*SuccessData, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("decode payment data: %w", err)
		}
	}
	var out SuccessData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payment data: %w", err)
	}
	return &out, nil
}
