package daraja

import (
	"fmt"
	"time"
)

// CallbackEnvelope is the JSON body the gateway posts to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// MetadataItem values arrive untyped: receipt numbers are strings, amounts
// and dates are JSON numbers.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

func (cb StkCallback) metadataValue(name string) (interface{}, bool) {
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

func (cb StkCallback) ReceiptNumber() string {
	v, ok := cb.metadataValue("MpesaReceiptNumber")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// TransactionDate parses the settlement timestamp the gateway reports as a
// numeric YYYYMMDDHHMMSS value. Nil when absent or unparseable.
func (cb StkCallback) TransactionDate() *time.Time {
	v, ok := cb.metadataValue("TransactionDate")
	if !ok {
		return nil
	}

	var raw string
	switch x := v.(type) {
	case string:
		raw = x
	case float64:
		raw = fmt.Sprintf("%.0f", x)
	default:
		return nil
	}

	t, err := time.Parse("20060102150405", raw)
	if err != nil {
		return nil
	}
	return &t
}
