package daraja

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 20.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

func TestCallbackEnvelope_Parse(t *testing.T) {
	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(sampleCallback), &env))

	cb := env.Body.StkCallback
	assert.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	assert.Equal(t, 0, cb.ResultCode)
	assert.Equal(t, "NLJ7RT61SV", cb.ReceiptNumber())

	settled := cb.TransactionDate()
	require.NotNil(t, settled)
	assert.Equal(t, time.Date(2019, 12, 19, 10, 21, 15, 0, time.UTC), *settled)
}

func TestCallbackEnvelope_MissingMetadata(t *testing.T) {
	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{
      "Body": {"stkCallback": {
        "CheckoutRequestID": "ws_CO_1",
        "ResultCode": 1032,
        "ResultDesc": "Request cancelled by user"
      }}
    }`), &env))

	cb := env.Body.StkCallback
	assert.Empty(t, cb.ReceiptNumber())
	assert.Nil(t, cb.TransactionDate())
}
