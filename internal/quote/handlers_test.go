package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, handler http.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope.Data
}

func TestTaxesQuote(t *testing.T) {
	h := Handler{DefaultTaxRate: decimal.RequireFromString("0.1")}

	rec, data := post(t, h.Taxes, `{"totalCharge":"1000","taxableCharge":"600","discounts":"-100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	// (600 - 100*600/1000) * 0.1
	require.Equal(t, "54", data["taxes"])
}

func TestPriceQuote(t *testing.T) {
	h := Handler{DefaultTaxRate: decimal.RequireFromString("0.1")}

	rec, data := post(t, h.Price, `{"totalCharge":"1000","taxableCharge":"600","discounts":"-100","financeCharges":"-50"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "54", data["taxes"])
	// 1000 + 54 + 0 - 100; negative finance charges never raise the price.
	require.Equal(t, "954", data["projectedPrice"])
}

func TestMarginQuoteProjected(t *testing.T) {
	h := Handler{}

	rec, data := post(t, h.Margin, `{"totalCharge":"1000","totalCost":"400","taxRate":"0"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "60", data["margin"])
}

func TestMarginQuoteLocked(t *testing.T) {
	h := Handler{}

	rec, data := post(t, h.Margin, `{"lockedPrice":"500","totalCost":"300"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "40", data["margin"])
}

func TestQuoteRejectsPositiveDiscounts(t *testing.T) {
	h := Handler{}

	rec, _ := post(t, h.Taxes, `{"totalCharge":"100","discounts":"10"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteRejectsMalformedBody(t *testing.T) {
	h := Handler{}

	rec, _ := post(t, h.Price, `{"totalCharge":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
