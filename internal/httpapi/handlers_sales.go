package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"stockpos/backend/internal/domain"
)

// handleSales: POST checks out a cart, GET lists sales (admin only).
func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req domain.CheckoutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := a.service.Checkout(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	case http.MethodGet:
		from, to, err := parseRange(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		sales, err := a.service.ListSales(r.Context(), from, to, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sales/"), "/")
	if raw == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}
	id, err := parseID(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	topN := parsePositiveLimit(r.URL.Query().Get("top"), 5, 50)

	report, err := a.service.SalesReport(r.Context(), from, to, topN)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		body, err := salesReportToCSV(report)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-report-%s.csv\"", from.Format("2006-01-02")))
		_, _ = w.Write(body)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func salesReportToCSV(report domain.SalesReport) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "from", report.From},
		{"summary", "to", report.To},
		{"summary", "sales", strconv.FormatInt(report.Sales, 10)},
		{"summary", "revenue", report.Revenue.StringFixed(2)},
		{"summary", "units_sold", strconv.FormatInt(report.UnitsSold, 10)},
	}
	for _, p := range report.TopProducts {
		rows = append(rows,
			[]string{"product", p.ProductName + "_quantity", strconv.FormatInt(p.Quantity, 10)},
			[]string{"product", p.ProductName + "_revenue", p.Revenue.StringFixed(2)},
		)
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
