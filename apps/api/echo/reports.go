package echoapi

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
	reportsvc "github.com/trezcool/trainingops/services/report"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type reportHandlers struct {
	svc      *training.Service
	rowLimit int
}

type (
	pageData struct {
		Title string
		Nav   *NavButton
	}

	dashboardPage struct {
		pageData
		Breakdown training.Breakdown
		Tables    []string
	}

	breakdownPage struct {
		pageData
		Breakdown training.Breakdown
	}

	missingExpiryPage struct {
		pageData
		Items []training.MissingExpiry
	}

	rowsResponse struct {
		Table   string      `json:"table"`
		Columns []string    `json:"columns"`
		Rows    []query.Row `json:"rows"`
		Count   int         `json:"count"`
	}

	countResponse struct {
		Table string `json:"table"`
		Count int    `json:"count"`
	}
)

func writeJSON(ctx echo.Context, code int, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding response")
	}
	return ctx.JSONBlob(code, b)
}

func (h *reportHandlers) dashboard(ctx echo.Context) error {
	b, err := h.svc.CountByLocation(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "dashboard", dashboardPage{
		pageData:  pageData{Title: "Training records"},
		Breakdown: b,
		Tables:    training.Tables,
	})
}

func (h *reportHandlers) breakdownPage(ctx echo.Context) error {
	b, err := h.svc.CountByLocation(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "breakdown", breakdownPage{
		pageData:  pageData{Title: "Records by location", Nav: &NavButton{IsDark: bindIsDark(ctx)}},
		Breakdown: b,
	})
}

func (h *reportHandlers) missingExpiryPage(ctx echo.Context) error {
	limit, err := bindLimit(ctx, h.rowLimit)
	if err != nil {
		return err
	}
	items, err := h.svc.MissingExpiry(ctx.Request().Context(), limit)
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "missing-expiry", missingExpiryPage{
		pageData: pageData{Title: "Completed records without expiry", Nav: &NavButton{IsDark: bindIsDark(ctx)}},
		Items:    items,
	})
}

func (h *reportHandlers) breakdownJSON(ctx echo.Context) error {
	b, err := h.svc.CountByLocation(ctx.Request().Context())
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	ctx.Response().WriteHeader(http.StatusOK)
	p, err := reportsvc.NewPrinter(ctx.Response(), reportsvc.FormatJSON)
	if err != nil {
		return err
	}
	return p.Breakdown(b)
}

func (h *reportHandlers) listRows(ctx echo.Context) error {
	table := ctx.Param("table")
	if !training.IsKnownTable(table) {
		return errHttpNotFound
	}
	q, err := bindQuery(ctx, table, h.rowLimit)
	if err != nil {
		return err
	}
	res, err := query.Run(ctx.Request().Context(), h.svc.Backend(), q)
	if err != nil {
		return err
	}
	cols := query.Columns(res.Rows, q.Columns)
	if cols == nil {
		cols = []string{}
	}
	return writeJSON(ctx, http.StatusOK, rowsResponse{
		Table:   table,
		Columns: cols,
		Rows:    res.Rows,
		Count:   len(res.Rows),
	})
}

func (h *reportHandlers) countRows(ctx echo.Context) error {
	table := ctx.Param("table")
	if !training.IsKnownTable(table) {
		return errHttpNotFound
	}
	q, err := bindQuery(ctx, table, 0)
	if err != nil {
		return err
	}
	n, err := query.Count(ctx.Request().Context(), h.svc.Backend(), table, q.Filters...)
	if err != nil {
		return err
	}
	return writeJSON(ctx, http.StatusOK, countResponse{Table: table, Count: n})
}
