package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
)

var (
	orderingParam = "ordering"
	selectParam   = "select"
	whereParam    = "where"
	limitParam    = "limit"
	themeParam    = "theme"
)

// bindQuery reads ?select=a,b&where=col=val&where=col:null&ordering=name,-id&limit=N into a query on table.
func bindQuery(ctx echo.Context, table string, defaultLimit int) (query.Query, error) {
	params := ctx.QueryParams()
	q := query.From(table)

	var filters query.Filters
	for _, raw := range params[whereParam] {
		if err := filters.Set(raw); err != nil {
			return query.Query{}, err
		}
	}
	q = q.Where(filters...)

	cols, err := query.ParseColumns(params.Get(selectParam))
	if err != nil {
		return query.Query{}, err
	}
	q = q.Select(cols...)

	orderings, err := query.ParseOrdering(params.Get(orderingParam))
	if err != nil {
		return query.Query{}, err
	}
	q = q.OrderBy(orderings...)

	limit, err := bindLimit(ctx, defaultLimit)
	if err != nil {
		return query.Query{}, err
	}
	return q.Take(limit), nil
}

func bindLimit(ctx echo.Context, defaultLimit int) (int, error) {
	raw := ctx.QueryParam(limitParam)
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, core.NewArgumentError("limit must be a non-negative number (got %q)", raw)
	}
	return limit, nil
}

func bindIsDark(ctx echo.Context) bool {
	return ctx.QueryParam(themeParam) == "dark"
}
