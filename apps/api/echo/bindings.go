package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
)

const (
	orderingParam = "ordering"
	idParam       = "id"
)

// Ordering binds the `ordering` query param, eg. "?ordering=code,-created_at".
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindIDs returns the non-empty values of the repeated `id` query param.
func bindIDs(ctx echo.Context) []string {
	vals := ctx.QueryParams()[idParam]
	ids := make([]string, 0, len(vals))
	for _, id := range vals {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
