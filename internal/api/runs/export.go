package runs

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tubelens/tubelens/internal/export"
	"github.com/tubelens/tubelens/internal/run"
)

// exportCSV streams a run's rows as a CSV attachment.
func (controller *Controller) exportCSV(ec echo.Context) error {
	id, rows, err := controller.rowsForExport(ec)
	if err != nil {
		return err
	}

	response := ec.Response()
	response.Header().Set(echo.HeaderContentType, "text/csv")
	response.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=videos_%s.csv", id))
	response.WriteHeader(http.StatusOK)

	return export.WriteCSV(response, rows)
}

// exportXLSX streams a run's rows as a single-sheet XLSX workbook.
func (controller *Controller) exportXLSX(ec echo.Context) error {
	id, rows, err := controller.rowsForExport(ec)
	if err != nil {
		return err
	}

	response := ec.Response()
	response.Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	response.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=videos_%s.xlsx", id))
	response.WriteHeader(http.StatusOK)

	return export.WriteXLSX(response, rows)
}

func (controller *Controller) rowsForExport(ec echo.Context) (uuid.UUID, []*run.VideoRow, error) {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, "Run ID is not a valid UUID")
	}

	rows, err := controller.store.RowsForRun(controller.db.GetSqlxDb(), id)
	if err != nil {
		return uuid.Nil, nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return id, rows, nil
}
