// Package export renders procurement logs as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/domain/entity"
)

// SheetName is the worksheet holding the log rows
const SheetName = "調達ログ"

var logHeaders = []interface{}{"ID", "見積明細ID", "発注書ID", "区分", "日付", "数量", "実行者", "備考", "記録日時"}

// LogExporter implements port.ProcurementLogExporter
type LogExporter struct {
	logger *zap.Logger
}

// NewLogExporter creates a new workbook exporter
func NewLogExporter(logger *zap.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// WriteWorkbook writes one header row and one row per log to w
func (e *LogExporter) WriteWorkbook(w io.Writer, logs []*entity.ProcurementLog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &logHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, log := range logs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to resolve cell: %w", err)
		}

		orderID := ""
		if log.PurchaseOrderID != nil {
			orderID = strconv.FormatInt(*log.PurchaseOrderID, 10)
		}
		row := []interface{}{
			log.ID,
			log.QuoteItemID,
			orderID,
			string(log.ActionType),
			log.ActionDate.UTC().Format("2006-01-02"),
			log.Quantity,
			log.PerformedBy,
			log.Notes,
			log.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		e.logger.Warn("Failed to freeze header row", zap.Error(err))
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Procurement logs exported", zap.Int("rows", len(logs)))
	return nil
}
