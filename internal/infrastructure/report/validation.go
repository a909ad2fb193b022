package report

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/validation"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

var validationHeader = []string{
	"record_index", "field", "code", "message", "passed",
}

// WriteValidationReport writes the full diagnostic report: one row per
// violation plus a pass marker per clean record.
func (s *Sink) WriteValidationReport(path string, rep *validation.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "creating validation report").
			WithDetail("path=" + path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(validationHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "writing validation header")
	}
	for _, row := range rep.Rows {
		record := []string{
			strconv.Itoa(row.RecordIndex),
			row.Field,
			row.Code,
			row.Message,
			strconv.FormatBool(row.Passed),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWrite, "writing validation row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "flushing validation report")
	}

	s.logger.Info("validation report written",
		logging.String("path", path),
		logging.Int("records", rep.Records),
		logging.Int("violations", rep.Violations),
		logging.Bool("valid", rep.Valid),
	)
	return nil
}
