// Package report writes and reads the tabular artifacts reviewed by
// humans: candidate suggestion files, the conflict trail, and validation
// reports.  CSV is the interchange format because the LLM collaborator
// and the reviewers work in spreadsheets, not in JSON.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

var candidateHeader = []string{
	"original_name", "suggested_cas", "suggested_name", "pubchem_cid",
	"molecular_formula", "molecular_weight", "smiles", "confidence", "notes",
}

var conflictHeader = []string{
	"compound_key", "field", "competing_values", "resolution",
}

// Sink writes report artifacts.
type Sink struct {
	logger logging.Logger
}

// NewSink returns a Sink logging through the given logger.
func NewSink(logger logging.Logger) *Sink {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Sink{logger: logger.Named("report")}
}

// WriteCandidates writes a candidate file, replacing any previous one.
// The column set is the interchange contract shared with the external
// LLM collaborator: files written here and files coming back from the
// collaborator parse identically.
func (s *Sink) WriteCandidates(path string, rows []compound.Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "creating candidate file").
			WithDetail("path=" + path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(candidateHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "writing candidate header")
	}
	for _, row := range rows {
		record := []string{
			row.CompoundKey,
			row.CAS,
			row.Name,
			row.PubChemCID,
			row.MolecularFormula,
			row.MolecularWeight,
			row.SMILES,
			string(row.Confidence),
			row.Notes,
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWrite, "writing candidate row").
				WithDetail("compound=" + row.CompoundKey)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "flushing candidate file")
	}

	s.logger.Info("candidate file written",
		logging.String("path", path), logging.Int("rows", len(rows)))
	return nil
}

// ReadCandidates parses a candidate file, stamping every row with the
// given source tier.  Rows with an empty original_name are skipped and
// counted in the returned skip total; a row without a CAS is a recorded
// no-candidate outcome and kept.
func (s *Sink) ReadCandidates(path string, source ctypes.SourceType) ([]compound.Candidate, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errors.New(errors.ErrCodeNotFound, "candidate file not found").
				WithDetail("path=" + path)
		}
		return nil, 0, errors.Wrap(err, errors.ErrCodeArtifactRead, "opening candidate file").
			WithDetail("path=" + path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(candidateHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeArtifactRead, "parsing candidate file").
			WithDetail("path=" + path)
	}
	if len(records) == 0 {
		return nil, 0, errors.New(errors.ErrCodeArtifactRead, "candidate file has no header").
			WithDetail("path=" + path)
	}
	if !headerMatches(records[0]) {
		return nil, 0, errors.Newf(errors.ErrCodeArtifactRead,
			"candidate file header %v does not match the interchange format", records[0])
	}

	var (
		rows    []compound.Candidate
		skipped int
	)
	for _, rec := range records[1:] {
		name := strings.TrimSpace(rec[0])
		if name == "" {
			skipped++
			continue
		}
		rows = append(rows, compound.Candidate{
			CompoundKey:      compound.NormalizeName(name),
			CAS:              strings.TrimSpace(rec[1]),
			Name:             strings.TrimSpace(rec[2]),
			PubChemCID:       strings.TrimSpace(rec[3]),
			MolecularFormula: strings.TrimSpace(rec[4]),
			MolecularWeight:  strings.TrimSpace(rec[5]),
			SMILES:           strings.TrimSpace(rec[6]),
			Source:           source,
			Confidence:       ctypes.ParseConfidence(rec[7]),
			Notes:            rec[8],
		})
	}

	s.logger.Info("candidate file read",
		logging.String("path", path),
		logging.String("source", string(source)),
		logging.Int("rows", len(rows)),
		logging.Int("skipped", skipped),
	)
	return rows, skipped, nil
}

func headerMatches(row []string) bool {
	if len(row) != len(candidateHeader) {
		return false
	}
	for i, col := range candidateHeader {
		if strings.TrimSpace(strings.ToLower(row[i])) != col {
			return false
		}
	}
	return true
}

// AppendConflicts appends conflict rows to the trail, writing the header
// first when the file is new.  The trail is append-only: rows already
// written are never touched.
func (s *Sink) AppendConflicts(path string, conflicts []compound.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "opening conflict trail").
			WithDetail("path=" + path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(conflictHeader); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWrite, "writing conflict header")
		}
	}
	for _, c := range conflicts {
		values := make([]string, 0, len(c.CompetingValues))
		for _, v := range c.CompetingValues {
			values = append(values, fmt.Sprintf("%s:%s", v.Source, v.Value))
		}
		record := []string{c.CompoundKey, c.Field, strings.Join(values, "; "), c.Resolution}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWrite, "writing conflict row").
				WithDetail("compound=" + c.CompoundKey)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWrite, "flushing conflict trail")
	}

	s.logger.Info("conflicts appended",
		logging.String("path", path), logging.Int("rows", len(conflicts)))
	return nil
}
