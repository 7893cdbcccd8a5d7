// Package dataset loads the reference table of recorded mixes. The table is
// read once at start-up and never mutated afterwards.
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"SmartMix/internal/mix"
)

// ErrSchema means the file header does not carry the required columns.
var ErrSchema = errors.New("dataset schema mismatch")

// Column names as they appear in the header.
const (
	ColMixID          = "Mix_ID"
	ColCement         = "Cement"
	ColWater          = "Water"
	ColNCA            = "NCA"
	ColNFA            = "NFA"
	ColRCA            = "RCA_P"
	ColMRCA           = "MRCA_P"
	ColSilicaFume     = "SF"
	ColFlyAsh         = "FA"
	ColFiber          = "Fiber"
	ColWC             = "W_C"
	ColSP             = "SP"
	ColCS28           = "CS_28"
	ColSustainability = "Sustainability"
	ColCost           = "Cost"
	ColCO2            = "CO2"
)

// RequiredColumns must be present; the rest of the constituents default to 0.
var RequiredColumns = []string{ColMixID, ColCement, ColWater, ColRCA, ColCS28, ColSustainability, ColCost, ColCO2}

// Row is one recorded mix with its measured outcomes.
type Row struct {
	MixID          string     `json:"mix_id"`
	Design         mix.Design `json:"design"`
	CS28           float64    `json:"cs_28"`
	Sustainability float64    `json:"sustainability"`
	Cost           float64    `json:"cost"`
	CO2            float64    `json:"co2"`
}

// Dataset is an immutable table of rows in file order.
type Dataset struct {
	rows []Row
}

// New builds a dataset from rows; the slice is copied.
func New(rows []Row) *Dataset {
	return &Dataset{rows: append([]Row(nil), rows...)}
}

// Len is the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Rows returns a copy of all rows in file order.
func (d *Dataset) Rows() []Row {
	if d == nil {
		return nil
	}
	return append([]Row(nil), d.rows...)
}

// Each calls fn for every row in file order without copying the table.
func (d *Dataset) Each(fn func(i int, r Row)) {
	if d == nil {
		return
	}
	for i, r := range d.rows {
		fn(i, r)
	}
}

// StrengthRange returns the smallest and largest 28-day strength.
func (d *Dataset) StrengthRange() (lo, hi float64, ok bool) {
	if d.Len() == 0 {
		return 0, 0, false
	}
	lo, hi = d.rows[0].CS28, d.rows[0].CS28
	for _, r := range d.rows[1:] {
		if r.CS28 < lo {
			lo = r.CS28
		}
		if r.CS28 > hi {
			hi = r.CS28
		}
	}
	return lo, hi, true
}

// Load reads a .csv/.txt (';' or ',' separated) or .xlsx file.
func Load(path string) (*Dataset, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err = readXLSX(path)
	case ".csv", ".txt":
		records, err = readDelimited(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	ds, err := parse(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

func readDelimited(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDelimited(f)
}

// ReadDelimited reads CSV records, choosing ';' or ',' from the header line.
func ReadDelimited(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	reader := csv.NewReader(br)
	reader.Comma = detectDelimiter(string(head))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return records, nil
}

func detectDelimiter(sample string) rune {
	line, _, _ := strings.Cut(sample, "\n")
	if strings.Count(line, ";") >= strings.Count(line, ",") && strings.Contains(line, ";") {
		return ';'
	}
	return ','
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read dataset sheet: %w", err)
	}
	return rows, nil
}

func parse(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrSchema)
	}
	index := make(map[string]int, len(records[0]))
	for i, cell := range records[0] {
		index[CleanHeader(cell)] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrSchema, strings.Join(missing, ", "))
	}

	rows := make([]Row, 0, len(records)-1)
	for line, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row, err := parseRow(index, rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		rows = append(rows, row)
	}
	return &Dataset{rows: rows}, nil
}

func parseRow(index map[string]int, rec []string) (Row, error) {
	cell := func(col string) (string, bool) {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	var firstErr error
	num := func(col string, required bool) float64 {
		s, ok := cell(col)
		if !ok || s == "" {
			if required && firstErr == nil {
				firstErr = fmt.Errorf("%s is empty", col)
			}
			return 0
		}
		v, err := ParseNumber(s)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", col, err)
		}
		return v
	}

	id, _ := cell(ColMixID)
	row := Row{
		MixID: id,
		Design: mix.Design{
			Cement:           num(ColCement, true),
			Water:            num(ColWater, true),
			NCA:              num(ColNCA, false),
			NFA:              num(ColNFA, false),
			RCAPct:           num(ColRCA, true),
			MRCAPct:          num(ColMRCA, false),
			SilicaFume:       num(ColSilicaFume, false),
			FlyAsh:           num(ColFlyAsh, false),
			Fiber:            num(ColFiber, false),
			WCRatio:          num(ColWC, false),
			Superplasticizer: num(ColSP, false),
		},
		CS28:           num(ColCS28, true),
		Sustainability: num(ColSustainability, true),
		Cost:           num(ColCost, true),
		CO2:            num(ColCO2, true),
	}
	return row, firstErr
}

var ErrNotFinite = errors.New("not a finite number")

// ParseNumber accepts a decimal point or a single decimal comma.
// NaN and infinities are rejected.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrNotFinite)
	}
	return v, nil
}

// CleanHeader normalises a header cell: NFKC, BOM and surrounding space removed.
func CleanHeader(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
