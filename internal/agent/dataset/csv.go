package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gisa-chat/server/internal/agent/model"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// CSV file names expected inside the data directory.
const (
	FilePiani          = "piani.csv"
	FileActivities     = "piani_attivita.csv"
	FileEstablishments = "stabilimenti.csv"
	FileControls       = "controlli.csv"
	FileRisk           = "rischio.csv"
	FileProgress       = "avanzamento.csv"
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

// LoadCSVDir builds a MemoryDataset from the CSV exports in dir. Missing
// files load as empty tables; malformed rows fail the load.
func LoadCSVDir(dir string) (*MemoryDataset, error) {
	var t Tables
	loaders := []struct {
		file string
		load func(row) error
	}{
		{FilePiani, func(r row) error {
			t.Piani = append(t.Piani, model.Piano{
				Code:        normCode(r.get("code")),
				Title:       r.get("title"),
				Description: r.get("description"),
				Area:        r.get("area"),
			})
			return nil
		}},
		{FileActivities, func(r row) error {
			t.Activities = append(t.Activities, model.PianoActivity{
				PianoCode: normCode(r.get("piano_code")),
				Activity:  r.get("activity"),
				Category:  r.get("category"),
			})
			return nil
		}},
		{FileEstablishments, func(r row) error {
			t.Establishments = append(t.Establishments, model.Establishment{
				ID:       r.get("id"),
				Name:     r.get("name"),
				ASL:      r.get("asl"),
				Comune:   r.get("comune"),
				Activity: r.get("activity"),
				Category: r.get("category"),
			})
			return nil
		}},
		{FileControls, func(r row) error {
			date, err := r.dateCol("date")
			if err != nil {
				return err
			}
			nc, err := r.intCol("nc_count")
			if err != nil {
				return err
			}
			t.Controls = append(t.Controls, model.ControlRecord{
				EstablishmentID: r.get("establishment_id"),
				PianoCode:       normCode(r.get("piano_code")),
				ASL:             r.get("asl"),
				Date:            date,
				Outcome:         r.get("outcome"),
				NCCount:         nc,
				NCCategory:      r.get("nc_category"),
			})
			return nil
		}},
		{FileRisk, func(r row) error {
			score, err := r.floatCol("score")
			if err != nil {
				return err
			}
			nc, err := r.intCol("nc_count")
			if err != nil {
				return err
			}
			t.Risk = append(t.Risk, model.RiskScore{
				ASL:      r.get("asl"),
				Activity: r.get("activity"),
				Category: r.get("category"),
				Score:    score,
				NCCount:  nc,
			})
			return nil
		}},
		{FileProgress, func(r row) error {
			planned, err := r.intCol("planned")
			if err != nil {
				return err
			}
			executed, err := r.intCol("executed")
			if err != nil {
				return err
			}
			t.Progress = append(t.Progress, model.PlanProgress{
				PianoCode: normCode(r.get("piano_code")),
				ASL:       r.get("asl"),
				UOC:       r.get("uoc"),
				Planned:   planned,
				Executed:  executed,
			})
			return nil
		}},
	}

	for _, l := range loaders {
		path := filepath.Join(dir, l.file)
		n, err := readCSV(path, l.load)
		if errors.Is(err, fs.ErrNotExist) {
			logx.Warn().Str("file", path).Msg("dataset file missing, table left empty")
			continue
		}
		if err != nil {
			return nil, err
		}
		logx.Debug().Str("file", path).Int("rows", n).Msg("dataset table loaded")
	}
	return NewMemoryDataset(t), nil
}

type row struct {
	cols   map[string]int
	fields []string
	file   string
	line   int
}

func (r row) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r row) intCol(col string) (int, error) {
	s := r.get(col)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: column %s: %w", r.file, r.line, col, err)
	}
	return v, nil
}

func (r row) floatCol(col string) (float64, error) {
	s := strings.Replace(r.get(col), ",", ".", 1)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: column %s: %w", r.file, r.line, col, err)
	}
	return v, nil
}

func (r row) dateCol(col string) (time.Time, error) {
	s := r.get(col)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s:%d: column %s: unrecognized date %q", r.file, r.line, col, s)
}

func readCSV(path string, load func(row) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return parseCSV(f, filepath.Base(path), load)
}

func parseCSV(rd io.Reader, name string, load func(row) error) (int, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: read header: %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	n := 0
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%s: %w", name, err)
		}
		if err := load(row{cols: cols, fields: rec, file: name, line: line}); err != nil {
			return n, err
		}
		n++
	}
}
