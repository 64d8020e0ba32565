// Package enrich fills structural nulls in fact tables by coalesce-joining
// narrow projections of the parent tables (subject demographics, episode
// stay data) onto every table that shares the join column.
package enrich

import (
	"strings"
	"time"

	"eds/internal/table"
)

// Config names the parent tables and the columns their projections carry.
type Config struct {
	SubjectTable   string
	SubjectKey     string
	SubjectColumns []string

	EpisodeTable   string
	EpisodeKey     string
	EpisodeColumns []string

	// BirthDateColumn/AgeColumn drive the derived age on the subject table.
	BirthDateColumn string
	AgeColumn       string

	// WardColumn on the episode table is defaulted to DefaultWard when null.
	WardColumn  string
	DefaultWard string
}

// DefaultConfig is the standard warehouse wiring.
func DefaultConfig() Config {
	return Config{
		SubjectTable:   "patient",
		SubjectKey:     "PATID",
		SubjectColumns: []string{"PATBD", "PATAGE", "PATSEX"},

		EpisodeTable: "mvt",
		EpisodeKey:   "EVTID",
		EpisodeColumns: []string{
			"PATID", "ELTID", "DATENT", "DATSORT",
			"SEJUM", "SEJUF", "PATAGE", "PATSEX", "PATBD",
		},

		BirthDateColumn: "PATBD",
		AgeColumn:       "PATAGE",

		WardColumn:  "SEJUM",
		DefaultWard: "Service Général",
	}
}

// Joiner performs the two enrichment passes over an in-memory batch.
type Joiner struct {
	cfg Config

	// now is injected for deterministic age computation in tests.
	now func() time.Time
}

// New returns a Joiner with the given configuration.
func New(cfg Config) *Joiner {
	return &Joiner{cfg: cfg, now: time.Now}
}

// Enrich mutates the batch tables in place.
//
// Pass order is load-bearing: the subject pass runs first so the episode
// table itself picks up demographic columns, and the episode pass then
// propagates those values transitively into fact tables that reference only
// the episode. Coalesce never overwrites a non-null fact value.
func (j *Joiner) Enrich(tables map[string]*table.Table) {
	j.deriveAge(tables[j.cfg.SubjectTable])
	j.defaultWard(tables[j.cfg.EpisodeTable])

	if proj := buildProjection(tables[j.cfg.SubjectTable], j.cfg.SubjectKey, j.cfg.SubjectColumns); proj != nil {
		for name, t := range tables {
			if name == j.cfg.SubjectTable {
				continue
			}
			coalesceJoin(t, j.cfg.SubjectKey, proj)
		}
	}

	if proj := buildProjection(tables[j.cfg.EpisodeTable], j.cfg.EpisodeKey, j.cfg.EpisodeColumns); proj != nil {
		for name, t := range tables {
			if name == j.cfg.SubjectTable || name == j.cfg.EpisodeTable {
				continue
			}
			coalesceJoin(t, j.cfg.EpisodeKey, proj)
		}
	}
}

// projection is a narrow keyed view of a parent table: key value -> the
// parent's values for the projected columns (first occurrence wins).
type projection struct {
	columns []string
	rows    map[table.Value][]table.Value
}

func buildProjection(parent *table.Table, key string, columns []string) *projection {
	if parent.NumRows() == 0 {
		return nil
	}
	keyIdx := parent.ColumnIndex(key)
	if keyIdx < 0 {
		return nil
	}

	var cols []string
	var idxs []int
	for _, c := range columns {
		if i := parent.ColumnIndex(c); i >= 0 {
			cols = append(cols, c)
			idxs = append(idxs, i)
		}
	}
	if len(cols) == 0 {
		return nil
	}

	proj := &projection{columns: cols, rows: map[table.Value][]table.Value{}}
	for r := range parent.Rows {
		k := parent.Cell(r, keyIdx)
		if isBlank(k) {
			continue
		}
		if _, ok := proj.rows[k]; ok {
			continue
		}
		vals := make([]table.Value, len(idxs))
		for i, idx := range idxs {
			vals[i] = parent.Cell(r, idx)
		}
		proj.rows[k] = vals
	}
	return proj
}

// coalesceJoin fills null cells of t from the projection, matching on the
// key column. Columns the fact table does not carry are not added; a fact's
// own non-null value is never replaced.
func coalesceJoin(t *table.Table, key string, proj *projection) {
	if t.NumRows() == 0 {
		return
	}
	keyIdx := t.ColumnIndex(key)
	if keyIdx < 0 {
		return
	}

	var targets []int // parallel to proj.columns; -1 when t lacks the column
	found := false
	for _, c := range proj.columns {
		i := t.ColumnIndex(c)
		targets = append(targets, i)
		if i >= 0 {
			found = true
		}
	}
	if !found {
		return
	}

	for r := range t.Rows {
		k := t.Cell(r, keyIdx)
		if isBlank(k) {
			continue
		}
		vals, ok := proj.rows[k]
		if !ok {
			continue
		}
		for i, idx := range targets {
			if idx < 0 || !t.Cell(r, idx).IsNull() {
				continue
			}
			t.SetCell(r, idx, vals[i])
		}
	}
}

// deriveAge computes the age column from the birth date column on the
// subject table, only where the age is not already present.
func (j *Joiner) deriveAge(subject *table.Table) {
	if subject.NumRows() == 0 || j.cfg.BirthDateColumn == "" || j.cfg.AgeColumn == "" {
		return
	}
	bdIdx := subject.ColumnIndex(j.cfg.BirthDateColumn)
	if bdIdx < 0 {
		return
	}
	ageIdx := subject.AddColumn(j.cfg.AgeColumn)

	today := j.now()
	for r := range subject.Rows {
		if !subject.Cell(r, ageIdx).IsNull() {
			continue
		}
		if age, ok := ageAt(subject.Cell(r, bdIdx).String(), today); ok {
			subject.SetCell(r, ageIdx, table.Number(float64(age)))
		}
	}
}

func (j *Joiner) defaultWard(episode *table.Table) {
	if episode.NumRows() == 0 || j.cfg.WardColumn == "" || j.cfg.DefaultWard == "" {
		return
	}
	idx := episode.ColumnIndex(j.cfg.WardColumn)
	if idx < 0 {
		return
	}
	for r := range episode.Rows {
		if episode.Cell(r, idx).IsNull() {
			episode.SetCell(r, idx, table.Text(j.cfg.DefaultWard))
		}
	}
}

// ageAt computes whole years between an ISO birth date and a reference time.
// Time-of-day and zone suffixes on the birth date are ignored.
func ageAt(birthDate string, ref time.Time) (int, bool) {
	datePart := birthDate
	if i := strings.IndexByte(datePart, 'T'); i >= 0 {
		datePart = datePart[:i]
	}
	bd, err := time.Parse("2006-01-02", strings.TrimSpace(datePart))
	if err != nil {
		return 0, false
	}

	years := ref.Year() - bd.Year()
	if ref.Month() < bd.Month() || (ref.Month() == bd.Month() && ref.Day() < bd.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

func isBlank(v table.Value) bool {
	return v.IsNull() || (v.Kind() == table.KindText && strings.TrimSpace(v.String()) == "")
}
