package entity

// Unit constants for dimension values.
const (
	UnitInch = "in"
	UnitMM   = "mm"
)

// MMPerInch converts metric dimension values to inches.
const MMPerInch = 25.4

// Cell is a single table cell. Source records the provider that contributed
// the text when the cell was back-filled from a peer candidate.
type Cell struct {
	Text   string `json:"text"`
	BBox   BBox   `json:"bbox"`
	Source string `json:"source,omitempty"`
}

// TableFields is the structured payload of a TABLE candidate (BOM tables,
// cut lists, revision tables).
type TableFields struct {
	Headers []string `json:"headers"`
	Rows    [][]Cell `json:"rows"`

	// DeclaredTotals maps a column header to the total declared by the
	// drawing's totals row, when one is present.
	DeclaredTotals map[string]float64 `json:"declared_totals,omitempty"`
}

func (f *TableFields) clone() *TableFields {
	if f == nil {
		return nil
	}
	cp := &TableFields{
		Headers: append([]string(nil), f.Headers...),
		Rows:    make([][]Cell, len(f.Rows)),
	}
	for i, row := range f.Rows {
		cp.Rows[i] = append([]Cell(nil), row...)
	}
	if f.DeclaredTotals != nil {
		cp.DeclaredTotals = make(map[string]float64, len(f.DeclaredTotals))
		for k, v := range f.DeclaredTotals {
			cp.DeclaredTotals[k] = v
		}
	}
	return cp
}

// Cell returns the cell at (row, col) and whether it exists.
func (f *TableFields) Cell(row, col int) (Cell, bool) {
	if row < 0 || row >= len(f.Rows) {
		return Cell{}, false
	}
	if col < 0 || col >= len(f.Rows[row]) {
		return Cell{}, false
	}
	return f.Rows[row][col], true
}

// DimensionFields is the structured payload of a DIMENSION candidate.
type DimensionFields struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"` // "in" or "mm"
	Tolerance float64 `json:"tolerance,omitempty"`
	Feature   string  `json:"feature,omitempty"` // feature region the dimension belongs to
}

func (f *DimensionFields) clone() *DimensionFields {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

// ValueIn returns the dimension value normalized to inches.
func (f *DimensionFields) ValueIn() float64 {
	if f.Unit == UnitMM {
		return f.Value / MMPerInch
	}
	return f.Value
}

// WeldFields is the structured payload of a WELD candidate. Empty strings
// and nil numbers mean the provider did not extract that field.
type WeldFields struct {
	Side     string   `json:"side,omitempty"`    // "arrow" or "other"
	Process  string   `json:"process,omitempty"` // e.g. "GMAW", "SMAW"
	Symbol   string   `json:"symbol,omitempty"`  // e.g. "fillet", "groove"
	Size     *float64 `json:"size,omitempty"`
	SizeUnit string   `json:"size_unit,omitempty"`
	Length   *float64 `json:"length,omitempty"`
	Pitch    *float64 `json:"pitch,omitempty"`
	Contour  string   `json:"contour,omitempty"`
	Finish   string   `json:"finish,omitempty"`
	Tail     string   `json:"tail,omitempty"`
}

func (f *WeldFields) clone() *WeldFields {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Size = cloneFloat(f.Size)
	cp.Length = cloneFloat(f.Length)
	cp.Pitch = cloneFloat(f.Pitch)
	return &cp
}

// NoteFields is the structured payload of a NOTE candidate.
type NoteFields struct {
	Text string `json:"text"`
}

func (f *NoteFields) clone() *NoteFields {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

// SectionFields is the structured payload of a SECTION callout candidate.
type SectionFields struct {
	Label    string `json:"label"`
	SheetRef string `json:"sheet_ref,omitempty"`
}

func (f *SectionFields) clone() *SectionFields {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
