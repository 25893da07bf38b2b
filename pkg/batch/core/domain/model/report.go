package model

// ReportFilter narrows an aggregated read to some values of the first dimension.
// An empty filter selects every group.
type ReportFilter struct {
	Keys []string `json:"keys,omitempty"`
}

// ReportGroup is one (dimension1, dimension2) group with its summed measures.
type ReportGroup struct {
	Dimensions [2]string          `json:"dimensions"`
	Sums       map[string]float64 `json:"sums"`
	Rows       int64              `json:"rows"`
}

// ReportResult is the aggregated view of one run.
type ReportResult struct {
	RunID      string        `json:"runId"`
	Dimensions [2]string     `json:"dimensionNames"`
	Measures   []string      `json:"measures"`
	Groups     []ReportGroup `json:"groups"`
	// Keys is the distinct, sorted list of first-dimension values of the run.
	Keys []string `json:"keys"`
	// TotalRows counts every row of the run regardless of the filter.
	TotalRows int64 `json:"totalRows"`
}

// ReportRecord is the columnar, one-row-per-measure form of a ReportGroup.
type ReportRecord struct {
	RunID          string  `parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	DimensionName1 string  `parquet:"name=dimension_1_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Dimension1     string  `parquet:"name=dimension_1,type=BYTE_ARRAY,convertedtype=UTF8"`
	DimensionName2 string  `parquet:"name=dimension_2_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Dimension2     string  `parquet:"name=dimension_2,type=BYTE_ARRAY,convertedtype=UTF8"`
	Measure        string  `parquet:"name=measure,type=BYTE_ARRAY,convertedtype=UTF8"`
	Value          float64 `parquet:"name=value,type=DOUBLE"`
	Rows           int64   `parquet:"name=rows,type=INT64"`
}

// Records flattens the result into ReportRecords in group then measure order.
func (r *ReportResult) Records() []ReportRecord {
	out := make([]ReportRecord, 0, len(r.Groups)*len(r.Measures))
	for _, g := range r.Groups {
		for _, m := range r.Measures {
			out = append(out, ReportRecord{
				RunID:          r.RunID,
				DimensionName1: r.Dimensions[0],
				Dimension1:     g.Dimensions[0],
				DimensionName2: r.Dimensions[1],
				Dimension2:     g.Dimensions[1],
				Measure:        m,
				Value:          g.Sums[m],
				Rows:           g.Rows,
			})
		}
	}
	return out
}
