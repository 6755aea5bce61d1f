package view

// Anchor ties a point of a page to a point of the viewport: the page point
// at (XRatio, YRatio) of the page size is shown at view pixel (ViewX, ViewY).
type Anchor struct {
	Page   int     `json:"page"`
	XRatio float64 `json:"x_ratio"`
	YRatio float64 `json:"y_ratio"`
	ViewX  float64 `json:"view_x"`
	ViewY  float64 `json:"view_y"`
}

// State is the persisted per-view state. Restoring it shows the same page
// content at the same viewport position.
type State struct {
	ColumnCount      int    `json:"column_count"`
	LeadingEmptyPage int    `json:"leading_empty_page"`
	ZoomIndex        int    `json:"zoom_index"`
	FitWidth         bool   `json:"fit_width"`
	Location         Anchor `json:"location"`
}
