package models

// PreviewPage is one paginated view of a file's rows.
type PreviewPage struct {
	Columns     []string `json:"columns" msgpack:"columns"`
	Rows        []Row    `json:"rows" msgpack:"rows"`
	RowCount    int      `json:"rowCount" msgpack:"rowCount"`
	CurrentPage int      `json:"currentPage" msgpack:"currentPage"`
	PageSize    int      `json:"pageSize" msgpack:"pageSize"`
	TotalPages  int      `json:"totalPages" msgpack:"totalPages"`
}
