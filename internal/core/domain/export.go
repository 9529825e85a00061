package domain

const (
	ExportCSV  = "csv"
	ExportXLSX = "xlsx"
)

type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
