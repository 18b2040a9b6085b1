package models

// UploadFailure records one failed image push with enough context to retry by
// hand.
type UploadFailure struct {
	ItemName  string
	ImageType string
	ExtraInfo string
	Err       string
}

// SyncReport accumulates the outcome of one sync run. A fresh report is owned
// by each run; nothing here is global state.
type SyncReport struct {
	Uploaded       int
	MissingFolders []string
	ExtraFolders   []string
	UsedFolders    []string
	Failures       []UploadFailure
}
