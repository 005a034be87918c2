package model

// MergeRecord is the upstream result of a merge request.
type MergeRecord struct {
	SHA     string
	Merged  bool
	Message string
}
