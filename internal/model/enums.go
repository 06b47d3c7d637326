package model

// Job status
type JobStatus string

const (
	JobStatusUploading  JobStatus = "uploading"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError || s == JobStatusCancelled
}

var ValidJobStatuses = []JobStatus{
	JobStatusUploading, JobStatusProcessing, JobStatusComplete,
	JobStatusError, JobStatusCancelled,
}

// Classification labels assigned by the classifier stage
type Classification string

const (
	ClassificationCritical     Classification = "Critical"
	ClassificationImportant    Classification = "Important"
	ClassificationStandard     Classification = "Standard"
	ClassificationUnclassified Classification = "Unclassified"
)

var ValidClassifications = []Classification{
	ClassificationCritical, ClassificationImportant,
	ClassificationStandard, ClassificationUnclassified,
}

// Pipeline stages
type Stage string

const (
	StageExtract   Stage = "extract"
	StageClassify  Stage = "classify"
	StageDuplicate Stage = "duplicate"
)
