package storage

const (
	RunStatusGeneratingPrompts = "generating_prompts"
	RunStatusComplete          = "complete"
	RunStatusFailed            = "failed"

	AgentStatusWaiting     = "waiting"
	AgentStatusSubmitting  = "submitting"
	AgentStatusProcessing  = "processing"
	AgentStatusDownloading = "downloading"
	AgentStatusDone        = "done"
	AgentStatusFailed      = "failed"
)
