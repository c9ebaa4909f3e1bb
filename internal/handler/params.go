package handler

type TriggerParams struct {
	Pipeline  string `param:"pipeline"`
	Branch    string `json:"branch"     form:"branch"`
	CommitSha string `json:"commit_sha" form:"commit_sha"`
}

type RunParams struct {
	RunID int64 `param:"run_id"`
}

type PipelineRunParams struct {
	Pipeline string `param:"pipeline"`
	RunID    int64  `param:"run_id"`
}

type ListRunsParams struct {
	Pipeline string `param:"pipeline"`
	Page     int64  `                  query:"page"`
	Limit    int64  `                  query:"limit"`
}

type WebhookKeyParams struct {
	WebhookKeyID int64  `param:"webhook_key_id"`
	Description  string `json:"description" form:"description"`
}
