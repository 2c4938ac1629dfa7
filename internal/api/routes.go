package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/icanhazwheelhouse"
	MetricsRoute     = "/metrics"

	MintTokenRoute = "/v1/oidc/mint"
	AudienceRoute  = "/v1/oidc/audience"

	AdminParent           = "/v1/admin/"
	ListAuditsRoute       = AdminParent + "audits"
	ListCredentialsRoute  = AdminParent + "credentials"
	ListIssuersRoute      = AdminParent + "issuers"
	ToggleIssuerKindRoute = AdminParent + "issuers/{kind}"

	TaskParent       = "/v1/tasks/"
	ListTasksRoute   = TaskParent
	TriggerTaskRoute = TaskParent + "{name}/trigger"
	LogsForTaskRoute = TaskParent + "{name}/logs"
)
