package shared

const (
	TokenID  = "token_id"
	ClientIP = "client_ip"
	AdminID  = "admin_id"

	PoolGigachat = "gigachat"
	PoolOpenAI   = "openai"

	IdentityPrefixToken = "token:"
	IdentityPrefixIP    = "ip:"

	// Cache key namespace shared with the Redis substrate.
	KeyBlocked        = "blocked:"
	KeyRateLimit      = "ratelimit:"
	KeyFailedAttempts = "failedattempts:"
	KeySecurityLog    = "securitylog:"
)
