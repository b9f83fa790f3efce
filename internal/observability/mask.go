package observability

import "regexp"

var (
	rePassword = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
	reToken    = regexp.MustCompile(`(?i)(token=|bearer\s+)([A-Za-z0-9._-]+)`)
	reDSNPass  = regexp.MustCompile(`(?i)(://)([^:/@]+):([^@]+)(@)`)
	reMySQL    = regexp.MustCompile(`^([^:/@]+):([^@]+)(@tcp\()`)
	reAPIKey   = regexp.MustCompile(`(?i)(apikey=|api_key=)([^\s;&]+)`)
	reOpenAI   = regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`)
	reEnvPair  = regexp.MustCompile(`\b(PGPASSWORD|OPENAI_API_KEY|ASKQL_AI_API_KEY|ASKQL_EXPORT_S3_SECRET_KEY)=(\S+)`)
)

// Mask replaces credentials in DSNs, error messages and log values with "***".
func Mask(s string) string {
	out := s
	out = rePassword.ReplaceAllString(out, "$1***")
	out = reToken.ReplaceAllString(out, "$1***")
	out = reDSNPass.ReplaceAllString(out, "$1$2:***$4")
	out = reMySQL.ReplaceAllString(out, "$1:***$3")
	out = reAPIKey.ReplaceAllString(out, "$1***")
	out = reOpenAI.ReplaceAllString(out, "sk-***")
	out = reEnvPair.ReplaceAllString(out, "$1=***")
	return out
}
