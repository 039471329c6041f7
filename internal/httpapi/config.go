package httpapi

// defaultMaxBody caps JSON request bodies. Streaming responses are not
// subject to this limit.
const defaultMaxBody = 1 << 20

var maxBodyBytes int64 = defaultMaxBody

// SetMaxBodyBytes overrides the JSON body cap; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBody
	}
	maxBodyBytes = n
}

// corsSettings holds the opt-in CORS middleware configuration. When disabled
// no CORS middleware is mounted at all.
type corsSettings struct {
	enabled bool
	origins []string
	methods []string
	headers []string
}

var corsCfg corsSettings

// SetCORSOptions configures cross-origin behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsCfg = corsSettings{
		enabled: enabled,
		origins: append([]string(nil), origins...),
		methods: append([]string(nil), methods...),
		headers: append([]string(nil), headers...),
	}
}
