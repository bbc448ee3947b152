package model

// Settings holds the per-user preferences persisted alongside the leads.
type Settings struct {
	OpenAIKey        string `json:"open_ai_key,omitempty"`
	UseProxies       bool   `json:"use_proxies"`
	RequestDelaySecs int    `json:"request_delay_secs"`
	RespectRobotsTxt bool   `json:"respect_robots_txt"`
	DefaultSource    string `json:"default_source"`
}
