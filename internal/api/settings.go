package api

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/credential"
	"github.com/sells-group/lead-harvest/internal/model"
)

var errDelayRange = eris.New("request_delay_secs must be between 1 and 10")

// settingsView is the settings as returned to clients; the key is masked.
type settingsView struct {
	HasAPIKey        bool   `json:"has_api_key"`
	APIKeyHint       string `json:"api_key_hint,omitempty"`
	UseProxies       bool   `json:"use_proxies"`
	RequestDelaySecs int    `json:"request_delay_secs"`
	RespectRobotsTxt bool   `json:"respect_robots_txt"`
	DefaultSource    string `json:"default_source"`
}

func newSettingsView(st model.Settings) settingsView {
	v := settingsView{
		UseProxies:       st.UseProxies,
		RequestDelaySecs: st.RequestDelaySecs,
		RespectRobotsTxt: st.RespectRobotsTxt,
		DefaultSource:    st.DefaultSource,
	}
	if key := strings.TrimSpace(st.OpenAIKey); key != "" {
		v.HasAPIKey = true
		v.APIKeyHint = MaskKey(key)
	}
	return v
}

// MaskKey keeps the last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// settingsPatch holds the updatable settings; nil leaves a value unchanged.
type settingsPatch struct {
	OpenAIKey        *string `json:"open_ai_key"`
	UseProxies       *bool   `json:"use_proxies"`
	RequestDelaySecs *int    `json:"request_delay_secs"`
	RespectRobotsTxt *bool   `json:"respect_robots_txt"`
	DefaultSource    *string `json:"default_source"`
}

func (p settingsPatch) apply(st model.Settings) model.Settings {
	if p.OpenAIKey != nil {
		st.OpenAIKey = strings.TrimSpace(*p.OpenAIKey)
	}
	if p.UseProxies != nil {
		st.UseProxies = *p.UseProxies
	}
	if p.RequestDelaySecs != nil {
		st.RequestDelaySecs = *p.RequestDelaySecs
	}
	if p.RespectRobotsTxt != nil {
		st.RespectRobotsTxt = *p.RespectRobotsTxt
	}
	if p.DefaultSource != nil {
		st.DefaultSource = strings.TrimSpace(*p.DefaultSource)
	}
	return st
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(st))
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	current, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	next := patch.apply(current)
	if next.RequestDelaySecs < 1 || next.RequestDelaySecs > 10 {
		writeError(w, r, invalid(errDelayRange))
		return
	}
	if err := s.svc.SaveSettings(r.Context(), next); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(next))
}

type testKeyRequest struct {
	Key string `json:"key"`
}

// testKey serves POST /api/settings/test-key. Without a key in the body the
// saved key is checked.
func (s *Server) testKey(w http.ResponseWriter, r *http.Request) {
	var req testKeyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key := req.Key
	if strings.TrimSpace(key) == "" {
		st, err := s.svc.Settings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		key = st.OpenAIKey
	}
	if err := credential.CheckKeyFormat(key, s.opts.KeyPrefix); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
