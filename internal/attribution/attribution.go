package attribution

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/fieldmap"
)

const (
	KeySource   = "utm_source"
	KeyMedium   = "utm_medium"
	KeyCampaign = "utm_campaign"
	KeyContent  = "utm_content"
	KeyTerm     = "utm_term"

	timestampCookie = "timestamp"
)

type MergePolicy string

const (
	// PolicyReplace stores only the newly captured keys.
	PolicyReplace MergePolicy = "replace"
	// PolicyMerge overwrites captured keys and keeps the rest.
	PolicyMerge MergePolicy = "merge"
)

func ParsePolicy(v string) MergePolicy {
	if strings.EqualFold(strings.TrimSpace(v), string(PolicyMerge)) {
		return PolicyMerge
	}
	return PolicyReplace
}

// Record maps whitelisted utm_* keys to their values.
type Record map[string]string

func (r Record) Empty() bool {
	return len(r) == 0
}

type Service struct {
	prefix   string
	ttl      time.Duration
	policy   MergePolicy
	keys     []string
	secure   bool
	clock    clock.Clock
	maxValue int
}

func New(cfg config.Config, c clock.Clock) *Service {
	attrCfg := cfg.Attribution
	keys := []string{KeySource, KeyMedium, KeyCampaign, KeyContent}
	if attrCfg.IncludeTerm {
		keys = append(keys, KeyTerm)
	}
	prefix := attrCfg.CookiePrefix
	if prefix == "" {
		prefix = "iare_crm_"
	}
	ttl := attrCfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if c == nil {
		c = clock.New()
	}
	return &Service{
		prefix:   prefix,
		ttl:      ttl,
		policy:   ParsePolicy(attrCfg.MergePolicy),
		keys:     keys,
		secure:   attrCfg.SecureCookie,
		clock:    c,
		maxValue: 255,
	}
}

// Keys returns the whitelist in capture order.
func (s *Service) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *Service) Policy() MergePolicy {
	return s.policy
}

func (s *Service) clean(v string) string {
	v = fieldmap.SanitizeText(v)
	if len([]rune(v)) > s.maxValue {
		v = string([]rune(v)[:s.maxValue])
	}
	return v
}

// Capture extracts whitelisted, non-empty parameters from a query string.
func (s *Service) Capture(query url.Values) (Record, bool) {
	rec := Record{}
	for _, key := range s.keys {
		if v := s.clean(query.Get(key)); v != "" {
			rec[key] = v
		}
	}
	return rec, len(rec) > 0
}

// Apply combines a stored record with a fresh capture under policy.
func Apply(existing, captured Record, policy MergePolicy) Record {
	if captured.Empty() {
		out := make(Record, len(existing))
		for k, v := range existing {
			out[k] = v
		}
		return out
	}
	out := Record{}
	if policy == PolicyMerge {
		for k, v := range existing {
			out[k] = v
		}
	}
	for k, v := range captured {
		out[k] = v
	}
	return out
}

func (s *Service) cookieName(key string) string {
	return s.prefix + key
}

// FromRequest reads the stored record from cookies.
func (s *Service) FromRequest(r *http.Request) Record {
	rec := Record{}
	for _, key := range s.keys {
		c, err := r.Cookie(s.cookieName(key))
		if err != nil {
			continue
		}
		raw, err := url.QueryUnescape(c.Value)
		if err != nil {
			raw = c.Value
		}
		if v := s.clean(raw); v != "" {
			rec[key] = v
		}
	}
	return rec
}

// Write persists rec, expiring whitelisted keys it does not contain.
func (s *Service) Write(w http.ResponseWriter, rec Record) {
	now := s.clock.Now()
	for _, key := range s.keys {
		v, ok := rec[key]
		if !ok || v == "" {
			s.expire(w, s.cookieName(key))
			continue
		}
		http.SetCookie(w, s.cookie(s.cookieName(key), url.QueryEscape(v), now))
	}
	http.SetCookie(w, s.cookie(s.cookieName(timestampCookie), strconv.FormatInt(now.Unix(), 10), now))
}

// Clear expires every attribution cookie.
func (s *Service) Clear(w http.ResponseWriter) {
	for _, key := range s.keys {
		s.expire(w, s.cookieName(key))
	}
	s.expire(w, s.cookieName(timestampCookie))
}

func (s *Service) cookie(name, value string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(s.ttl),
		MaxAge:   int(s.ttl / time.Second),
		Secure:   s.secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Service) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteLaxMode,
	})
}

// CapturedAt returns when the stored record was written, if known.
func (s *Service) CapturedAt(r *http.Request) (time.Time, bool) {
	c, err := r.Cookie(s.cookieName(timestampCookie))
	if err != nil {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

type DebugInfo struct {
	Cookies    map[string]string `json:"utm_cookies"`
	Data       Record            `json:"utm_data"`
	Query      map[string]string `json:"get_params"`
	RequestURI string            `json:"request_uri"`
	HasUTM     bool              `json:"has_utm"`
	Policy     MergePolicy       `json:"merge_policy"`
	CapturedAt *time.Time        `json:"captured_at,omitempty"`
}

// Debug describes the attribution state visible on r.
func (s *Service) Debug(r *http.Request) DebugInfo {
	cookies := map[string]string{}
	for _, key := range s.keys {
		if c, err := r.Cookie(s.cookieName(key)); err == nil {
			cookies[c.Name] = s.clean(c.Value)
		}
	}
	query := map[string]string{}
	for k := range r.URL.Query() {
		query[fieldmap.SanitizeText(k)] = s.clean(r.URL.Query().Get(k))
	}
	data := s.FromRequest(r)
	info := DebugInfo{
		Cookies:    cookies,
		Data:       data,
		Query:      query,
		RequestURI: fieldmap.SanitizeText(r.URL.RequestURI()),
		HasUTM:     !data.Empty(),
		Policy:     s.policy,
	}
	if at, ok := s.CapturedAt(r); ok {
		info.CapturedAt = &at
	}
	return info
}

type ctxKey struct{}

func WithRecord(ctx context.Context, rec Record) context.Context {
	return context.WithValue(ctx, ctxKey{}, rec)
}

func FromContext(ctx context.Context) Record {
	rec, _ := ctx.Value(ctxKey{}).(Record)
	return rec
}
