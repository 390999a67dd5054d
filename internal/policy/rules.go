package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/planguard/planguard/internal/model"
)

// evaluateRule runs one rule against a request and returns its
// violations, empty when the rule is satisfied.
func evaluateRule(r RuleConfig, req *model.CallRequest) []string {
	switch r.Kind {
	case "origin_block":
		return checkOriginBlock(r, req)
	case "value_allowlist":
		return checkValueAllowlist(r, req)
	case "value_blocklist":
		return checkValueBlocklist(r, req)
	case "content_pattern":
		return checkContentPattern(r, req)
	case "time_window":
		return checkTimeWindow(r, req)
	case "max_items":
		return checkMaxItems(r, req)
	case "low_integrity_block":
		return checkLowIntegrity(r, req)
	case "control_taint":
		return checkControlTaint(r, req)
	}
	// Validate rejects unknown kinds at load time; an unknown kind here
	// means config skipped validation, so fail closed.
	return []string{fmt.Sprintf("%s: unknown rule kind %q", req.Capability, r.Kind)}
}

// selectArgs resolves which arguments a rule inspects.
func selectArgs(r RuleConfig, req *model.CallRequest) []*model.CallArg {
	if r.Arg == "" {
		out := make([]*model.CallArg, 0, len(req.Args))
		for i := range req.Args {
			out = append(out, &req.Args[i])
		}
		return out
	}
	if a := req.Arg(r.Arg); a != nil {
		return []*model.CallArg{a}
	}
	return nil
}

// matchOrigin matches a configured origin pattern against a concrete
// origin: exact, "*" for any, or "capability:*" for any capability.
func matchOrigin(pattern string, o model.Origin) bool {
	if pattern == "*" {
		return true
	}
	if pattern == "capability:*" {
		return o.IsCapability()
	}
	return string(o) == pattern
}

func withReason(r RuleConfig, msg string) string {
	if r.Reason != "" {
		return msg + " (" + r.Reason + ")"
	}
	return msg
}

func checkOriginBlock(r RuleConfig, req *model.CallRequest) []string {
	var out []string
	for _, a := range selectArgs(r, req) {
		for _, origin := range a.Label.Origins {
			for _, pattern := range r.Origins {
				if matchOrigin(pattern, origin) {
					out = append(out, withReason(r, fmt.Sprintf(
						"%s: argument %q derives from blocked origin %s",
						req.Capability, a.Name, origin)))
				}
			}
		}
	}
	return out
}

func checkValueAllowlist(r RuleConfig, req *model.CallRequest) []string {
	var out []string
	for _, a := range selectArgs(r, req) {
		v := rawString(a.Raw)
		allowed := false
		for _, want := range r.Values {
			if strings.EqualFold(v, want) {
				allowed = true
				break
			}
		}
		if !allowed {
			out = append(out, withReason(r, fmt.Sprintf(
				"%s: argument %q value %q is not in the allowed set",
				req.Capability, a.Name, v)))
		}
	}
	return out
}

func checkValueBlocklist(r RuleConfig, req *model.CallRequest) []string {
	var out []string
	for _, a := range selectArgs(r, req) {
		v := rawString(a.Raw)
		for _, blocked := range r.Values {
			if strings.EqualFold(v, blocked) {
				out = append(out, withReason(r, fmt.Sprintf(
					"%s: argument %q value %q is blocked",
					req.Capability, a.Name, v)))
			}
		}
	}
	return out
}

func checkContentPattern(r RuleConfig, req *model.CallRequest) []string {
	var texts []struct{ where, text string }
	if r.Arg == "" {
		texts = append(texts, struct{ where, text string }{"content", req.Content})
	} else if a := req.Arg(r.Arg); a != nil {
		texts = append(texts, struct{ where, text string }{fmt.Sprintf("argument %q", r.Arg), rawString(a.Raw)})
	}
	var out []string
	for _, t := range texts {
		lower := strings.ToLower(t.text)
		for _, p := range r.Patterns {
			if p != "" && strings.Contains(lower, strings.ToLower(p)) {
				out = append(out, withReason(r, fmt.Sprintf(
					"%s: %s matches blocked pattern %q",
					req.Capability, t.where, p)))
			}
		}
	}
	return out
}

var timeLayouts = []string{model.TimeLayout, "2006-01-02T15:04:05Z07:00", "15:04"}

func checkTimeWindow(r RuleConfig, req *model.CallRequest) []string {
	a := req.Arg(r.Arg)
	if a == nil {
		return []string{withReason(r, fmt.Sprintf(
			"%s: time window rule requires argument %q, which is missing",
			req.Capability, r.Arg))}
	}
	raw := rawString(a.Raw)
	var parsed time.Time
	ok := false
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			parsed = t
			ok = true
			break
		}
	}
	if !ok {
		return []string{withReason(r, fmt.Sprintf(
			"%s: argument %q value %q is not a recognizable timestamp",
			req.Capability, r.Arg, raw))}
	}
	h := parsed.Hour()
	if h < r.StartHour || h >= r.EndHour {
		return []string{withReason(r, fmt.Sprintf(
			"%s: argument %q time %02d:00 is outside the %02d:00-%02d:00 window",
			req.Capability, r.Arg, h, r.StartHour, r.EndHour))}
	}
	return nil
}

func checkMaxItems(r RuleConfig, req *model.CallRequest) []string {
	a := req.Arg(r.Arg)
	if a == nil {
		return nil
	}
	list, ok := a.Raw.([]any)
	if !ok {
		return []string{withReason(r, fmt.Sprintf(
			"%s: argument %q is not a list", req.Capability, r.Arg))}
	}
	if len(list) > r.Max {
		return []string{withReason(r, fmt.Sprintf(
			"%s: argument %q has %d items, maximum is %d",
			req.Capability, r.Arg, len(list), r.Max))}
	}
	return nil
}

func checkLowIntegrity(r RuleConfig, req *model.CallRequest) []string {
	var out []string
	for _, a := range selectArgs(r, req) {
		if a.Label.Integrity == model.IntegrityLow {
			out = append(out, withReason(r, fmt.Sprintf(
				"%s: argument %q carries low-integrity data (origins: %s)",
				req.Capability, a.Name, originList(a.Label.Origins))))
		}
	}
	return out
}

func checkControlTaint(r RuleConfig, req *model.CallRequest) []string {
	var out []string
	for _, a := range selectArgs(r, req) {
		for _, origin := range a.ControlOrigins {
			for _, pattern := range r.Origins {
				if matchOrigin(pattern, origin) {
					out = append(out, withReason(r, fmt.Sprintf(
						"%s: argument %q was assigned under control flow influenced by %s",
						req.Capability, a.Name, origin)))
				}
			}
		}
	}
	return out
}

func rawString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func originList(origins []model.Origin) string {
	if len(origins) == 0 {
		return "none"
	}
	parts := make([]string, len(origins))
	for i, o := range origins {
		parts[i] = string(o)
	}
	return strings.Join(parts, ", ")
}
