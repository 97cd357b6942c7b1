// Package locale selects locale-specific string tables. Wording is out of
// scope per spec.md §1; only the selection mechanism (en/ko, overridable via
// YAML) is implemented here, grounded on the teacher's gopkg.in/yaml.v3
// config-file convention (internal/policy.WorkerConfig).
package locale

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table holds the text, templates, and lists for one locale.
type Table struct {
	Text      map[string]string   `yaml:"text"`
	Templates map[string]string   `yaml:"templates"`
	Lists     map[string][]string `yaml:"lists"`
}

// Manager resolves locale strings for the configured locale, with a fallback
// to "en" for any key missing from the active locale's table.
type Manager struct {
	active   string
	tables   map[string]Table
}

func defaultTables() map[string]Table {
	return map[string]Table{
		"en": {
			Text: map[string]string{
				"rest_and_recover":        "Rest and Recover",
				"rest_and_recover_body":   "You've been placed on sick leave. Focus on resting; your tasks will be covered.",
				"rest_and_recover_action": "Rest; do not plan further tasks until cleared.",
			},
			Templates: map[string]string{
				"coverage_needed":      "Coverage needed: {name} is out sick",
				"coverage_needed_body": "{name} went on sick leave at tick {tick}. Please arrange coverage for their open work.",
				"client_request_subject": "Client request: {feature}",
				"client_request_body":    "A client has asked for: {feature}. Please evaluate and plan a response.",
				"client_request_action":  "Scope and respond to the request for {feature}.",
				"partner_with":           "{name} needs a hand with: {feature}.",
				"support_on":             "Support {name} on the client request for {feature}.",
				"update_generic":         "Update from {name}",
				"update_for":             "Status update: {name}",
				"update_from_to":         "Update from {from_name} to {to_name}",
				"acknowledgement_from":   "Acknowledgement from {name}",
				"pending_adjustment":     "Pending adjustment",
				"your_latest_update":     "your latest update",
				"acknowledged_update":    "Got it, on {phrase}.",
			},
			Lists: map[string][]string{
				"client_feature_requests": {
					"dark mode", "CSV export", "single sign-on", "bulk edit", "usage dashboard",
					"webhook notifications", "mobile layout", "audit log", "rate limiting", "API pagination",
				},
			},
		},
		"ko": {
			Text: map[string]string{
				"rest_and_recover":        "휴식 및 회복",
				"rest_and_recover_body":   "병가 처리되었습니다. 업무는 다른 동료가 대신 처리합니다.",
				"rest_and_recover_action": "복귀 전까지 추가 업무를 계획하지 마세요.",
			},
			Templates: map[string]string{
				"coverage_needed":      "{name}님의 병가로 인한 업무 공백",
				"coverage_needed_body": "{name}님이 {tick} 틱에 병가를 신청했습니다. 업무 공백을 조율해 주세요.",
				"client_request_subject": "고객 요청: {feature}",
				"client_request_body":    "고객이 {feature} 기능을 요청했습니다. 검토 후 대응 계획을 세워 주세요.",
				"client_request_action":  "{feature} 요청에 대한 범위를 정하고 대응하세요.",
				"partner_with":           "{name}님이 {feature} 건으로 도움이 필요합니다.",
				"support_on":             "{feature} 관련 고객 요청에서 {name}님을 지원하세요.",
				"update_generic":         "{name}님의 업데이트",
				"update_for":             "{name}님의 현황 업데이트",
				"update_from_to":         "{from_name}님이 {to_name}님에게 보낸 업데이트",
				"acknowledgement_from":   "{name}님의 확인",
				"pending_adjustment":     "보류된 조정 사항",
				"your_latest_update":     "최근 업데이트",
				"acknowledged_update":    "{phrase} 확인했습니다.",
			},
			Lists: map[string][]string{
				"client_feature_requests": {
					"다크 모드", "CSV 내보내기", "SSO", "일괄 편집", "사용 현황 대시보드",
				},
			},
		},
	}
}

// New builds a Manager for the given active locale, optionally overriding
// or extending the built-in tables from a YAML file (overridePath may be
// empty, in which case only the defaults are used).
func New(active, overridePath string) (*Manager, error) {
	m := &Manager{active: active, tables: defaultTables()}
	if overridePath == "" {
		return m, nil
	}
	raw, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("locale: read override %s: %w", overridePath, err)
	}
	var override map[string]Table
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("locale: parse override %s: %w", overridePath, err)
	}
	for loc, tbl := range override {
		base, ok := m.tables[loc]
		if !ok {
			m.tables[loc] = tbl
			continue
		}
		for k, v := range tbl.Text {
			base.Text[k] = v
		}
		for k, v := range tbl.Templates {
			base.Templates[k] = v
		}
		for k, v := range tbl.Lists {
			base.Lists[k] = v
		}
	}
	return m, nil
}

func (m *Manager) table() Table {
	if t, ok := m.tables[m.active]; ok {
		return t
	}
	return m.tables["en"]
}

// GetText returns the plain string for key, falling back to the English
// table and finally to the key itself.
func (m *Manager) GetText(key string) string {
	if v, ok := m.table().Text[key]; ok {
		return v
	}
	if v, ok := m.tables["en"].Text[key]; ok {
		return v
	}
	return key
}

// GetTemplate renders a named template with {placeholder} substitution.
func (m *Manager) GetTemplate(key string, args map[string]string) string {
	tpl, ok := m.table().Templates[key]
	if !ok {
		tpl, ok = m.tables["en"].Templates[key]
		if !ok {
			return key
		}
	}
	out := tpl
	for k, v := range args {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// GetList returns a named string list, falling back to English.
func (m *Manager) GetList(key string) []string {
	if v, ok := m.table().Lists[key]; ok {
		return v
	}
	return m.tables["en"].Lists[key]
}
