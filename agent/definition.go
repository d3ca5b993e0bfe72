// Package agent implements the tax-topic chat widgets: their catalog,
// how they answer and their open/sending/closed lifecycle.
package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how an agent answers.
type Mode string

const (
	// ModeCanned answers from the agent's keyword rules after a short delay.
	ModeCanned Mode = "canned"

	// ModeRelay forwards prompts to the relay orchestrator.
	ModeRelay Mode = "relay"
)

// Rule maps a prompt predicate to a canned response.
type Rule struct {
	Match    func(prompt string) bool
	Response string
}

// KeywordRule matches when the prompt contains any of the keywords.
// Matching ignores case and accents.
func KeywordRule(response string, keywords ...string) Rule {
	folded := foldAll(keywords)
	return Rule{
		Response: response,
		Match: func(prompt string) bool {
			p := fold(prompt)
			for _, k := range folded {
				if strings.Contains(p, k) {
					return true
				}
			}
			return false
		},
	}
}

// AllKeywordsRule matches when the prompt contains every keyword.
func AllKeywordsRule(response string, keywords ...string) Rule {
	folded := foldAll(keywords)
	return Rule{
		Response: response,
		Match: func(prompt string) bool {
			p := fold(prompt)
			for _, k := range folded {
				if !strings.Contains(p, k) {
					return false
				}
			}
			return len(folded) > 0
		},
	}
}

// DelayRange bounds the simulated thinking time of canned agents.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Definition configures one agent widget.
type Definition struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Icon         string     `json:"icon,omitempty"`
	Placeholders []string   `json:"placeholders,omitempty"`
	Greeting     string     `json:"greeting,omitempty"`
	Mode         Mode       `json:"mode"`
	TaskType     string     `json:"taskType,omitempty"`
	AgentContext string     `json:"agentContext,omitempty"`
	Rules        []Rule     `json:"-"`
	Fallback     string     `json:"-"`
	Delay        DelayRange `json:"-"`
}

// Answer returns the response of the first matching rule, or the fallback.
func (d *Definition) Answer(prompt string) string {
	for _, rule := range d.Rules {
		if rule.Match != nil && rule.Match(prompt) {
			return rule.Response
		}
	}
	return d.Fallback
}

// Validate checks required fields.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("agent id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("agent %s: name is required", d.ID)
	}
	switch d.Mode {
	case ModeCanned:
		if d.Fallback == "" {
			return fmt.Errorf("agent %s: canned agents need a fallback response", d.ID)
		}
	case ModeRelay:
	default:
		return fmt.Errorf("agent %s: unknown mode %q", d.ID, d.Mode)
	}
	if d.Delay.Min < 0 || d.Delay.Max < d.Delay.Min {
		return fmt.Errorf("agent %s: invalid delay range %s..%s", d.ID, d.Delay.Min, d.Delay.Max)
	}
	return nil
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = fold(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
