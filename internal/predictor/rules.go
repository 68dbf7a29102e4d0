package predictor

import (
	"strings"
)

const (
	defaultCategory   = "home"
	defaultConfidence = 0.55
)

// Rule maps any matching keyword to a category.
type Rule struct {
	Keywords   []string `json:"keywords"`
	Category   string   `json:"category,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// RuleSet is the rule_based.json document.
type RuleSet struct {
	ModelVersion string `json:"model_version,omitempty"`
	Rules        []Rule `json:"rules"`
	Default      struct {
		Category   string   `json:"category,omitempty"`
		Confidence *float64 `json:"confidence,omitempty"`
	} `json:"default"`
}

type compiledRule struct {
	keywords []string
	pred     Prediction
}

type compiledRules struct {
	rules    []compiledRule
	fallback Prediction
}

// normalized lowercases keywords, fills rule defaults and drops rules with
// no keywords.
func (rs RuleSet) normalized() compiledRules {
	fallback := Prediction{Category: defaultCategory, Confidence: defaultConfidence}
	if rs.Default.Category != "" {
		fallback.Category = rs.Default.Category
	}
	if rs.Default.Confidence != nil {
		fallback.Confidence = *rs.Default.Confidence
	}

	out := compiledRules{fallback: fallback}
	for _, r := range rs.Rules {
		if len(r.Keywords) == 0 {
			continue
		}
		cr := compiledRule{pred: fallback}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(kw))
		}
		if r.Category != "" {
			cr.pred.Category = r.Category
		}
		if r.Confidence != nil {
			cr.pred.Confidence = *r.Confidence
		}
		out.rules = append(out.rules, cr)
	}
	return out
}

// RuleBased is a keyword classifier with a price heuristic fallback.
type RuleBased struct {
	rules    compiledRules
	manifest Manifest
	metrics  map[string]float64
	version  string
}

// PredictOne returns the first rule whose keyword occurs in the title,
// description or brand. Without a match, very expensive items are furniture
// and very cheap ones kitchen; everything else gets the default.
func (p *RuleBased) PredictOne(rec Record) (Prediction, error) {
	if err := rec.Validate(); err != nil {
		return Prediction{}, err
	}

	text := strings.ToLower(strings.TrimSpace(deref(rec.Title) + " " + deref(rec.Description)))
	blob := strings.TrimSpace(text + " " + strings.ToLower(deref(rec.Brand)))

	for _, r := range p.rules.rules {
		for _, kw := range r.keywords {
			if strings.Contains(blob, kw) {
				return r.pred, nil
			}
		}
	}

	if rec.Price != nil {
		switch {
		case *rec.Price >= 800:
			return Prediction{Category: "furniture", Confidence: 0.65}, nil
		case *rec.Price <= 50:
			return Prediction{Category: "kitchen", Confidence: 0.6}, nil
		}
	}
	return p.rules.fallback, nil
}

// Manifest returns the training manifest, empty if none was stored.
func (p *RuleBased) Manifest() Manifest {
	return p.manifest
}

// Metrics returns a copy of the stored evaluation metrics.
func (p *RuleBased) Metrics() map[string]float64 {
	out := make(map[string]float64, len(p.metrics))
	for k, v := range p.metrics {
		out[k] = v
	}
	return out
}

// Version is the manifest's model_version, else the rule set's, else the
// artifact directory name.
func (p *RuleBased) Version() string {
	return p.version
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
