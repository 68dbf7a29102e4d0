package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// RuleModelJSON is a small keyword rule set used across package tests.
// "sofa" maps to furniture (0.9), "knife" or "pan" to kitchen (0.8), and
// anything else falls back to home (0.55) after the price heuristics.
const RuleModelJSON = `{
  "rules": [
    {"keywords": ["Sofa", "couch"], "category": "furniture", "confidence": 0.9},
    {"keywords": ["knife", "pan"], "category": "kitchen", "confidence": 0.8},
    {"keywords": []}
  ],
  "default": {"category": "home", "confidence": 0.55}
}`

// WriteRuleModel writes a servable rule-based model into dir and returns dir.
// A non-empty modelVersion is recorded in training_manifest.json together
// with baseline statistics for drift checks.
func WriteRuleModel(t testing.TB, dir, modelVersion string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("rule_based.json", RuleModelJSON)
	write("metrics.json", `{"accuracy": 0.81, "macro_f1": 0.77}`)
	if modelVersion != "" {
		write("training_manifest.json", fmt.Sprintf(`{
  "model_version": %q,
  "baseline_stats": {
    "price_bins": [0, 200, 400, 600, 800, 1000, 2000],
    "price_hist": [0.5, 0.2, 0.1, 0.1, 0.05, 0.05],
    "text_length_mean": 6
  }
}`, modelVersion))
	}
	return dir
}
