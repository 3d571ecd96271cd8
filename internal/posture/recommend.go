package posture

// Per-metric coaching advice, keyed by the metric names in ranked order.
var adviceByMetric = map[string]string{
	"forwardHead":   "Position your monitor at eye level to prevent looking down.",
	"noseDrop":      "Position your monitor at eye level to prevent looking down.",
	"shoulderDrop":  "Use a chair with lumbar support or a lumbar roll.",
	"shoulderTwist": "Check if your desk or chair height is uneven, and avoid leaning on one side.",
	"lateralShift":  "Check if your desk or chair height is uneven, and avoid leaning on one side.",
	"noseLateral":   "Avoid cradling a phone between your shoulder and ear.",
	"depthChange":   "Increase font size or move your monitor closer so you don't lean in to read.",
}

// Recommendations maps the ranked issue list onto at most three distinct
// pieces of advice, most frequent issue first.
func Recommendations(rankedIssues []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, issue := range rankedIssues {
		advice, ok := adviceByMetric[issue]
		if !ok || seen[advice] {
			continue
		}
		seen[advice] = true
		out = append(out, advice)
		if len(out) == 3 {
			return out
		}
	}
	if len(out) == 0 {
		out = append(out, "Great job! Keep up the good posture.")
	}
	return out
}
