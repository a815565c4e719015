package guard

import (
	"regexp"
	"strings"
	"sync"
)

// jailbreakPattern pairs a detection regex with a confidence weight. The
// prompt's score is the weight of the strongest match, so it stays in [0,1]
// and composes with the configured threshold.
type jailbreakPattern struct {
	name   string
	weight float64
	re     *regexp.Regexp
}

var (
	jailbreakOnce     sync.Once
	jailbreakPatterns []jailbreakPattern
)

// compileJailbreakPatterns builds the pattern table. Compilation is deferred
// until the first check so importing the package stays cheap; sync.Once
// keeps it safe under concurrent first use.
func compileJailbreakPatterns() {
	jailbreakPatterns = []jailbreakPattern{
		{
			name:   "instruction_override",
			weight: 1.0,
			re:     regexp.MustCompile(`ignore (all |any |the )?(previous |prior |above |earlier |your )(instructions|prompts|rules|directions)`),
		},
		{
			name:   "instruction_disregard",
			weight: 1.0,
			re:     regexp.MustCompile(`disregard (all |any )?(your |the |previous |prior )?(instructions|guidelines|rules|training)`),
		},
		{
			name:   "system_prompt_probe",
			weight: 1.0,
			re:     regexp.MustCompile(`(reveal|show|print|output|repeat) (me )?(your |the )?(system|hidden|initial|original) (prompt|instructions|message)`),
		},
		{
			name:   "developer_mode",
			weight: 0.9,
			re:     regexp.MustCompile(`developer mode|do anything now|\bdan mode\b`),
		},
		{
			name:   "filter_bypass",
			weight: 0.9,
			re:     regexp.MustCompile(`bypass (your |the |any )?(safety|content|security|moderation) (filter|filters|policy|policies|check|checks)`),
		},
		{
			name:   "injected_instructions",
			weight: 0.9,
			re:     regexp.MustCompile(`new (system )?instructions:`),
		},
		{
			name:   "jailbreak_literal",
			weight: 0.9,
			re:     regexp.MustCompile(`jailbreak`),
		},
		{
			name:   "unrestricted_persona",
			weight: 0.8,
			re:     regexp.MustCompile(`(pretend|act as if|imagine) (you|that you) (are|have|were) (not |no longer )?(bound|restricted|limited|unfiltered)`),
		},
		{
			name:   "no_restrictions",
			weight: 0.7,
			re:     regexp.MustCompile(`without (any )?(restrictions|limitations|censorship|filters)`),
		},
		{
			name:   "forced_compliance",
			weight: 0.7,
			re:     regexp.MustCompile(`you (must|will) (now )?(obey|comply with|answer) (all|any|every)`),
		},
	}
}

// jailbreakScore returns the score of the strongest matching pattern and
// its name. Matching is case-insensitive; zero means nothing matched.
func jailbreakScore(text string) (float64, string) {
	jailbreakOnce.Do(compileJailbreakPatterns)

	lower := strings.ToLower(text)
	var (
		best float64
		name string
	)
	for _, p := range jailbreakPatterns {
		if p.weight > best && p.re.MatchString(lower) {
			best = p.weight
			name = p.name
		}
	}
	return best, name
}
