package guard

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"

	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/observability"
)

// OutputGuard screens generated responses for PII before they reach the
// user. Detection is regex candidates plus checksum or structural
// validation where the entity has one (Luhn for cards, mod-97 for IBANs,
// address parsing for IPs).
type OutputGuard struct {
	entities []string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewOutputGuard creates the output guard for the configured entity set.
// Unknown entity names are kept but never match; presidio-style aliases
// (EMAIL_ADDRESS, PHONE_NUMBER, IP_ADDRESS) map onto the native names.
func NewOutputGuard(cfg config.GuardsConfig) *OutputGuard {
	entities := cfg.PIIEntities
	if len(entities) == 0 {
		entities = config.DefaultPIIEntities
	}

	return &OutputGuard{
		entities: normalizeEntities(entities),
		logger:   observability.NewLogger(observability.LogConfig{}),
	}
}

// WithLogger sets the logger.
func (g *OutputGuard) WithLogger(logger *observability.Logger) *OutputGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithMetrics sets the metrics recorder.
func (g *OutputGuard) WithMetrics(m *observability.Metrics) *OutputGuard {
	g.metrics = m
	return g
}

// Check screens a response. The verdict names the entity types found, never
// their values.
func (g *OutputGuard) Check(ctx context.Context, text string) (Verdict, error) {
	if strings.TrimSpace(text) == "" {
		g.record("passed")
		return Verdict{}, nil
	}

	found := detectPII(text, g.entities)
	if len(found) > 0 {
		g.record("flagged")
		g.logger.Warn(ctx, "response withheld by output guard",
			"entities", strings.Join(found, ","),
			"response_length", len(text))
		return Verdict{Flagged: true, Reason: "PII detected: " + strings.Join(found, ", ")}, nil
	}

	g.record("passed")
	g.logger.Debug(ctx, "response passed output guard",
		"response_length", len(text))
	return Verdict{}, nil
}

func (g *OutputGuard) record(decision string) {
	if g.metrics != nil {
		g.metrics.RecordGuardDecision("output", decision)
	}
}

var entityAliases = map[string]string{
	"EMAIL_ADDRESS": "EMAIL",
	"PHONE_NUMBER":  "PHONE",
	"IP_ADDRESS":    "IP",
}

func normalizeEntities(entities []string) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		name := strings.ToUpper(strings.TrimSpace(e))
		if alias, ok := entityAliases[name]; ok {
			name = alias
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// recognizer detects one entity type. A match must satisfy every configured
// stage: any regex hit, then the validator when present.
type recognizer struct {
	res      []*regexp.Regexp
	validate func(match string) bool
}

func (r recognizer) matches(text string) bool {
	for _, re := range r.res {
		for _, m := range re.FindAllString(text, -1) {
			if r.validate == nil || r.validate(m) {
				return true
			}
		}
	}
	return false
}

var (
	recognizersOnce sync.Once
	recognizers     map[string]recognizer
)

func compileRecognizers() {
	recognizers = map[string]recognizer{
		"EMAIL": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
			},
		},
		"PHONE": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`\+?\d[\d .\-()]{6,18}\d`),
			},
			validate: phoneValid,
		},
		"CREDIT_CARD": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
			},
			validate: creditCardValid,
		},
		"SSN": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}[\- ]\d{2}[\- ]\d{4}\b`),
			},
			validate: ssnValid,
		},
		"PASSPORT": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
			},
		},
		"DRIVER_LICENSE": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:driver'?s?\s+licen[cs]e|dl)\s*(?:number|no\.?|#|:)?\s*[A-Z0-9]{5,13}\b`),
			},
		},
		"IBAN": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b[a-z]{2}\d{2}(?: ?[a-z0-9]){11,30}\b`),
			},
			validate: ibanValid,
		},
		"IP": {
			res: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
				regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`),
			},
			validate: func(m string) bool { return net.ParseIP(m) != nil },
		},
	}
}

// detectPII returns the entity names found in text, in configured order.
func detectPII(text string, entities []string) []string {
	recognizersOnce.Do(compileRecognizers)

	var found []string
	for _, name := range entities {
		rec, ok := recognizers[name]
		if !ok {
			continue
		}
		if rec.matches(text) {
			found = append(found, name)
		}
	}
	return found
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneValid keeps candidates whose digit count is plausible for a
// subscriber number. The regex is deliberately loose; this bounds it.
func phoneValid(m string) bool {
	n := len(digitsOf(m))
	return n >= 9 && n <= 15
}

func creditCardValid(m string) bool {
	digits := digitsOf(m)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnValid(digits)
}

// luhnValid implements the Luhn checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ssnValid rejects the structurally impossible area/group/serial values so
// dates and part numbers do not count as social security numbers.
func ssnValid(m string) bool {
	digits := digitsOf(m)
	if len(digits) != 9 {
		return false
	}
	area, group, serial := digits[:3], digits[3:5], digits[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}

// ibanValid checks length and the ISO 7064 mod-97 checksum.
func ibanValid(m string) bool {
	iban := strings.ToUpper(strings.ReplaceAll(m, " ", ""))
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}

	rearranged := iban[4:] + iban[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			rem = (rem*100 + int(r-'A') + 10) % 97
		default:
			return false
		}
	}
	return rem == 1
}
