package playbook

import "strings"

// Symbol is the ordinal scale a metric's period-over-period movement is
// mapped onto. Conditions in catalog YAML reference these names.
type Symbol string

const (
	SymbolStrongUp   Symbol = "strong_up"
	SymbolUp         Symbol = "up"
	SymbolFlat       Symbol = "flat"
	SymbolDown       Symbol = "down"
	SymbolStrongDown Symbol = "strong_down"
)

// SymbolFor maps a percentage change onto the symbol scale:
// >+20 strong_up, +5..+20 up, -5..+5 flat, -20..-5 down, <-20 strong_down.
func SymbolFor(changePct float64) Symbol {
	switch {
	case changePct > 20:
		return SymbolStrongUp
	case changePct > 5:
		return SymbolUp
	case changePct >= -5:
		return SymbolFlat
	case changePct >= -20:
		return SymbolDown
	default:
		return SymbolStrongDown
	}
}

// Indicators holds the current symbol for each named metric (cvr, cpa, mrr,
// dau, ...).
type Indicators map[string]Symbol

// IndicatorsFrom maps per-metric percentage changes to symbols.
func IndicatorsFrom(changes map[string]float64) Indicators {
	ind := make(Indicators, len(changes))
	for metric, change := range changes {
		ind[metric] = SymbolFor(change)
	}
	return ind
}

// EvalCondition evaluates a branch or entry condition against indicators.
//
// Grammar: `metric:symbol` terms joined by AND / OR, with OR binding
// loosest. The literal `always` (and an empty condition) is true. Unknown
// metrics make their term false, never an error; a missing indicator just
// means that branch is not taken this pass.
func EvalCondition(cond string, ind Indicators) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" || strings.EqualFold(cond, "always") {
		return true
	}

	for _, clause := range splitKeyword(cond, "OR") {
		if evalClause(clause, ind) {
			return true
		}
	}
	return false
}

func evalClause(clause string, ind Indicators) bool {
	for _, term := range splitKeyword(clause, "AND") {
		if !evalTerm(term, ind) {
			return false
		}
	}
	return true
}

func evalTerm(term string, ind Indicators) bool {
	term = strings.TrimSpace(term)
	if strings.EqualFold(term, "always") {
		return true
	}
	metric, symbol, ok := strings.Cut(term, ":")
	if !ok {
		return false
	}
	got, ok := ind[strings.ToLower(strings.TrimSpace(metric))]
	if !ok {
		return false
	}
	return got == Symbol(strings.ToLower(strings.TrimSpace(symbol)))
}

// splitKeyword splits on a whitespace-delimited keyword, case-insensitively.
func splitKeyword(s, keyword string) []string {
	fields := strings.Fields(s)
	var parts []string
	var current []string
	for _, f := range fields {
		if strings.EqualFold(f, keyword) {
			parts = append(parts, strings.Join(current, " "))
			current = current[:0]
			continue
		}
		current = append(current, f)
	}
	parts = append(parts, strings.Join(current, " "))
	return parts
}
