package execpolicy

import "go.starlark.net/starlark"

// PatternTokenKind distinguishes single-value tokens from alternative sets.
//
type PatternTokenKind int

const (
	// PatternSingle matches exactly one string value.
	PatternSingle PatternTokenKind = iota
	// PatternAlts matches any of a set of alternative strings.
	PatternAlts
)

// PatternToken is a single element in a prefix pattern. It matches either
// exactly one string or any of a set of alternative strings.
//
type PatternToken struct {
	Kind   PatternTokenKind
	Single string   // used when Kind == PatternSingle
	Alts   []string // used when Kind == PatternAlts
}

// Matches returns true if the token matches the given string.
func (pt *PatternToken) Matches(s string) bool {
	switch pt.Kind {
	case PatternSingle:
		return pt.Single == s
	case PatternAlts:
		for _, alt := range pt.Alts {
			if alt == s {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// PrefixPattern is a sequence of pattern tokens that matches a command prefix.
//
type PrefixPattern []PatternToken

// Matches returns true if the pattern is a prefix of the given command.
// The command must have at least as many tokens as the pattern.
func (pp PrefixPattern) Matches(cmd []string) bool {
	if len(cmd) < len(pp) {
		return false
	}
	for i, token := range pp {
		if !token.Matches(cmd[i]) {
			return false
		}
	}
	return true
}

// ProgramName returns the program name from the first token of the pattern,
// or empty string if the pattern is empty or uses alternatives for the first token.
func (pp PrefixPattern) ProgramName() string {
	if len(pp) == 0 {
		return ""
	}
	if pp[0].Kind == PatternSingle {
		return pp[0].Single
	}
	return ""
}

// PrefixRule matches a command prefix and assigns a decision.
//
type PrefixRule struct {
	Pattern       PrefixPattern
	Decision      Decision
	Justification string
}

// Matches returns true if the command matches this rule's pattern.
func (pr *PrefixRule) Matches(cmd []string) bool {
	return pr.Pattern.Matches(cmd)
}

// ConditionalRule is a prefix rule gated by a Starlark predicate. The
// pattern narrows candidate commands cheaply; the predicate runs per
// invocation, for conditions a flat prefix cannot express (flag
// combinations, argument values). A rule whose predicate returns false
// simply does not match, so other rules and the fallback still apply.
//
type ConditionalRule struct {
	PrefixRule
	// When is called with the full command as a list of strings and must
	// return a truthy value for the rule to match.
	When starlark.Callable
}

// Match implements Rule for ConditionalRule: the prefix must match and the
// predicate must hold.
func (cr *ConditionalRule) Match(cmd []string) bool {
	if !cr.PrefixRule.Matches(cmd) {
		return false
	}
	return evalWhenPredicate(cr.When, cmd)
}

// evalWhenPredicate invokes a when= callable on the command. A predicate
// that errors is treated as not matching, never as a policy failure.
func evalWhenPredicate(fn starlark.Callable, cmd []string) bool {
	elems := make([]starlark.Value, len(cmd))
	for i, s := range cmd {
		elems[i] = starlark.String(s)
	}
	thread := &starlark.Thread{Name: "when"}
	result, err := starlark.Call(thread, fn, starlark.Tuple{starlark.NewList(elems)}, nil)
	if err != nil {
		return false
	}
	return bool(result.Truth())
}

// Rule is the interface for policy rules. PrefixRule and ConditionalRule
// implement it; the interface allows future extension.
type Rule interface {
	// Match tests whether the rule applies to the given command.
	Match(cmd []string) bool
	// GetDecision returns the decision if the rule matches.
	GetDecision() Decision
	// GetJustification returns the human-readable reason.
	GetJustification() string
}

// Match implements Rule for PrefixRule.
func (pr *PrefixRule) Match(cmd []string) bool {
	return pr.Matches(cmd)
}

// GetDecision implements Rule for PrefixRule.
func (pr *PrefixRule) GetDecision() Decision {
	return pr.Decision
}

// GetJustification implements Rule for PrefixRule.
func (pr *PrefixRule) GetJustification() string {
	return pr.Justification
}
