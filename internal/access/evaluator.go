// internal/access/evaluator.go
package access

import (
	"strings"
	"sync"

	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/record"
)

var (
	customLog = logger.NewLogger()

	// parsed caches the AST (or parse failure) per rule text.
	parsed sync.Map
)

type cacheEntry struct {
	node Node
	err  error
}

// Env is what a rule is evaluated against.
type Env struct {
	// ActorID is the caller's identity; empty means anonymous.
	ActorID string
	// Record is the row being accessed, nil when there is none yet.
	Record *record.Record
}

// Node is one element of a parsed rule.
type Node interface {
	Eval(env Env) bool
}

// Literal is the constant true or false.
type Literal struct{ Value bool }

// IdentityPresence tests whether the caller is authenticated.
type IdentityPresence struct{ Present bool }

// FieldComparison compares the caller's identity with a field of the record.
// Without a record it only requires the caller to be authenticated.
type FieldComparison struct {
	Field  string
	Negate bool
}

type And struct{ Terms []Node }

type Or struct{ Terms []Node }

func (n Literal) Eval(Env) bool { return n.Value }

func (n IdentityPresence) Eval(env Env) bool {
	return (env.ActorID != "") == n.Present
}

func (n FieldComparison) Eval(env Env) bool {
	if env.ActorID == "" {
		return false
	}
	if env.Record == nil {
		return true
	}
	var actual string
	if v, ok := env.Record.Get(n.Field); ok {
		actual = v.String()
	}
	if n.Negate {
		return env.ActorID != actual
	}
	return env.ActorID == actual
}

func (n And) Eval(env Env) bool {
	for _, t := range n.Terms {
		if !t.Eval(env) {
			return false
		}
	}
	return true
}

func (n Or) Eval(env Env) bool {
	for _, t := range n.Terms {
		if t.Eval(env) {
			return true
		}
	}
	return false
}

func compile(rule string) (Node, error) {
	if cached, ok := parsed.Load(rule); ok {
		e := cached.(cacheEntry)
		return e.node, e.err
	}
	node, err := Parse(rule)
	parsed.Store(rule, cacheEntry{node: node, err: err})
	return node, err
}

// Evaluate decides whether the caller may perform the action guarded by rule.
// An empty rule allows; a rule that cannot be parsed denies.
func Evaluate(rule string, env Env) bool {
	if strings.TrimSpace(rule) == "" {
		return true
	}
	node, err := compile(rule)
	if err != nil {
		customLog.Warnf("Access: denying on unparseable rule %q: %v", rule, err)
		return false
	}
	return node.Eval(env)
}

// OwnershipField returns the field name when the whole rule is a single
// `auth.id == field` comparison.
func OwnershipField(rule string) (string, bool) {
	if strings.TrimSpace(rule) == "" {
		return "", false
	}
	node, err := compile(rule)
	if err != nil {
		return "", false
	}
	fc, ok := node.(FieldComparison)
	if !ok || fc.Negate {
		return "", false
	}
	return fc.Field, true
}

// DependsOnRecord reports whether the rule compares against record fields,
// meaning a record-less evaluation is only a precondition.
func DependsOnRecord(rule string) bool {
	if strings.TrimSpace(rule) == "" {
		return false
	}
	node, err := compile(rule)
	if err != nil {
		return false
	}
	return hasFieldComparison(node)
}

func hasFieldComparison(n Node) bool {
	switch v := n.(type) {
	case FieldComparison:
		return true
	case And:
		for _, t := range v.Terms {
			if hasFieldComparison(t) {
				return true
			}
		}
	case Or:
		for _, t := range v.Terms {
			if hasFieldComparison(t) {
				return true
			}
		}
	}
	return false
}
