/*
 * Copyright 2025 mallardlabs.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CondKind enumerates the comparison, membership, and pattern operators a
// filter condition can carry.
type CondKind int

const (
	CondEq CondKind = iota
	CondNeq
	CondIn
	CondNin
	CondGt
	CondGte
	CondLt
	CondLte
	CondContains
	CondStartsWith
	CondEndsWith
)

// Cond is an operation descriptor attached to a filter field. Plain values
// in a FilterSpec mean equality; a Cond selects an explicit operator.
type Cond struct {
	Kind   CondKind
	Value  any
	Values []any
}

// Eq matches documents whose field equals v. Eq(nil) matches an explicit
// null, which a bare nil spec value never does.
func Eq(v any) Cond { return Cond{Kind: CondEq, Value: v} }

// Neq matches documents whose field differs from v.
func Neq(v any) Cond { return Cond{Kind: CondNeq, Value: v} }

// In matches documents whose field is any of vs.
func In(vs ...any) Cond { return Cond{Kind: CondIn, Values: vs} }

// Nin matches documents whose field is none of vs.
func Nin(vs ...any) Cond { return Cond{Kind: CondNin, Values: vs} }

func Gt(v any) Cond  { return Cond{Kind: CondGt, Value: v} }
func Gte(v any) Cond { return Cond{Kind: CondGte, Value: v} }
func Lt(v any) Cond  { return Cond{Kind: CondLt, Value: v} }
func Lte(v any) Cond { return Cond{Kind: CondLte, Value: v} }

// Contains matches documents whose string field contains s as a literal,
// case-insensitive substring.
func Contains(s string) Cond { return Cond{Kind: CondContains, Value: s} }

// StartsWith matches documents whose string field starts with the literal s,
// case-insensitively.
func StartsWith(s string) Cond { return Cond{Kind: CondStartsWith, Value: s} }

// EndsWith matches documents whose string field ends with the literal s,
// case-insensitively.
func EndsWith(s string) Cond { return Cond{Kind: CondEndsWith, Value: s} }

// FilterSpec maps entity field names to either a literal value (equality
// match) or a Cond operation descriptor. Entries with a bare nil value are
// skipped entirely; they are never translated into a wildcard or a
// field-must-not-exist match.
type FilterSpec map[string]any

// BuildFilter translates a FilterSpec into the wire-level filter document.
// Pattern operators escape regex metacharacters in the operand so the match
// is always literal.
func BuildFilter(spec FilterSpec) bson.M {
	filter := bson.M{}
	for field, value := range spec {
		if value == nil {
			continue
		}
		if cond, ok := value.(Cond); ok {
			filter[field] = buildCond(cond)
			continue
		}
		filter[field] = value
	}
	return filter
}

func buildCond(c Cond) any {
	switch c.Kind {
	case CondEq:
		return c.Value
	case CondNeq:
		return bson.M{"$ne": c.Value}
	case CondIn:
		return bson.M{"$in": condValues(c)}
	case CondNin:
		return bson.M{"$nin": condValues(c)}
	case CondGt:
		return bson.M{"$gt": c.Value}
	case CondGte:
		return bson.M{"$gte": c.Value}
	case CondLt:
		return bson.M{"$lt": c.Value}
	case CondLte:
		return bson.M{"$lte": c.Value}
	case CondContains:
		return regexMatch(regexp.QuoteMeta(condString(c)))
	case CondStartsWith:
		return regexMatch("^" + regexp.QuoteMeta(condString(c)))
	case CondEndsWith:
		return regexMatch(regexp.QuoteMeta(condString(c)) + "$")
	default:
		return c.Value
	}
}

func condValues(c Cond) []any {
	if c.Values != nil {
		return c.Values
	}
	return []any{}
}

func condString(c Cond) string {
	s, _ := c.Value.(string)
	return s
}

func regexMatch(pattern string) bson.M {
	return bson.M{"$regex": pattern, "$options": "i"}
}
