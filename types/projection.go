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
	"fmt"
	"strings"
)

// MaxProjectionFields bounds how many fields a projection may name.
const MaxProjectionFields = 100

// Projection maps field names to an inclusion flag (0/1 or a boolean) or to
// a whitelisted array-slicing operator such as {"$slice": 5}.
type Projection map[string]any

// ValidateProjection rejects malformed or injected projections before they
// reach the wire: too many fields, operator-prefixed or NUL-containing field
// names, and values outside the allowed inclusion/slice set. A nil
// projection is valid and means "all fields".
//
// Static projections are validated once at repository construction; any
// projection accepted from caller input must be re-validated per call.
func ValidateProjection(p Projection) error {
	return ValidateProjectionLimit(p, MaxProjectionFields)
}

// ValidateProjectionLimit is ValidateProjection with a caller-chosen field
// count limit.
func ValidateProjectionLimit(p Projection, maxFields int) error {
	if p == nil {
		return nil
	}
	if len(p) > maxFields {
		return fmt.Errorf("projection has %d fields, limit is %d", len(p), maxFields)
	}
	for field, value := range p {
		if field == "" {
			return fmt.Errorf("projection contains an empty field name")
		}
		if strings.HasPrefix(field, "$") {
			return fmt.Errorf("projection field %q must not start with an operator prefix", field)
		}
		if strings.ContainsRune(field, '\x00') {
			return fmt.Errorf("projection field %q contains an embedded null byte", field)
		}
		if err := validateProjectionValue(field, value); err != nil {
			return err
		}
	}
	return nil
}

func validateProjectionValue(field string, value any) error {
	switch v := value.(type) {
	case bool:
		return nil
	case int:
		if v == 0 || v == 1 {
			return nil
		}
	case int32:
		if v == 0 || v == 1 {
			return nil
		}
	case int64:
		if v == 0 || v == 1 {
			return nil
		}
	case map[string]any:
		return validateSliceOperator(field, v)
	case Projection:
		return validateSliceOperator(field, v)
	}
	return fmt.Errorf("projection field %q has unsupported value %v", field, value)
}

// validateSliceOperator accepts only the array-slicing form {"$slice": n} or
// {"$slice": [skip, limit]}.
func validateSliceOperator(field string, op map[string]any) error {
	if len(op) != 1 {
		return fmt.Errorf("projection field %q operator must have exactly one key", field)
	}
	raw, ok := op["$slice"]
	if !ok {
		return fmt.Errorf("projection field %q uses an operator outside the whitelist", field)
	}
	switch n := raw.(type) {
	case int, int32, int64:
		return nil
	case []int:
		if len(n) == 2 {
			return nil
		}
	case []any:
		if len(n) == 2 {
			for _, e := range n {
				switch e.(type) {
				case int, int32, int64:
				default:
					return fmt.Errorf("projection field %q $slice bounds must be integers", field)
				}
			}
			return nil
		}
	}
	return fmt.Errorf("projection field %q $slice must be an integer or a [skip, limit] pair", field)
}
