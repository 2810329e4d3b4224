/*
 * Copyright 2025 Carver Automation Corporation.
 *
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

package models

import (
	"errors"
	"reflect"
	"strings"
	"time"
)

const redactedValue = "[redacted]"

var errNotStruct = errors.New("input must be a struct or pointer to struct")

// FilterSensitiveFields converts a config struct into a generic map keyed by
// JSON field names, replacing any non-empty field tagged `sensitive:"true"`
// with a placeholder. The result is safe to log or serve over the API.
func FilterSensitiveFields(input interface{}) (map[string]interface{}, error) {
	if input == nil {
		return map[string]interface{}{}, nil
	}

	result, ok := filterRecursively(reflect.ValueOf(input)).(map[string]interface{})
	if !ok {
		return nil, errNotStruct
	}

	return result, nil
}

//nolint:gochecknoglobals // reflect type constant
var timeType = reflect.TypeOf(time.Time{})

func filterRecursively(rv reflect.Value) interface{} {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		if rv.Type() == timeType {
			return rv.Interface()
		}

		return filterStruct(rv)
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = filterRecursively(rv.Index(i))
		}

		return out
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			if key, ok := iter.Key().Interface().(string); ok {
				out[key] = filterRecursively(iter.Value())
			}
		}

		return out
	case reflect.Invalid:
		return nil
	default:
		if d, ok := rv.Interface().(Duration); ok {
			return time.Duration(d).String()
		}

		return rv.Interface()
	}
}

func filterStruct(rv reflect.Value) map[string]interface{} {
	rt := rv.Type()
	out := make(map[string]interface{}, rt.NumField())

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}

		if name == "" {
			name = field.Name
		}

		value := rv.Field(i)

		if field.Tag.Get("sensitive") == "true" {
			if !value.IsZero() {
				out[name] = redactedValue
			}

			continue
		}

		out[name] = filterRecursively(value)
	}

	return out
}
