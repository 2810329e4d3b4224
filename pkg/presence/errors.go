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

package presence

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned by Store lookups for an unknown MAC.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrPersistence marks any Device Store or Event Log failure.
	ErrPersistence = errors.New("persistence error")
)

// PersistenceError describes a store failure while applying one device's
// transition. errors.Is(err, ErrPersistence) holds for every value.
type PersistenceError struct {
	MAC string
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.MAC == "" {
		return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
	}

	return fmt.Sprintf("%s: %s %s: %v", ErrPersistence, e.Op, e.MAC, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrPersistence.
func (*PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
