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

package cli

import (
	"errors"
	"fmt"
)

var (
	errEmptyPassword   = errors.New("password cannot be empty")
	errEmptyKey        = errors.New("api key cannot be empty")
	errInvalidCost     = fmt.Errorf("cost must be a number between %d and %d", minCost, maxCost)
	errHashFailed      = errors.New("failed to generate hash")
	errDigestFields    = errors.New("digest requires -login, -realm and -challenge")
	errUnknownCommand  = errors.New("unknown command")
	errInvalidLimit    = errors.New("limit must be positive")
	errAPIRequest      = errors.New("api request failed")
	errAPIURLRequired  = errors.New("api url is required")
	errMissingCommand  = errors.New("no command given")
	errUnexpectedInput = errors.New("unexpected arguments")
)
