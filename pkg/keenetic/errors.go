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

package keenetic

import "errors"

var (
	// ErrTransport covers timeouts and connection failures reaching the router.
	// It is retryable on the next cycle and never touches the persisted session.
	ErrTransport = errors.New("router transport error")
	// ErrAuthProtocol means the router did not hand out a challenge or realm.
	ErrAuthProtocol = errors.New("router auth protocol error")
	// ErrAuthFailed means the router rejected the computed digest.
	ErrAuthFailed = errors.New("router authentication failed")
	// ErrUnexpectedStatus is returned by RCI calls answering with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected router status")
	// ErrInvalidPayload is returned when an RCI body is not valid JSON.
	ErrInvalidPayload = errors.New("invalid router payload")
	// ErrNoSession is returned by a SessionStore that holds no session yet.
	ErrNoSession = errors.New("no persisted session")

	errRouterConfigRequired = errors.New("router config is required")
)
