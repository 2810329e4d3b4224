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

import (
	"crypto/md5" //nolint:gosec // the router protocol mandates MD5 for the inner hash
	"crypto/sha256"
	"encoding/hex"
)

// ComputeDigest returns the value POSTed as "password" to /auth:
// sha256hex(challenge + md5hex(login:realm:password)).
func ComputeDigest(login, realm, password, challenge string) string {
	inner := md5.Sum([]byte(login + ":" + realm + ":" + password)) //nolint:gosec // protocol requirement
	outer := sha256.Sum256([]byte(challenge + hex.EncodeToString(inner[:])))

	return hex.EncodeToString(outer[:])
}
