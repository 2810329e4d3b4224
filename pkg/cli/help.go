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

import "fmt"

// ShowHelp displays the help message.
func ShowHelp() {
	fmt.Print(`netpresence-cli: netpresence command-line tool
Usage:
  netpresence-cli <command> [options]

Commands:
  digest      Compute the router login digest (interactive form by default)
  devices     List online devices with their dwell time
  history     Show recent presence events
  scan        Run a poll cycle now and show its events
  hash-key    Generate a bcrypt hash for api.api_key_hash
  test-notify Send a sample CONNECTED/DISCONNECTED pair to every recipient

Options for digest:
  -login string       router login
  -realm string       realm header returned by /auth
  -password string    router password (read from stdin when omitted)
  -challenge string   challenge header returned by /auth
  -non-interactive    print the digest instead of opening the form

Options for devices, history, scan and test-notify:
  -api string         API base URL (default "http://localhost:8090", env NETPRESENCE_API_URL)
  -api-key string     API key (env NETPRESENCE_API_KEY)
  -timeout duration   request timeout (default 30s)
  -all                devices: include offline devices
  -mac string         history: only events of this MAC
  -limit int          history: number of events (default 10)

Options for hash-key:
  -cost int           bcrypt cost (default 12)

Examples:
  netpresence-cli digest -non-interactive -login admin -realm 'Keenetic Giga' -challenge ABC123 -password secret
  netpresence-cli devices -api http://nas.local:8090 -api-key "$KEY"
  netpresence-cli history -mac aa:bb:cc:dd:ee:ff -limit 20
  echo -n "$KEY" | netpresence-cli hash-key
`)
}
