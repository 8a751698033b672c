// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hcfg

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load merges whatever BindFlags bound into viper's global instance
// (flags, and a config file if the caller told viper to read one) into
// a Config, rationalizes it, and validates the result.
func Load() (*Config, error) {
	c := Default()
	if err := viper.Unmarshal(c, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("hcfg: decoding configuration: %w", err)
	}
	Rationalize(c)
	if err := ValidateConfig(c); err != nil {
		return nil, fmt.Errorf("hcfg: invalid configuration: %w", err)
	}
	return c, nil
}
