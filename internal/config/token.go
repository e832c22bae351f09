/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// Keychain coordinates of the backend token.
const (
	keyringService = "sitebuilder"
	keyringToken   = "backend_token"
)

// LoadToken reads the backend token from the OS keychain. A missing entry yields "" and no error.
func LoadToken() (string, error) {
	tok, err := keyring.Get(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// SaveToken stores the backend token in the OS keychain.
func SaveToken(token string) error {
	return keyring.Set(keyringService, keyringToken, token)
}

// DeleteToken removes the backend token; deleting a missing entry is not an error.
func DeleteToken() error {
	err := keyring.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
