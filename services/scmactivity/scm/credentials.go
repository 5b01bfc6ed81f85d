// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scm

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Credentials hold the optional user/password used to reach the SCM server.
//
// # Description
//
// The password is sealed in a memguard enclave as soon as it is read from
// configuration, so the plaintext only exists inside the callback passed
// to WithPassword.
//
// # Thread Safety
//
// Safe for concurrent use. Each WithPassword call opens its own buffer.
type Credentials struct {
	user     string
	password *memguard.Enclave
}

// NewCredentials seals password. Returns nil when both values are empty.
func NewCredentials(user, password string) *Credentials {
	if user == "" && password == "" {
		return nil
	}
	c := &Credentials{user: user}
	if password != "" {
		c.password = memguard.NewEnclave([]byte(password))
	}
	return c
}

// User returns the configured user name.
func (c *Credentials) User() string {
	if c == nil {
		return ""
	}
	return c.user
}

// HasPassword reports whether a password was configured.
func (c *Credentials) HasPassword() bool {
	return c != nil && c.password != nil
}

// WithPassword opens the enclave and passes the plaintext to fn.
//
// # Description
//
// The plaintext buffer is destroyed when fn returns. fn must not retain
// the slice. When no password is configured fn receives nil.
//
// # Outputs
//
//   - error: fn's error, or a non-nil error if the enclave cannot be opened.
func (c *Credentials) WithPassword(fn func(password []byte) error) error {
	if !c.HasPassword() {
		return fn(nil)
	}
	buf, err := c.password.Open()
	if err != nil {
		return fmt.Errorf("open credential enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// String never reveals the password.
func (c *Credentials) String() string {
	if c == nil {
		return "<none>"
	}
	return fmt.Sprintf("user=%q password_set=%t", c.user, c.HasPassword())
}
