// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package override

import "errors"

var (
	// ErrNotAuthorized means the identity may not resolve overrides in
	// the scan's scope. The record state is left unchanged.
	ErrNotAuthorized = errors.New("identity not authorized to resolve overrides in this scope")

	// ErrNotFound means no override record (or scan) with that ID exists.
	ErrNotFound = errors.New("override record not found")

	// ErrScanNotFound means the scan an override targets is unknown.
	ErrScanNotFound = errors.New("scan not found")

	// ErrNotBlocked means the targeted scan did not block; there is
	// nothing to override.
	ErrNotBlocked = errors.New("scan verdict is not blocking")

	// ErrOverridesDisabled means the scope's policy forbids overrides.
	ErrOverridesDisabled = errors.New("policy does not allow overrides")

	// ErrTerminal means the record was already approved or rejected.
	ErrTerminal = errors.New("override record is in a terminal state")
)
