package shared

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/possync/internal/platform/httpx"
)

var (
	// ErrAdminPasswordRequired indicates the admin password was not sent.
	ErrAdminPasswordRequired = fmt.Errorf("%w: admin password required", httpx.ErrUnauthorized)
	// ErrAdminPasswordInvalid indicates the admin password did not match.
	ErrAdminPasswordInvalid = fmt.Errorf("%w: invalid admin password", httpx.ErrForbidden)
	// ErrAdminGateDisabled indicates no admin password hash is configured.
	ErrAdminGateDisabled = errors.New("admin gate not configured")
)
