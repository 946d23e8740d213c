package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/agencydesk/agencydesk/internal/app"
	"github.com/agencydesk/agencydesk/internal/config"
	"github.com/agencydesk/agencydesk/internal/crypto"
	"github.com/agencydesk/agencydesk/internal/media"
	"github.com/agencydesk/agencydesk/internal/storage"
)

const (
	ExitCodeSuccess    = 0
	ExitCodeGeneric    = 1
	ExitCodeUsage      = 2
	ExitCodeNotFound   = 3
	ExitCodeConflict   = 4
	ExitCodeAuthFailed = 5
	ExitCodeIO         = 7
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrValidation),
		errors.Is(err, app.ErrValidation),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, crypto.ErrEmptyPassword),
		errors.Is(err, media.ErrUnsupportedImage):
		return asExitError(ExitCodeUsage, err)
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, app.ErrBackupNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, storage.ErrReferenced),
		errors.Is(err, storage.ErrLastAdmin):
		return asExitError(ExitCodeConflict, err)
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrUserInactive):
		return asExitError(ExitCodeAuthFailed, err)
	case errors.Is(err, app.ErrDatabaseMissing),
		errors.Is(err, storage.ErrSchemaTooNew),
		errors.Is(err, storage.ErrBusy):
		return asExitError(ExitCodeIO, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) {
		return asExitError(ExitCodeIO, err)
	}
	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}
