package driver

import (
	"errors"
	"fmt"

	"github.com/mholva/gwmigrate/internal/model"
)

// AuthError indicates that a connection to a source or destination
// could not be established or authenticated. It is fatal for a whole
// migration run.
type AuthError struct {
	Protocol model.Protocol
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Protocol, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an
// AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// FolderError indicates that a folder could not be listed, created or
// enumerated. It is fatal for that folder only; sibling folders
// continue and the folder's checkpoint is not advanced.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %q: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error { return e.Err }

// ItemError indicates a per-item failure: malformed content, a
// rejected write, or a transient transfer fault. Item errors are
// retried by the job layer and never fail their folder.
type ItemError struct {
	UID string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %q: %v", e.UID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
