package sim

// UserError is a caller-correctable rejection: invalid input, not a
// system failure. It is reported only to the acting connection and
// never mutates state.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// NewUserError creates a user-facing error.
func NewUserError(msg string) *UserError {
	return &UserError{Message: msg}
}

var (
	ErrUnknownKind         = NewUserError("unknown structure kind")
	ErrNotBuildable        = NewUserError("tile is not buildable")
	ErrTileOccupied        = NewUserError("tile is already occupied")
	ErrInsufficientBalance = NewUserError("insufficient balance")
	ErrStructureNotFound   = NewUserError("structure not found")
)
