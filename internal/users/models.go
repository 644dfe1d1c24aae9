package users

// MaxFieldLength is the column width of name and email.
const MaxFieldLength = 100

// User represents a row of the users table
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Outcome is the non-error result of a write operation
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeUpdated       Outcome = "updated"
	OutcomeDeleted       Outcome = "deleted"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeNotFound      Outcome = "not_found"
)

// Result reports what a write operation did.
// User is set for created and updated, Affected counts the rows touched.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	User     *User   `json:"user,omitempty"`
	Affected int64   `json:"affected"`
}

// AddUserRequest represents the request to add a user
type AddUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,max=100"`
}

// UpdateUserRequest represents the request to overwrite a user's name and email
type UpdateUserRequest struct {
	ID    int64  `json:"id" validate:"gt=0"`
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,max=100"`
}
