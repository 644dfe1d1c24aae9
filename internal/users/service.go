package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	store    UserStore
	validate *validator.Validate
	recorder Recorder
	logger   *zap.Logger
}

// NewUserService creates a new user service instance.
// A nil recorder disables metrics, a nil logger disables logging.
func NewUserService(store UserStore, recorder Recorder, logger *zap.Logger) *UserServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserServiceImpl{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		recorder: recorder,
		logger:   logger,
	}
}

// EnsureSchema creates the users table if needed
func (s *UserServiceImpl) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	err := s.store.EnsureSchema(ctx)
	s.observe("ensure_schema", "ok", err, start)
	if err != nil {
		s.logger.Error("Failed to ensure users table", zap.Error(err))
		return err
	}
	s.logger.Info("Users table checked/created")
	return nil
}

// AddUser validates and adds a user
func (s *UserServiceImpl) AddUser(ctx context.Context, req *AddUserRequest) (*Result, error) {
	if req == nil {
		return nil, NewValidationError("request", nil, "request is required")
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.store.AddUser(ctx, req.Name, req.Email)
	s.observe("add_user", outcomeLabel(result), err, start)
	if err != nil {
		s.logFailure("Failed to add user", err, zap.String("name", req.Name), zap.String("email", req.Email))
		return nil, err
	}

	switch result.Outcome {
	case OutcomeAlreadyExists:
		s.logger.Warn("User with same name or email already exists",
			zap.String("name", req.Name),
			zap.String("email", req.Email))
	default:
		s.logger.Info("User added",
			zap.Int64("id", result.User.ID),
			zap.String("name", req.Name))
	}
	return result, nil
}

// UpdateUser validates and overwrites a user
func (s *UserServiceImpl) UpdateUser(ctx context.Context, req *UpdateUserRequest) (*Result, error) {
	if req == nil {
		return nil, NewValidationError("request", nil, "request is required")
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.store.UpdateUser(ctx, req.ID, req.Name, req.Email)
	s.observe("update_user", outcomeLabel(result), err, start)
	if err != nil {
		s.logFailure("Failed to update user", err, zap.Int64("id", req.ID))
		return nil, err
	}

	if result.Outcome == OutcomeNotFound {
		s.logger.Warn("User not found", zap.Int64("id", req.ID))
	} else {
		s.logger.Info("User updated", zap.Int64("id", req.ID))
	}
	return result, nil
}

// DeleteUser deletes users matching identifier by id, name or email
func (s *UserServiceImpl) DeleteUser(ctx context.Context, identifier string) (*Result, error) {
	if identifier == "" {
		return nil, NewValidationError("identifier", identifier, "identifier is required")
	}

	start := time.Now()
	result, err := s.store.DeleteUser(ctx, identifier)
	s.observe("delete_user", outcomeLabel(result), err, start)
	if err != nil {
		s.logFailure("Failed to delete user", err, zap.String("identifier", identifier))
		return nil, err
	}

	if result.Outcome == OutcomeNotFound {
		s.logger.Warn("No user found for deletion", zap.String("identifier", identifier))
	} else {
		s.logger.Info("User(s) deleted",
			zap.String("identifier", identifier),
			zap.Int64("count", result.Affected))
	}
	return result, nil
}

// ListUsers returns every user ordered by id
func (s *UserServiceImpl) ListUsers(ctx context.Context) ([]*User, error) {
	start := time.Now()
	users, err := s.store.ListUsers(ctx)
	s.observe("list_users", "ok", err, start)
	if err != nil {
		s.logFailure("Failed to list users", err)
		return nil, err
	}
	return users, nil
}

// SearchUsers returns users whose name or email contains keyword
func (s *UserServiceImpl) SearchUsers(ctx context.Context, keyword string) ([]*User, error) {
	if len([]rune(keyword)) > MaxFieldLength {
		return nil, NewValidationError("keyword", keyword, fmt.Sprintf("keyword must be at most %d characters", MaxFieldLength))
	}

	start := time.Now()
	users, err := s.store.SearchUsers(ctx, keyword)
	s.observe("search_users", "ok", err, start)
	if err != nil {
		s.logFailure("Failed to search users", err, zap.String("keyword", keyword))
		return nil, err
	}
	return users, nil
}

// HealthCheck pings the store
func (s *UserServiceImpl) HealthCheck(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes the underlying store
func (s *UserServiceImpl) Close() error {
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
		return err
	}
	s.logger.Info("Store closed")
	return nil
}

func (s *UserServiceImpl) check(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Message: validationMessage(fe),
			Cause:   err,
		}
	}
	return &ValidationError{Field: "request", Message: "invalid request", Cause: err}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

func (s *UserServiceImpl) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, ErrDuplicateConflict) {
		s.logger.Warn("Duplicate name or email", fields...)
		return
	}
	s.logger.Error(msg, fields...)
}

func (s *UserServiceImpl) observe(operation, outcome string, err error, start time.Time) {
	if s.recorder == nil {
		return
	}
	if err != nil {
		outcome = errorLabel(err)
	}
	s.recorder.Observe(operation, outcome, time.Since(start).Seconds())
}

func outcomeLabel(result *Result) string {
	if result == nil {
		return ""
	}
	return string(result.Outcome)
}

func errorLabel(err error) string {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Type
	}
	return "error"
}
