package users

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/userdb/userdb/internal/database"
)

// UserSchema represents the users table schema
type UserSchema struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID    int64  `bun:"id,pk,autoincrement" json:"id"`
	Name  string `bun:"name,type:varchar(100),notnull,unique" json:"name"`
	Email string `bun:"email,type:varchar(100),notnull,unique" json:"email"`
}

// UserStoreImpl implements the UserStore interface.
// It owns its handle: Close releases it and every later call fails with ErrClosed.
type UserStoreImpl struct {
	db     *bun.DB
	closed atomic.Bool
}

// NewUserStore creates a new user store instance that takes ownership of db
func NewUserStore(db *bun.DB) *UserStoreImpl {
	return &UserStoreImpl{
		db: db,
	}
}

// Connect opens a handle with opts and wraps it in a store.
func Connect(ctx context.Context, opts database.Options) (*UserStoreImpl, error) {
	db, err := database.Open(ctx, opts)
	if err != nil {
		return nil, NewConnectionError(err)
	}
	return NewUserStore(db), nil
}

// EnsureSchema creates the users table unless it already exists
func (s *UserStoreImpl) EnsureSchema(ctx context.Context) error {
	if s.closed.Load() {
		return NewClosedError("ensure_schema")
	}

	_, err := s.db.NewCreateTable().
		Model((*UserSchema)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return NewSchemaError(err)
	}
	return nil
}

// AddUser inserts a user unless one with the same name or email exists.
// The existence check and the insert are separate round trips; a concurrent
// insert that slips between them is caught by the unique constraints and
// reported as ErrDuplicateConflict.
func (s *UserStoreImpl) AddUser(ctx context.Context, name, email string) (*Result, error) {
	const op = "add_user"
	if s.closed.Load() {
		return nil, NewClosedError(op)
	}

	exists, err := s.db.NewSelect().
		Model((*UserSchema)(nil)).
		Where("name = ?", name).
		WhereOr("email = ?", email).
		Exists(ctx)
	if err != nil {
		return nil, NewQueryError(op, fmt.Errorf("failed to check existing user: %w", err))
	}
	if exists {
		return &Result{Outcome: OutcomeAlreadyExists}, nil
	}

	row := &UserSchema{Name: name, Email: email}
	_, err = s.db.NewInsert().
		Model(row).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	return &Result{
		Outcome:  OutcomeCreated,
		User:     UserSchemaToUser(*row),
		Affected: 1,
	}, nil
}

// UpdateUser overwrites name and email of the user with the given id
func (s *UserStoreImpl) UpdateUser(ctx context.Context, id int64, name, email string) (*Result, error) {
	const op = "update_user"
	if s.closed.Load() {
		return nil, NewClosedError(op)
	}

	result, err := s.db.NewUpdate().
		Model((*UserSchema)(nil)).
		Set("name = ?", name).
		Set("email = ?", email).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, NewQueryError(op, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return &Result{Outcome: OutcomeNotFound}, nil
	}

	return &Result{
		Outcome:  OutcomeUpdated,
		User:     &User{ID: id, Name: name, Email: email},
		Affected: rowsAffected,
	}, nil
}

// DeleteUser removes every row whose id (as text), name or email equals identifier.
// A name that looks like another row's id matches both rows.
func (s *UserStoreImpl) DeleteUser(ctx context.Context, identifier string) (*Result, error) {
	const op = "delete_user"
	if s.closed.Load() {
		return nil, NewClosedError(op)
	}

	result, err := s.db.NewDelete().
		Model((*UserSchema)(nil)).
		Where("CAST(id AS TEXT) = ?", identifier).
		WhereOr("name = ?", identifier).
		WhereOr("email = ?", identifier).
		Exec(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, NewQueryError(op, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return &Result{Outcome: OutcomeNotFound}, nil
	}

	return &Result{Outcome: OutcomeDeleted, Affected: rowsAffected}, nil
}

// ListUsers returns every user ordered by id
func (s *UserStoreImpl) ListUsers(ctx context.Context) ([]*User, error) {
	const op = "list_users"
	if s.closed.Load() {
		return nil, NewClosedError(op)
	}

	var rows []UserSchema
	err := s.db.NewSelect().
		Model(&rows).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	return schemasToUsers(rows), nil
}

// SearchUsers returns users whose name or email contains keyword, ignoring case.
// An empty keyword matches everyone.
func (s *UserStoreImpl) SearchUsers(ctx context.Context, keyword string) ([]*User, error) {
	const op = "search_users"
	if s.closed.Load() {
		return nil, NewClosedError(op)
	}

	pattern := "%" + keyword + "%"

	var rows []UserSchema
	query := s.db.NewSelect().Model(&rows)
	if s.db.Dialect().Name() == dialect.PG {
		query = query.
			Where("name ILIKE ?", pattern).
			WhereOr("email ILIKE ?", pattern)
	} else {
		query = query.
			Where("ulower(name) LIKE ulower(?)", pattern).
			WhereOr("ulower(email) LIKE ulower(?)", pattern)
	}

	err := query.OrderExpr("id ASC").Scan(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	return schemasToUsers(rows), nil
}

// Ping verifies the handle still reaches the store
func (s *UserStoreImpl) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return NewClosedError("ping")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return NewConnectionError(err)
	}
	return nil
}

// Close releases the handle. Calling it again is a no-op.
func (s *UserStoreImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return NewQueryError("close", err)
	}
	return nil
}

func classify(operation string, err error) error {
	if database.IsUniqueViolation(err) {
		return NewDuplicateConflictError(operation, err)
	}
	return NewQueryError(operation, err)
}

// Helper conversion functions
func UserSchemaToUser(schema UserSchema) *User {
	return &User{
		ID:    schema.ID,
		Name:  schema.Name,
		Email: schema.Email,
	}
}

func schemasToUsers(rows []UserSchema) []*User {
	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		users = append(users, UserSchemaToUser(row))
	}
	return users
}
