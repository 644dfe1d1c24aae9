package users

import (
	"context"
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	EnsureSchema(ctx context.Context) error
	AddUser(ctx context.Context, name, email string) (*Result, error)
	UpdateUser(ctx context.Context, id int64, name, email string) (*Result, error)
	DeleteUser(ctx context.Context, identifier string) (*Result, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SearchUsers(ctx context.Context, keyword string) ([]*User, error)
	Ping(ctx context.Context) error
	Close() error
}

// UserService defines the interface for user service operations
type UserService interface {
	EnsureSchema(ctx context.Context) error
	AddUser(ctx context.Context, req *AddUserRequest) (*Result, error)
	UpdateUser(ctx context.Context, req *UpdateUserRequest) (*Result, error)
	DeleteUser(ctx context.Context, identifier string) (*Result, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SearchUsers(ctx context.Context, keyword string) ([]*User, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Recorder receives one observation per completed store operation
type Recorder interface {
	Observe(operation string, outcome string, seconds float64)
}
