package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	coreadapter "github.com/tigerroll/suicsync/pkg/batch/core/adapter"
)

// MockDBConnectionResolver is a mock implementation of the database.DBConnectionResolver interface.
type MockDBConnectionResolver struct {
	mock.Mock
}

// ResolveDBConnection mocks the ResolveDBConnection method.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(dbadapter.DBConnection), args.Error(1)
}

// ResolveConnection mocks the ResolveConnection method.
func (m *MockDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	conn, err := m.ResolveDBConnection(ctx, name)
	if conn == nil {
		return nil, err
	}
	return conn, err
}
