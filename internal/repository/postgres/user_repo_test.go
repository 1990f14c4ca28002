package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_Email_ReturnsAddress(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"email"}).AddRow("user@example.com")
	mock.ExpectQuery("SELECT email FROM users").WithArgs("user-1").WillReturnRows(rows)

	repo := NewUserRepo(db)
	email, err := repo.Email(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)
}
