package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"id", "phone", "first_name", "last_name", "password_hash", "role", "is_active", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func testRegistration() Registration {
	return Registration{
		Phone:        "+998901234567",
		FirstName:    "Ana",
		LastName:     "Pérez",
		PasswordHash: "hash",
		ChatID:       42,
		Language:     "en",
	}
}

func TestRegisterClient_CommitsUserAndLink(t *testing.T) {
	mock := newMock(t)
	reg := testRegistration()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(reg.Phone, reg.FirstName, reg.LastName, reg.PasswordHash, RoleClient).
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow(int64(7), reg.Phone, reg.FirstName, reg.LastName, reg.PasswordHash, "client", true, now, now))
	mock.ExpectExec("INSERT INTO telegram_links").
		WithArgs(int64(7), reg.ChatID, reg.Language).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	u, err := NewRepo(mock).RegisterClient(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, RoleClient, u.Role)
	assert.Equal(t, "Ana Pérez", u.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterClient_LinkFailureRollsBackUser(t *testing.T) {
	mock := newMock(t)
	reg := testRegistration()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(reg.Phone, reg.FirstName, reg.LastName, reg.PasswordHash, RoleClient).
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow(int64(7), reg.Phone, reg.FirstName, reg.LastName, reg.PasswordHash, "client", true, now, now))
	mock.ExpectExec("INSERT INTO telegram_links").
		WithArgs(int64(7), reg.ChatID, reg.Language).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	u, err := NewRepo(mock).RegisterClient(context.Background(), reg)
	require.Error(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterClient_DuplicatePhone(t *testing.T) {
	mock := newMock(t)
	reg := testRegistration()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(reg.Phone, reg.FirstName, reg.LastName, reg.PasswordHash, RoleClient).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_phone_key"})
	mock.ExpectRollback()

	_, err := NewRepo(mock).RegisterClient(context.Background(), reg)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisable_UnknownPhone(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("UPDATE users SET is_active").
		WithArgs("+100000000000").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewRepo(mock).Disable(context.Background(), "+100000000000")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByPhone_NotFoundIsNil(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM users u WHERE u.phone").
		WithArgs("+100000000000").
		WillReturnRows(pgxmock.NewRows(userColumns))

	u, err := NewRepo(mock).GetByPhone(context.Background(), "+100000000000")
	require.NoError(t, err)
	assert.Nil(t, u)
}
