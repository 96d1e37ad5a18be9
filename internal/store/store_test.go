package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"machine-monitor-backend/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteStore opens a private in-memory database with the schema applied.
func newSQLiteStore(t *testing.T) (*gorm.DB, Store) {
	t.Helper()
	testDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, testDB.AutoMigrate(&model.Machine{}, &model.FaultLog{}, &model.PushSubscription{}))
	return testDB, NewGormStore(testDB)
}

func seedMachines(t *testing.T, s Store, machines ...model.Machine) {
	t.Helper()
	for i := range machines {
		require.NoError(t, s.CreateMachine(context.Background(), &machines[i]))
	}
}

func TestGormStore_ListMachineSummaries(t *testing.T) {
	_, s := newSQLiteStore(t)
	seedMachines(t, s,
		model.Machine{ID: "M002", Name: "Winder Pro", Type: "Winding Machine", SerialNumber: "SN-2"},
		model.Machine{ID: "M001", Name: "Braider Alpha", Type: "Braiding Machine", SerialNumber: "SN-1", Status: model.StatusFault},
		model.Machine{ID: "M003", Name: "Twister X", Type: "Twisting Machine", SerialNumber: "SN-3", Status: model.StatusUnderMaintenance},
	)

	summaries, err := s.ListMachineSummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.MachineSummary{
		{ID: "M001", Name: "Braider Alpha", Status: model.StatusFault},
		{ID: "M002", Name: "Winder Pro", Status: model.StatusActive},
		{ID: "M003", Name: "Twister X", Status: model.StatusUnderMaintenance},
	}, summaries)
}

func TestGormStore_RecordFault(t *testing.T) {
	testCases := []struct {
		name          string
		initialStatus model.MachineStatus
	}{
		{name: "active machine becomes faulty", initialStatus: model.StatusActive},
		{name: "machine under maintenance is overwritten", initialStatus: model.StatusUnderMaintenance},
		{name: "faulty machine stays faulty", initialStatus: model.StatusFault},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			testDB, s := newSQLiteStore(t)
			seedMachines(t, s, model.Machine{ID: "M001", Name: "Braider Alpha", Type: "Braiding Machine", SerialNumber: "SN-1", Status: tc.initialStatus})

			entry, err := s.RecordFault(context.Background(), "M001", "Overheating", "Automatic detection of Overheating")
			require.NoError(t, err)
			assert.NotZero(t, entry.ID)
			assert.WithinDuration(t, time.Now(), entry.Timestamp, 5*time.Second)

			var count int64
			testDB.Model(&model.FaultLog{}).Where("machine_id = ?", "M001").Count(&count)
			assert.Equal(t, int64(1), count)

			machine, err := s.GetMachine(context.Background(), "M001")
			require.NoError(t, err)
			assert.Equal(t, model.StatusFault, machine.Status)
		})
	}
}

func TestGormStore_RecordFaultTransaction(t *testing.T) {
	insertFault := regexp.QuoteMeta(`INSERT INTO "fault_logs"`)
	updateStatus := regexp.QuoteMeta(`UPDATE "machines" SET "status"=$1`)

	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      bool
	}{
		{
			name: "insert and status update commit together",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(insertFault).
					WithArgs("M001", "Overheating", "Automatic detection of Overheating", Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
				mock.ExpectExec(updateStatus).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "insert failure rolls back without touching the machine",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(insertFault).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			expectedErr: true,
		},
		{
			name: "status update failure rolls back the fault row",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(insertFault).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
				mock.ExpectExec(updateStatus).WillReturnError(errors.New("lock timeout"))
				mock.ExpectRollback()
			},
			expectedErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			s := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			entry, err := s.RecordFault(context.Background(), "M001", "Overheating", "Automatic detection of Overheating")
			if tc.expectedErr {
				assert.Error(t, err)
				assert.Zero(t, entry.ID)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, int64(7), entry.ID)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_MachineCRUD(t *testing.T) {
	ctx := context.Background()
	testDB, s := newSQLiteStore(t)

	cost := 45000.0
	created := model.Machine{ID: "M001", Name: "Braider Alpha", Type: "Braiding Machine", SerialNumber: "SN-1", PurchaseCost: &cost, Location: "Floor A"}
	require.NoError(t, s.CreateMachine(ctx, &created))
	assert.Equal(t, model.StatusActive, created.Status, "status should default to Active")

	t.Run("duplicate id is rejected", func(t *testing.T) {
		dup := model.Machine{ID: "M001", Name: "Other", Type: "x", SerialNumber: "y"}
		assert.Error(t, s.CreateMachine(ctx, &dup))
	})

	t.Run("update replaces every field", func(t *testing.T) {
		replacement := model.Machine{Name: "Braider Alpha II", Type: "Braiding Machine", SerialNumber: "SN-1b", Status: model.StatusUnderMaintenance}
		require.NoError(t, s.UpdateMachine(ctx, "M001", &replacement))

		got, err := s.GetMachine(ctx, "M001")
		require.NoError(t, err)
		assert.Equal(t, "Braider Alpha II", got.Name)
		assert.Equal(t, model.StatusUnderMaintenance, got.Status)
		assert.Empty(t, got.Location, "omitted fields are cleared")
		assert.Nil(t, got.PurchaseCost)
	})

	t.Run("update of unknown machine", func(t *testing.T) {
		err := s.UpdateMachine(ctx, "NOPE", &model.Machine{Name: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get unknown machine", func(t *testing.T) {
		_, err := s.GetMachine(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete keeps fault history", func(t *testing.T) {
		_, err := s.RecordFault(ctx, "M001", "Power Surge", "Automatic detection of Power Surge")
		require.NoError(t, err)

		require.NoError(t, s.DeleteMachine(ctx, "M001"))
		assert.ErrorIs(t, s.DeleteMachine(ctx, "M001"), ErrNotFound)

		var count int64
		testDB.Model(&model.FaultLog{}).Where("machine_id = ?", "M001").Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormStore_ListRecentFaults(t *testing.T) {
	ctx := context.Background()
	testDB, s := newSQLiteStore(t)

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 60; i++ {
		require.NoError(t, testDB.Create(&model.FaultLog{
			MachineID: "M001",
			FaultType: "Thread Break",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	faults, err := s.ListRecentFaults(ctx, 0)
	require.NoError(t, err)
	require.Len(t, faults, DefaultFaultLimit)
	assert.True(t, faults[0].Timestamp.After(faults[1].Timestamp), "newest first")
	assert.Equal(t, int64(60), faults[0].ID)

	faults, err = s.ListRecentFaults(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, faults, 5)
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
