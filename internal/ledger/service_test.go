package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quipubot/quipu/internal/ledger"
)

func validParams() ledger.RecordParams {
	return ledger.RecordParams{
		UserID:   "USR-1",
		Kind:     ledger.KindExpense,
		Amount:   decimal.NewFromInt(15000),
		Currency: "COP",
		Category: "food_out",
		Date:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		RawText:  "almuerzo 15000",
	}
}

func TestService_Record(t *testing.T) {
	type testCase struct {
		name      string
		params    ledger.RecordParams
		setupMock func(m *ledger.MockRepository)
		wantErr   bool
	}

	tests := []testCase{
		{
			name:   "Success",
			params: validParams(),
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					CreateEntry(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, e *ledger.Entry) error {
						e.ID = uuid.New()
						e.CreatedAt = time.Now()
						return nil
					})
			},
		},
		{
			name: "ZeroAmountRejected",
			params: func() ledger.RecordParams {
				p := validParams()
				p.Amount = decimal.Zero
				return p
			}(),
			wantErr: true,
		},
		{
			name: "UnknownKindRejected",
			params: func() ledger.RecordParams {
				p := validParams()
				p.Kind = ledger.Kind("donation")
				return p
			}(),
			wantErr: true,
		},
		{
			name:   "RepoError",
			params: validParams(),
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					CreateEntry(gomock.Any(), gomock.Any()).
					Return(errors.New("db error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := ledger.NewService(repo)
			got, err := svc.Record(context.Background(), tt.params)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)

				return
			}

			assert.NoError(t, err)
			require.NotNil(t, got)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, "food_out", got.Category)
		})
	}
}

func TestService_Record_DefaultsCategory(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).Return(nil)

	params := validParams()
	params.Category = ""

	got, err := ledger.NewService(repo).Record(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "misc", got.Category)
}

func TestService_RecordBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().
		CreateEntries(gomock.Any(), gomock.Len(2)).
		Return(nil)

	svc := ledger.NewService(repo)

	second := validParams()
	second.Amount = decimal.NewFromInt(60000)
	second.Category = "shopping"

	entries, err := svc.RecordBatch(context.Background(), []ledger.RecordParams{validParams(), second})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_RecordBatch_ValidatesBeforeWriting(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No CreateEntries expectation: an invalid param must fail before any write.
	repo := ledger.NewMockRepository(ctrl)
	svc := ledger.NewService(repo)

	bad := validParams()
	bad.Amount = decimal.NewFromInt(-5)

	_, err := svc.RecordBatch(context.Background(), []ledger.RecordParams{validParams(), bad})
	assert.Error(t, err)
}

func TestService_UndoLast(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deleted := time.Now()
	entry := &ledger.Entry{ID: uuid.New(), UserID: "USR-1", DeletedAt: &deleted}

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().SoftDeleteLast(gomock.Any(), "USR-1").Return(entry, nil)

	got, err := ledger.NewService(repo).UndoLast(context.Background(), "USR-1")
	require.NoError(t, err)
	assert.True(t, got.Deleted())
}

func TestService_UndoLast_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().SoftDeleteLast(gomock.Any(), "USR-1").Return(nil, ledger.ErrNotFound)

	_, err := ledger.NewService(repo).UndoLast(context.Background(), "USR-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_ClearAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().SoftDeleteAll(gomock.Any(), "USR-1").Return(7, nil)

	count, err := ledger.NewService(repo).ClearAll(context.Background(), "USR-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}
