package recurring_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quipubot/quipu/internal/recurring"
)

func TestCreate(t *testing.T) {
	testCases := []struct {
		name      string
		params    recurring.CreateParams
		setupMock func(repo *recurring.MockRepository)
		wantErr   error
	}{
		{
			name: "active rule computes next due and persists",
			params: recurring.CreateParams{
				UserID:      "u1",
				ServiceName: "netflix",
				Amount:      decimal.NewFromInt(26900),
				Cadence:     recurring.Cadence{Kind: recurring.CadenceMonthly, Day: 15},
				Status:      recurring.StatusActive,
			},
			setupMock: func(repo *recurring.MockRepository) {
				repo.EXPECT().
					FindByService(gomock.Any(), "u1", "netflix").
					Return(nil, recurring.ErrNotFound)
				repo.EXPECT().
					CreateRule(gomock.Any(), gomock.Cond(func(r *recurring.Rule) bool {
						return r.Status == recurring.StatusActive && !r.NextDue.IsZero()
					})).
					Return(nil)
			},
		},
		{
			name: "pending rule skips cadence validation",
			params: recurring.CreateParams{
				UserID:      "u1",
				ServiceName: "gimnasio",
				Amount:      decimal.NewFromInt(80000),
			},
			setupMock: func(repo *recurring.MockRepository) {
				repo.EXPECT().
					FindByService(gomock.Any(), "u1", "gimnasio").
					Return(nil, recurring.ErrNotFound)
				repo.EXPECT().
					CreateRule(gomock.Any(), gomock.Cond(func(r *recurring.Rule) bool {
						return r.Status == recurring.StatusPending && r.NextDue.IsZero()
					})).
					Return(nil)
			},
		},
		{
			name: "same service name updates instead of duplicating",
			params: recurring.CreateParams{
				UserID:      "u1",
				ServiceName: "netflix",
				Amount:      decimal.NewFromInt(30000),
				Cadence:     recurring.Cadence{Kind: recurring.CadenceMonthly, Day: 15},
				Status:      recurring.StatusActive,
			},
			setupMock: func(repo *recurring.MockRepository) {
				repo.EXPECT().
					FindByService(gomock.Any(), "u1", "netflix").
					Return(&recurring.Rule{ID: 7, UserID: "u1", ServiceName: "netflix"}, nil)
				repo.EXPECT().
					UpdateRule(gomock.Any(), gomock.Cond(func(r *recurring.Rule) bool {
						return r.ID == 7 && r.Amount.Equal(decimal.NewFromInt(30000))
					})).
					Return(nil)
			},
		},
		{
			name: "active rule with incomplete cadence is rejected",
			params: recurring.CreateParams{
				UserID:      "u1",
				ServiceName: "netflix",
				Amount:      decimal.NewFromInt(26900),
				Status:      recurring.StatusActive,
			},
			setupMock: func(repo *recurring.MockRepository) {},
			wantErr:   recurring.ErrInvalidField,
		},
		{
			name:      "missing service name is rejected",
			params:    recurring.CreateParams{UserID: "u1"},
			setupMock: func(repo *recurring.MockRepository) {},
			wantErr:   recurring.ErrInvalidField,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := recurring.NewMockRepository(ctrl)
			tc.setupMock(repo)

			svc := recurring.NewService(repo, "America/Bogota", "COP")

			rule, err := svc.Create(context.Background(), tc.params)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "COP", rule.Currency)
			assert.Contains(t, rule.ReminderOffsets, 0)
		})
	}
}

func TestCreate_DefaultOffsetsIncludeDueDay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := recurring.NewMockRepository(ctrl)
	repo.EXPECT().FindByService(gomock.Any(), "u1", "spotify").Return(nil, recurring.ErrNotFound)
	repo.EXPECT().CreateRule(gomock.Any(), gomock.Any()).Return(nil)

	svc := recurring.NewService(repo, "America/Bogota", "COP")

	rule, err := svc.Create(context.Background(), recurring.CreateParams{
		UserID:          "u1",
		ServiceName:     "spotify",
		Amount:          decimal.NewFromInt(16900),
		ReminderOffsets: []int{3, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 0}, rule.ReminderOffsets)
}

func TestActivate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rule := &recurring.Rule{
		ID:          3,
		UserID:      "u1",
		ServiceName: "netflix",
		Timezone:    "America/Bogota",
		Cadence:     recurring.Cadence{Kind: recurring.CadenceMonthly, Day: 15},
		Status:      recurring.StatusPaused,
	}

	repo := recurring.NewMockRepository(ctrl)
	repo.EXPECT().GetRule(gomock.Any(), int64(3)).Return(rule, nil)
	repo.EXPECT().
		UpdateRule(gomock.Any(), gomock.Cond(func(r *recurring.Rule) bool {
			return r.Status == recurring.StatusActive && !r.NextDue.IsZero()
		})).
		Return(nil)

	svc := recurring.NewService(repo, "America/Bogota", "COP")

	got, err := svc.Activate(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusActive, got.Status)
}

func TestActivate_IncompleteCadence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := recurring.NewMockRepository(ctrl)
	repo.EXPECT().
		GetRule(gomock.Any(), int64(3)).
		Return(&recurring.Rule{ID: 3, UserID: "u1", Status: recurring.StatusPending}, nil)

	svc := recurring.NewService(repo, "America/Bogota", "COP")

	_, err := svc.Activate(context.Background(), "u1", 3)
	assert.ErrorIs(t, err, recurring.ErrInvalidField)
}

func TestCancel_SetsTimestamp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := recurring.NewMockRepository(ctrl)
	repo.EXPECT().
		GetRule(gomock.Any(), int64(9)).
		Return(&recurring.Rule{ID: 9, UserID: "u1", Status: recurring.StatusActive}, nil)
	repo.EXPECT().
		UpdateRule(gomock.Any(), gomock.Cond(func(r *recurring.Rule) bool {
			return r.Status == recurring.StatusCanceled && r.CanceledAt != nil
		})).
		Return(nil)

	svc := recurring.NewService(repo, "America/Bogota", "COP")

	got, err := svc.Cancel(context.Background(), "u1", 9)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), *got.CanceledAt, time.Minute)
}

func TestGet_ScopedToOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := recurring.NewMockRepository(ctrl)
	repo.EXPECT().
		GetRule(gomock.Any(), int64(5)).
		Return(&recurring.Rule{ID: 5, UserID: "someone-else"}, nil)

	svc := recurring.NewService(repo, "America/Bogota", "COP")

	_, err := svc.Get(context.Background(), "u1", 5)
	assert.ErrorIs(t, err, recurring.ErrNotFound)
}

func TestSetAmount_RejectsNonPositive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := recurring.NewMockRepository(ctrl)
	svc := recurring.NewService(repo, "America/Bogota", "COP")

	_, err := svc.SetAmount(context.Background(), "u1", 1, decimal.Zero)
	assert.ErrorIs(t, err, recurring.ErrInvalidField)
}

func TestSetOffsets_Normalizes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := recurring.NewMockRepository(ctrl)
	repo.EXPECT().
		GetRule(gomock.Any(), int64(2)).
		Return(&recurring.Rule{ID: 2, UserID: "u1"}, nil)
	repo.EXPECT().UpdateRule(gomock.Any(), gomock.Any()).Return(nil)

	svc := recurring.NewService(repo, "America/Bogota", "COP")

	rule, err := svc.SetOffsets(context.Background(), "u1", 2, []int{2, 2, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2, 0}, rule.ReminderOffsets)
}
