package attendance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"staffpresence/internal/apperr"
	"staffpresence/internal/directory"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListPersons(ctx context.Context) ([]directory.Person, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directory.Person), args.Error(1)
}

func (m *MockDirectory) GetPerson(ctx context.Context, identifier string) (directory.Person, error) {
	args := m.Called(ctx, identifier)
	return args.Get(0).(directory.Person), args.Error(1)
}

func TestAggregator_Scenario_InvalidSpanExcludedButCounted(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(NewMemoryStore())
	dir := directory.NewStatic(
		directory.Person{Identifier: "A", DisplayName: "Ana", Role: directory.RoleTeacher},
		directory.Person{Identifier: "B", DisplayName: "Ben", Role: directory.RoleEmployee},
	)

	_, err := l.ClockIn(ctx, "A", at("08:00"))
	require.NoError(t, err)
	_, err = l.ClockOut(ctx, "A", at("17:00"))
	require.NoError(t, err)
	_, err = l.ClockIn(ctx, "B", at("08:00"))
	require.NoError(t, err)
	_, err = l.ClockOut(ctx, "B", at("07:30"))
	require.NoError(t, err)

	s, err := NewAggregator(l, dir).Summarize(ctx, "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, 9.0, s.AverageWorkedHours)
	assert.Equal(t, 1, s.ValidPairs)
	assert.Equal(t, 1, s.TotalByRole[directory.RoleTeacher])
	assert.Equal(t, 1, s.TotalByRole[directory.RoleEmployee])
	assert.Equal(t, 0, s.TotalByRole[directory.RoleOther])
	assert.Equal(t, 1, s.StatusCounts[StatusPresent])
	assert.Equal(t, 1, s.StatusCounts[StatusInCampus])
}

func TestAggregator_AverageRoundedToOneDecimal(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(NewMemoryStore())
	dir := directory.NewStatic(
		directory.Person{Identifier: "A", Role: directory.RoleTeacher},
		directory.Person{Identifier: "B", Role: directory.RoleTeacher},
		directory.Person{Identifier: "C", Role: directory.RoleOther},
	)

	// 8h20m and 7h50m: mean 8.0833 -> 8.1
	l.ClockIn(ctx, "A", at("08:00"))
	l.ClockOut(ctx, "A", at("16:20"))
	l.ClockIn(ctx, "B", at("08:10"))
	l.ClockOut(ctx, "B", at("16:00"))

	s, err := NewAggregator(l, dir).Summarize(ctx, "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, 8.1, s.AverageWorkedHours)
	assert.Equal(t, 2, s.TotalByRole[directory.RoleTeacher])
	assert.Equal(t, 1, s.TotalByRole[directory.RoleOther])
	assert.Equal(t, 1, s.StatusCounts[StatusNoRecord])
}

func TestAggregator_NoValidPairsAveragesZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(NewMemoryStore())
	dir := directory.NewStatic(directory.Person{Identifier: "A", Role: directory.RoleEmployee})
	l.ClockOut(ctx, "A", at("09:00"))

	s, err := NewAggregator(l, dir).Summarize(ctx, "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.AverageWorkedHours)
	assert.Equal(t, 0, s.ValidPairs)
	assert.Equal(t, 1, s.StatusCounts[StatusIncomplete])
}

func TestAggregator_IgnoresRecordsOutsideDirectory(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(NewMemoryStore())
	dir := directory.NewStatic(directory.Person{Identifier: "A", Role: directory.RoleEmployee})

	l.ClockIn(ctx, "GONE", at("08:00"))
	l.ClockOut(ctx, "GONE", at("10:00"))

	s, err := NewAggregator(l, dir).Summarize(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ValidPairs)
	assert.Equal(t, 1, s.StatusCounts[StatusNoRecord])
}

func TestAggregator_RepeatedCallsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(NewMemoryStore())
	dir := directory.NewStatic(directory.Person{Identifier: "A", Role: directory.RoleTeacher})
	l.ClockIn(ctx, "A", at("08:00"))
	l.ClockOut(ctx, "A", at("12:00"))
	agg := NewAggregator(l, dir)

	first, err := agg.Summarize(ctx, "2024-05-01")
	require.NoError(t, err)
	second, err := agg.Summarize(ctx, "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, first.TotalByRole, second.TotalByRole)
	assert.Equal(t, first.AverageWorkedHours, second.AverageWorkedHours)
	assert.Equal(t, first.StatusCounts, second.StatusCounts)
}

func TestAggregator_DirectoryFailurePropagates(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ListPersons", mock.Anything).Return(nil, apperr.Unavailable(errors.New("timeout")))

	_, err := NewAggregator(newTestLedger(NewMemoryStore()), dir).Summarize(context.Background(), "2024-05-01")
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	dir.AssertExpectations(t)
}

func TestAggregator_RejectsBadDate(t *testing.T) {
	dir := new(MockDirectory)
	_, err := NewAggregator(newTestLedger(NewMemoryStore()), dir).Summarize(context.Background(), "yesterday")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	dir.AssertNotCalled(t, "ListPersons", mock.Anything)
}
