package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qrattend/internal/apperr"
	"qrattend/internal/model"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// MockStore is a mock implementation of store.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) InsertMember(ctx context.Context, mem model.Member) (model.Member, error) {
	args := m.Called(ctx, mem)
	return args.Get(0).(model.Member), args.Error(1)
}

func (m *MockStore) FindMemberByQRCode(ctx context.Context, qrCode string) (model.Member, error) {
	args := m.Called(ctx, qrCode)
	return args.Get(0).(model.Member), args.Error(1)
}

func (m *MockStore) FindMemberByID(ctx context.Context, id string) (model.Member, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Member), args.Error(1)
}

func (m *MockStore) ListMembers(ctx context.Context) ([]model.Member, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Member), args.Error(1)
}

func (m *MockStore) FindAttendance(ctx context.Context, memberID, date string) (model.AttendanceRecord, error) {
	args := m.Called(ctx, memberID, date)
	return args.Get(0).(model.AttendanceRecord), args.Error(1)
}

func (m *MockStore) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(model.AttendanceRecord), args.Error(1)
}

func (m *MockStore) ListAttendanceForDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AttendanceRecord), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

var fixedNow = time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*60*60))

func newService(t *testing.T, opts Options) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(store.Options{UniqueMemberNames: true})
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewService(mem, opts), mem
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		mode     QRMode
		wantName string
		wantKind apperr.Kind
		wantErr  bool
	}{
		{name: "trims name", input: "  Alice  ", wantName: "Alice"},
		{name: "name mode derives qr", input: " Bob ", mode: QRName, wantName: "Bob"},
		{name: "empty", input: "   ", wantErr: true, wantKind: apperr.KindValidation},
		{name: "too long", input: strings.Repeat("x", 101), wantErr: true, wantKind: apperr.KindValidation},
		{name: "exactly 100 runes", input: strings.Repeat("é", 100), wantName: strings.Repeat("é", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t, Options{QRMode: tt.mode})
			m, err := svc.Register(context.Background(), tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, m.Name)
			assert.NotEmpty(t, m.ID)
			assert.True(t, m.CreatedAt.Equal(fixedNow))
			if tt.mode == QRName {
				assert.Equal(t, tt.wantName, m.QRCode)
			} else {
				assert.Len(t, m.QRCode, 32)
				assert.NotContains(t, m.QRCode, "-")
			}
		})
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	svc, _ := newService(t, Options{})
	_, err := svc.Register(context.Background(), "Alice")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), " Alice")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRegisterThenList(t *testing.T) {
	svc, _ := newService(t, Options{})
	ctx := context.Background()
	for _, name := range []string{"bob", "Émile", "alice", "Zoe"} {
		_, err := svc.Register(ctx, name)
		require.NoError(t, err)
	}

	members, err := svc.ListMembers(ctx)
	require.NoError(t, err)

	var names []string
	for _, m := range members {
		names = append(names, m.Name)
		assert.NotEmpty(t, m.QRCode)
	}
	assert.Equal(t, []string{"alice", "bob", "Émile", "Zoe"}, names)
}

func TestGetMember(t *testing.T) {
	svc, _ := newService(t, Options{})
	m, err := svc.Register(context.Background(), "Alice")
	require.NoError(t, err)

	got, err := svc.GetMember(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = svc.GetMember(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRecordAttendanceIdempotent(t *testing.T) {
	svc, mem := newService(t, Options{})
	ctx := context.Background()
	m, err := svc.Register(ctx, "Bob")
	require.NoError(t, err)

	first, err := svc.RecordAttendance(ctx, m.QRCode, "2024-03-05")
	require.NoError(t, err)
	assert.False(t, first.AlreadyRecorded)
	assert.Equal(t, "Bob", first.MemberName)
	assert.Equal(t, model.StatusPresent, first.Record.Status)

	second, err := svc.RecordAttendance(ctx, m.QRCode, "2024-03-05")
	require.NoError(t, err)
	assert.True(t, second.AlreadyRecorded)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	records, err := mem.ListAttendanceForDate(ctx, "2024-03-05")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordAttendanceDefaultsToUTCDay(t *testing.T) {
	svc, _ := newService(t, Options{})
	m, err := svc.Register(context.Background(), "Bob")
	require.NoError(t, err)

	out, err := svc.RecordAttendance(context.Background(), m.QRCode, "")
	require.NoError(t, err)
	// 23:30 at UTC-5 is already the next day in UTC
	assert.Equal(t, "2024-03-06", out.Record.Date)
}

func TestRecordAttendanceErrors(t *testing.T) {
	svc, _ := newService(t, Options{})
	m, err := svc.Register(context.Background(), "Bob")
	require.NoError(t, err)

	tests := []struct {
		name   string
		qrCode string
		date   string
		want   apperr.Kind
	}{
		{"unknown qr", "does-not-exist", "2024-01-01", apperr.KindNotFound},
		{"missing qr", " ", "", apperr.KindValidation},
		{"impossible date", m.QRCode, "2024-13-40", apperr.KindValidation},
		{"short date", m.QRCode, "2024-1-1", apperr.KindValidation},
		{"timestamp not date", m.QRCode, "2024-01-01T00:00:00Z", apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordAttendance(context.Background(), tt.qrCode, tt.date)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestRecordAttendanceConcurrent(t *testing.T) {
	svc, mem := newService(t, Options{})
	ctx := context.Background()
	m, err := svc.Register(ctx, "Bob")
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	outcomes := make([]Outcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.RecordAttendance(ctx, m.QRCode, "2024-03-05")
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if !outcomes[i].AlreadyRecorded {
			created++
		}
		assert.Equal(t, outcomes[0].Record.ID, outcomes[i].Record.ID)
	}
	assert.Equal(t, 1, created)

	records, err := mem.ListAttendanceForDate(ctx, "2024-03-05")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordAttendanceInsertRace(t *testing.T) {
	ms := new(MockStore)
	member := model.Member{ID: "m1", Name: "Bob", QRCode: "Q"}
	winner := model.AttendanceRecord{ID: "a1", MemberID: "m1", MemberName: "Bob", Date: "2024-03-05", Status: model.StatusPresent}

	ms.On("FindMemberByQRCode", mock.Anything, "Q").Return(member, nil)
	ms.On("FindAttendance", mock.Anything, "m1", "2024-03-05").Return(model.AttendanceRecord{}, store.ErrNotFound).Once()
	ms.On("InsertAttendance", mock.Anything, mock.AnythingOfType("model.AttendanceRecord")).
		Return(model.AttendanceRecord{}, fmt.Errorf("%w: unique violation", store.ErrDuplicate))
	ms.On("FindAttendance", mock.Anything, "m1", "2024-03-05").Return(winner, nil).Once()

	svc := NewService(ms, Options{})
	out, err := svc.RecordAttendance(context.Background(), "Q", "2024-03-05")

	require.NoError(t, err)
	assert.True(t, out.AlreadyRecorded)
	assert.Equal(t, "a1", out.Record.ID)
	assert.Equal(t, "Bob", out.MemberName)
	ms.AssertExpectations(t)
}

func TestStoreFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unavailable", fmt.Errorf("%w: dial tcp: refused", store.ErrUnavailable), apperr.KindUnavailable},
		{"deadline", context.DeadlineExceeded, apperr.KindUnavailable},
		{"unexpected", fmt.Errorf("syntax error"), apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := new(MockStore)
			ms.On("FindMemberByQRCode", mock.Anything, "Q").Return(model.Member{}, tt.err)

			svc := NewService(ms, Options{})
			_, err := svc.RecordAttendance(context.Background(), "Q", "2024-03-05")

			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			ms.AssertExpectations(t)
		})
	}
}

func TestAttendanceForDate(t *testing.T) {
	svc, _ := newService(t, Options{})
	ctx := context.Background()
	bob, err := svc.Register(ctx, "Bob")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "Alice")
	require.NoError(t, err)

	_, err = svc.RecordAttendance(ctx, bob.QRCode, "2024-03-05")
	require.NoError(t, err)

	day, err := svc.AttendanceForDate(ctx, "2024-03-05")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "Alice", day[0].MemberName)
	assert.Equal(t, model.StatusAbsent, day[0].Status)
	assert.Nil(t, day[0].Timestamp)
	assert.Equal(t, "Bob", day[1].MemberName)
	assert.Equal(t, model.StatusPresent, day[1].Status)
	require.NotNil(t, day[1].Timestamp)
	assert.True(t, day[1].Timestamp.Equal(fixedNow))

	next, err := svc.AttendanceForDate(ctx, "2024-03-06")
	require.NoError(t, err)
	require.Len(t, next, 2)
	for _, e := range next {
		assert.Equal(t, model.StatusAbsent, e.Status)
		assert.Equal(t, "2024-03-06", e.Date)
	}

	_, err = svc.AttendanceForDate(ctx, "03/05/2024")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAttendanceForDateUsesCurrentName(t *testing.T) {
	ms := new(MockStore)
	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ms.On("ListAttendanceForDate", mock.Anything, "2024-01-01").Return([]model.AttendanceRecord{
		{ID: "a1", MemberID: "m1", MemberName: "Old Name", Date: "2024-01-01", Timestamp: ts, Status: model.StatusPresent},
		{ID: "a2", MemberID: "gone", MemberName: "Ghost", Date: "2024-01-01", Timestamp: ts, Status: model.StatusPresent},
	}, nil)
	ms.On("ListMembers", mock.Anything).Return([]model.Member{{ID: "m1", Name: "New Name"}}, nil)

	svc := NewService(ms, Options{})
	entries, err := svc.AttendanceForDate(context.Background(), "2024-01-01")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "New Name", entries[0].MemberName)
	assert.Equal(t, "Ghost", entries[1].MemberName)
	assert.Equal(t, model.StatusPresent, entries[1].Status)
	ms.AssertExpectations(t)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestRecordAttendancePublishesOnlyNewRecords(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(t, Options{Publisher: pub})
	ctx := context.Background()
	m, err := svc.Register(ctx, "Bob")
	require.NoError(t, err)

	_, err = svc.RecordAttendance(ctx, m.QRCode, "2024-03-05")
	require.NoError(t, err)
	_, err = svc.RecordAttendance(ctx, m.QRCode, "2024-03-05")
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, queue.TypeAttendanceRecorded, pub.msgs[0].Type)
	var evt RecordedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].Body, &evt))
	assert.Equal(t, m.ID, evt.MemberID)
	assert.Equal(t, "2024-03-05", evt.Date)
}

func TestValidDate(t *testing.T) {
	for date, want := range map[string]bool{
		"2024-01-01": true,
		"2024-02-29": true,
		"2023-02-29": false,
		"2024-13-40": false,
		"24-01-01":   false,
		"2024/01/01": false,
		"":           false,
	} {
		assert.Equal(t, want, ValidDate(date), date)
	}
}
