package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/degreeday-logger/internal/degreeday"
	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

func sampleLogger(id string, created time.Time) dglogger.Logger {
	start := created.Add(time.Hour)
	temp := 4.5
	return dglogger.Logger{
		ID:               id,
		Name:             "logger " + id,
		Latitude:         60.7249,
		Longitude:        9.0365,
		TargetDegreeDays: 40,
		IsRunning:        true,
		StartTime:        &start,
		DataTable: []degreeday.DataPoint{
			{Timestamp: start, MeasuredTemp: &temp},
		},
		AccumulatedDegreeDays: 1.25,
		CreatedAt:             created,
		UpdatedAt:             created,
	}
}

// --- LocalStore ---

func TestLocalStore_SaveGetDelete(t *testing.T) {
	s, err := NewLocalStore("", nil)
	require.NoError(t, err)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveLogger(ctx, sampleLogger("b", created.Add(time.Minute))))
	require.NoError(t, s.SaveLogger(ctx, sampleLogger("a", created)))

	loaded, err := s.LoadLoggers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].ID)
	assert.Equal(t, "b", loaded[1].ID)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1.25, got.AccumulatedDegreeDays)

	require.NoError(t, s.DeleteLogger(ctx, "a"))
	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteLogger(ctx, "a"), ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestLocalStore_SnapshotSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "loggers.json.zst")
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	s, err := NewLocalStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveLogger(ctx, sampleLogger("a", created)))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, json.Valid(raw), "snapshot should be compressed")

	reopened, err := NewLocalStore(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "logger a", got.Name)
	require.NotNil(t, got.StartTime)
	assert.True(t, got.StartTime.Equal(created.Add(time.Hour)))
	require.Len(t, got.DataTable, 1)
	assert.Equal(t, 4.5, *got.DataTable[0].MeasuredTemp)
}

func TestLocalStore_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loggers.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))

	_, err := NewLocalStore(path, nil)
	assert.Error(t, err)
}

// --- PostgresStore ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// docRows implements pgx.Rows over a list of JSON documents.
type docRows struct {
	docs   [][]byte
	idx    int
	closed bool
}

func (r *docRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.docs)
}

func (r *docRows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.docs) {
		return errors.New("no current row")
	}
	*dest[0].(*[]byte) = r.docs[r.idx]
	return nil
}

func (r *docRows) Close()                                       { r.closed = true }
func (r *docRows) Err() error                                   { return nil }
func (r *docRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *docRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *docRows) RawValues() [][]byte                           { return nil }
func (r *docRows) Values() ([]any, error)                        { return nil, nil }
func (r *docRows) Conn() *pgx.Conn                              { return nil }

func TestPostgresStore_SaveUpsertsDocument(t *testing.T) {
	db := new(mockDBTX)
	s := NewPostgresStore(db)
	l := sampleLogger("a", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		if len(args) != 3 || args[0] != "a" {
			return false
		}
		var decoded dglogger.Logger
		return json.Unmarshal(args[1].([]byte), &decoded) == nil && decoded.Name == "logger a"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, s.SaveLogger(context.Background(), l))
	db.AssertExpectations(t)
}

func TestPostgresStore_LoadDecodesDocuments(t *testing.T) {
	db := new(mockDBTX)
	s := NewPostgresStore(db)
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	var docs [][]byte
	for _, id := range []string{"a", "b"} {
		doc, err := json.Marshal(sampleLogger(id, created))
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&docRows{docs: docs, idx: -1}, nil)

	loaded, err := s.LoadLoggers(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "b", loaded[1].ID)
	assert.True(t, loaded[0].IsRunning)
}

func TestPostgresStore_DeleteMissing(t *testing.T) {
	db := new(mockDBTX)
	s := NewPostgresStore(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	assert.ErrorIs(t, s.DeleteLogger(context.Background(), "gone"), ErrNotFound)
}

func TestPostgresStore_QueryError(t *testing.T) {
	db := new(mockDBTX)
	s := NewPostgresStore(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := s.LoadLoggers(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

// --- Fallback ---

type mockPersistence struct {
	mock.Mock
}

func (m *mockPersistence) LoadLoggers(ctx context.Context) ([]dglogger.Logger, error) {
	args := m.Called(ctx)
	if l := args.Get(0); l != nil {
		return l.([]dglogger.Logger), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPersistence) SaveLogger(ctx context.Context, l dglogger.Logger) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockPersistence) DeleteLogger(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestFallback_PrimaryDownIsInvisible(t *testing.T) {
	primary := new(mockPersistence)
	down := errors.New("dial tcp: connection refused")
	primary.On("SaveLogger", mock.Anything, mock.Anything).Return(down)
	primary.On("LoadLoggers", mock.Anything).Return(nil, down)
	primary.On("DeleteLogger", mock.Anything, mock.Anything).Return(down)

	local, err := NewLocalStore("", nil)
	require.NoError(t, err)
	f := NewFallback(primary, local, nil)
	ctx := context.Background()

	require.NoError(t, f.SaveLogger(ctx, sampleLogger("a", time.Now())))
	loaded, err := f.LoadLoggers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)

	require.NoError(t, f.DeleteLogger(ctx, "a"))
	assert.Zero(t, local.Len())
	primary.AssertExpectations(t)
}

func TestFallback_LoadMergesPrimaryAndLocal(t *testing.T) {
	older := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	remoteOnly := sampleLogger("r", older)
	remoteNewer := sampleLogger("both-remote-wins", older)
	remoteNewer.UpdatedAt = newer
	remoteNewer.Name = "remote"
	remoteOlder := sampleLogger("both-local-wins", older)
	remoteOlder.Name = "remote"

	primary := new(mockPersistence)
	primary.On("LoadLoggers", mock.Anything).Return([]dglogger.Logger{remoteOnly, remoteNewer, remoteOlder}, nil)
	primary.On("SaveLogger", mock.Anything, mock.MatchedBy(func(l dglogger.Logger) bool {
		return l.ID == "local-only" || l.ID == "both-local-wins"
	})).Return(nil).Twice()

	local, err := NewLocalStore("", nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, local.SaveLogger(ctx, sampleLogger("local-only", older)))
	localOlder := sampleLogger("both-remote-wins", older)
	localOlder.Name = "local"
	require.NoError(t, local.SaveLogger(ctx, localOlder))
	localNewer := sampleLogger("both-local-wins", older)
	localNewer.UpdatedAt = newer
	localNewer.Name = "local"
	require.NoError(t, local.SaveLogger(ctx, localNewer))

	f := NewFallback(primary, local, nil)
	loaded, err := f.LoadLoggers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 4)

	byID := make(map[string]dglogger.Logger, len(loaded))
	for _, l := range loaded {
		byID[l.ID] = l
	}
	assert.Equal(t, "remote", byID["both-remote-wins"].Name)
	assert.Equal(t, "local", byID["both-local-wins"].Name)
	assert.Contains(t, byID, "r")
	assert.Contains(t, byID, "local-only")
	assert.Equal(t, 4, local.Len())
	primary.AssertExpectations(t)
}

func TestFallback_OutageSavesSurvivePrimaryRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loggers.json.zst")
	ctx := context.Background()
	down := errors.New("dial tcp: connection refused")

	offline := new(mockPersistence)
	offline.On("SaveLogger", mock.Anything, mock.Anything).Return(down)
	local, err := NewLocalStore(path, nil)
	require.NoError(t, err)
	made := sampleLogger("made-during-outage", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, NewFallback(offline, local, nil).SaveLogger(ctx, made))
	require.NoError(t, local.Close())

	// Restart with the primary reachable again but still empty.
	online := new(mockPersistence)
	online.On("LoadLoggers", mock.Anything).Return([]dglogger.Logger{}, nil)
	online.On("SaveLogger", mock.Anything, mock.MatchedBy(func(l dglogger.Logger) bool {
		return l.ID == made.ID
	})).Return(nil).Once()

	reopened, err := NewLocalStore(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	loaded, err := NewFallback(online, reopened, nil).LoadLoggers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, made.ID, loaded[0].ID)
	assert.Equal(t, 1, reopened.Len())
	online.AssertExpectations(t)

	// A failed resync keeps the logger locally for the next load.
	flaky := new(mockPersistence)
	flaky.On("LoadLoggers", mock.Anything).Return([]dglogger.Logger{}, nil)
	flaky.On("SaveLogger", mock.Anything, mock.Anything).Return(down)
	loaded, err = NewFallback(flaky, reopened, nil).LoadLoggers(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestFallback_WithoutPrimary(t *testing.T) {
	local, err := NewLocalStore("", nil)
	require.NoError(t, err)
	f := NewFallback(nil, local, nil)

	require.NoError(t, f.SaveLogger(context.Background(), sampleLogger("a", time.Now())))
	require.NoError(t, f.DeleteLogger(context.Background(), "missing"))
	assert.Equal(t, 1, local.Len())
}

var _ dglogger.Persistence = (*Fallback)(nil)
var _ dglogger.Persistence = (*PostgresStore)(nil)
var _ dglogger.Persistence = (*LocalStore)(nil)
