package history

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-raffle/inter"
	"github.com/rony4d/go-opera-raffle/raffle"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(round uint64) Record {
	return Record{
		Round:     round,
		Winner:    common.BigToAddress(new(big.Int).SetUint64(round + 1)),
		Prize:     big.NewInt(int64(100 * (round + 1))),
		RequestID: new(big.Int).SetUint64(round + 1),
		Players:   round + 1,
		Time:      inter.Timestamp(1608600000 + 60*round),
	}
}

func TestOpen_requiresPath(t *testing.T) {
	_, err := Open(" ")
	require.Error(t, err)
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Last()
	require.ErrorIs(t, err, ErrNotFound)

	for _, round := range []uint64{2, 0, 1, 256} {
		require.NoError(t, s.Put(testRecord(round)))
	}

	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, testRecord(1), got)

	last, err := s.Last()
	require.NoError(t, err)
	require.Equal(t, uint64(256), last.Round)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, want := range []uint64{0, 1, 2, 256} {
		require.Equal(t, testRecord(want), all[i])
	}
}

func TestPut_overwrites(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(testRecord(3)))

	rec := testRecord(3)
	rec.Winner = common.HexToAddress("0xbeef")
	require.NoError(t, s.Put(rec))

	got, err := s.Get(3)
	require.NoError(t, err)
	require.Equal(t, rec.Winner, got.Winner)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(testRecord(7)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(7)
	require.NoError(t, err)
	require.Equal(t, testRecord(7), got)
}

type feedSource struct {
	feed event.Feed
}

func (f *feedSource) SubscribeWinnerPicked(ch chan<- raffle.WinnerPicked) event.Subscription {
	return f.feed.Subscribe(ch)
}

func TestTrack(t *testing.T) {
	s := openTestStore(t)
	src := &feedSource{}

	sub := s.Track(src)
	for round := uint64(0); round < 3; round++ {
		rec := testRecord(round)
		src.feed.Send(raffle.WinnerPicked{
			Winner:    rec.Winner,
			RequestID: rec.RequestID,
			Prize:     rec.Prize,
			Round:     rec.Round,
			Players:   int(rec.Players),
			Time:      rec.Time,
		})
	}
	sub.Unsubscribe()

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, rec := range all {
		require.Equal(t, testRecord(uint64(i)), rec)
	}

	// the feed no longer has subscribers
	require.Zero(t, src.feed.Send(raffle.WinnerPicked{}))
}
