package storage

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

const kiwipete = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"

func TestAnalysisStore(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(kiwipete)
	require.True(t, errors.Is(err, ErrNotFound))

	rec := Record{Move: "e2a6", Score: 35, Depth: 9, PV: []string{"e2a6", "b4c3"}, Nodes: 123456}
	require.NoError(t, s.Put(kiwipete, rec))

	got, err := s.Get(kiwipete)
	require.NoError(t, err)
	require.Equal(t, rec.Move, got.Move)
	require.Equal(t, rec.Score, got.Score)
	require.Equal(t, rec.Depth, got.Depth)
	require.Equal(t, rec.PV, got.PV)
	require.False(t, got.Updated.IsZero())

	n, err := s.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPutKeepsDeeperAnalysis(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(kiwipete, Record{Move: "e2a6", Depth: 12}))
	require.NoError(t, s.Put(kiwipete, Record{Move: "d5e6", Depth: 6}))

	got, err := s.Get(kiwipete)
	require.NoError(t, err)
	require.Equal(t, "e2a6", got.Move)

	require.NoError(t, s.Put(kiwipete, Record{Move: "d5e6", Depth: 14}))
	got, err = s.Get(kiwipete)
	require.NoError(t, err)
	require.Equal(t, "d5e6", got.Move)
}

func TestFingerprintIgnoresMoveCounters(t *testing.T) {
	a := Fingerprint("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	b := Fingerprint("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 12 40")
	c := Fingerprint("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestAnalysisDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	dir, err := AnalysisDir("")
	require.NoError(t, err)
	require.NotEmpty(t, dir)

	_, err = os.Stat(dir)
	require.NoError(t, err)
}
