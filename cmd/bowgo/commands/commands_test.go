package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/testutil"
)

type testEnv struct {
	dir      string
	config   string
	snapshot string
	files    map[string]string
}

// setupTestEnv writes a vocabulary, a config and descriptor files for three
// keyframes (kf1..kf3) and two query frames (q1 near kf1, q3 near kf3).
func setupTestEnv(t *testing.T, extraConfig string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	voc := testutil.NewVocab(16, 4, 2)
	rng := testutil.NewRNG(7)

	vocPath := filepath.Join(dir, "voc.bin")
	require.NoError(t, voc.Tree.Save(vocPath))

	env := &testEnv{
		dir:      dir,
		config:   filepath.Join(dir, "bowgo.yaml"),
		snapshot: filepath.Join(dir, "index.bow"),
		files:    map[string]string{},
	}
	leaves := map[string][]int{
		"kf1": {0, 1, 2, 3, 4},
		"kf2": {3, 4, 5, 6, 7},
		"kf3": {8, 9, 10, 11, 12},
		"q1":  {0, 1, 2, 3},
		"q3":  {9, 10, 11, 12},
	}
	for name, ls := range leaves {
		path := filepath.Join(dir, name+".desc")
		require.NoError(t, descriptor.WriteFile(path, testutil.Buffer(rng.Near(voc.LeafCentroids(ls...), 0.01))))
		env.files[name] = path
	}

	cfg := fmt.Sprintf(`vocabulary:
  path: %s
snapshot:
  path: %s
storage:
  backend: local
  local:
    dir: %s
logging:
  level: error
%s`, vocPath, env.snapshot, filepath.Join(dir, "published"), extraConfig)
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *testEnv) index(t *testing.T) {
	t.Helper()
	out, err := e.run(t, "index", "--start-id", "1", e.files["kf1"], e.files["kf2"], e.files["kf3"])
	require.NoError(t, err)
	require.Contains(t, out, "indexed 3 keyframes")
}

func TestIndexAndStats(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	out, err := env.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keyframes: 3")
	assert.Contains(t, out, "level:     2")
	assert.Contains(t, out, "metric:    L2")

	t.Run("AppendKeepsExisting", func(t *testing.T) {
		out, err := env.run(t, "index", "--append", "--start-id", "10", env.files["q1"])
		require.NoError(t, err)
		assert.Contains(t, out, "(4 total")
	})

	t.Run("ReplaceWithoutAppend", func(t *testing.T) {
		_, err := env.run(t, "index", "--start-id", "20", env.files["q3"])
		require.NoError(t, err)
		out, err := env.run(t, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "keyframes: 1")
	})
}

func TestIndexDuplicateIDLeavesSnapshot(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	_, err := env.run(t, "index", "--append", "--start-id", "3", env.files["q1"])
	require.Error(t, err)

	out, err := env.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keyframes: 3")
}

func TestIndexIDRange(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	_, err := env.run(t, "index", "--append", "--start-id", "4294967295", env.files["q1"], env.files["q3"])
	require.ErrorContains(t, err, "overflow the id range")

	out, err := env.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keyframes: 3")

	out, err = env.run(t, "index", "--append", "--start-id", "4294967295", env.files["q1"])
	require.NoError(t, err)
	assert.Contains(t, out, "(4 total")

	out, err = env.run(t, "query", "--candidates", "4294967295", env.files["q1"])
	require.NoError(t, err)
	assert.Contains(t, out, "1\t4294967295\n")
}

func TestQuery(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	out, err := env.run(t, "query", env.files["q3"])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "1\t3\t"), "best match should be keyframe 3, got %q", lines[0])

	t.Run("Candidates", func(t *testing.T) {
		out, err := env.run(t, "query", "--candidates", "1,2", env.files["q1"])
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "1\t1\n"), "got %q", out)
		assert.NotContains(t, out, "\t3\n")
	})

	t.Run("CandidateOutOfRange", func(t *testing.T) {
		out, err := env.run(t, "query", "--candidates", "1,4294967297", env.files["q1"])
		require.ErrorContains(t, err, "not a valid keyframe id")
		assert.NotContains(t, out, "\t1\n")
	})

	t.Run("MissingSnapshot", func(t *testing.T) {
		_, err := env.run(t, "--snapshot", filepath.Join(env.dir, "none.bow"), "query", env.files["q1"])
		assert.Error(t, err)
	})
}

func TestMatch(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	out, err := env.run(t, "match", "--id", "1", env.files["q1"], env.files["kf1"])
	require.NoError(t, err)
	assert.Contains(t, out, "4 matches")

	_, err = env.run(t, "match", "--id", "99", env.files["q1"], env.files["kf1"])
	assert.Error(t, err)
}

func TestSuppress(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	out, err := env.run(t, "suppress", "1", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "1 remaining")

	_, err = env.run(t, "suppress", "1")
	assert.Error(t, err)

	_, err = env.run(t, "suppress", "abc")
	assert.Error(t, err)
}

func TestPublishFetch(t *testing.T) {
	env := setupTestEnv(t, "")
	env.index(t)

	out, err := env.run(t, "publish", "snap-0001.bow")
	require.NoError(t, err)
	assert.Contains(t, out, "published snap-0001.bow (3 keyframes)")

	_, err = env.run(t, "suppress", "3")
	require.NoError(t, err)
	_, err = env.run(t, "publish", "snap-0002.bow")
	require.NoError(t, err)

	restored := filepath.Join(env.dir, "restored.bow")

	out, err = env.run(t, "--snapshot", restored, "fetch")
	require.NoError(t, err)
	assert.Contains(t, out, "fetched snap-0002.bow (2 keyframes)")

	out, err = env.run(t, "--snapshot", restored, "fetch", "snap-0001.bow")
	require.NoError(t, err)
	assert.Contains(t, out, "(3 keyframes)")

	out, err = env.run(t, "--snapshot", restored, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keyframes: 3")
}

func TestMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	promFile := filepath.Join(dir, "bowgo.prom")
	env := setupTestEnv(t, fmt.Sprintf("metrics:\n  enabled: true\n  textFile: %s\n", promFile))
	env.index(t)

	data, err := os.ReadFile(promFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bowgo_operations_total{operation="batch_add",status="ok"} 1`)
	assert.Contains(t, string(data), `bowgo_operations_total{operation="snapshot_save",status="ok"} 1`)
}

func TestInvalidConfig(t *testing.T) {
	env := setupTestEnv(t, "retrieval:\n  level: 0\n")
	_, err := env.run(t, "index", env.files["kf1"])
	assert.Error(t, err)
}

func TestSnapshotName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8e6, time.UTC)
	assert.Equal(t, "snapshot-20260304T050607.008Z.bow", snapshotName(ts))
	assert.Less(t, snapshotName(ts), snapshotName(ts.Add(time.Second)))
}
