package logger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedFileWriter_FlushAndClose(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "test.log")
	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(0))
	require.NoError(t, err)

	testData := "Hello, buffered world!\n"
	n, err := writer.Write([]byte(testData))
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Empty(t, content, "data should still be buffered")

	require.NoError(t, writer.Flush())
	content, err = os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, testData, string(content))

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	_, err = writer.Write([]byte("late"))
	require.ErrorIs(t, err, ErrWriterClosed)
}

func TestBufferedFileWriter_AutoFlush(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "autoflush.log")
	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	_, err = writer.Write([]byte("auto\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
		return err == nil && string(content) == "auto\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBufferedFileWriter_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	writer, err := NewBufferedFileWriter(logPath)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				_, _ = writer.Write([]byte("x\n"))
			}
		})
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Len(t, content, 8*100*2)
}
