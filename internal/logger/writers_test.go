package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testHeader = []string{"timestamp", "wallet", "asset", "quantity", "realized_usd"}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestSafeCSVWriterConcurrentWrites(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "journal", "realizations.csv")

	writer, err := NewSafeCSVWriter(testFile, testHeader, 20*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	numGoroutines := 8
	recordsPerGoroutine := 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				record := []string{time.Now().Format(time.RFC3339), fmt.Sprintf("w%d", id), "MintA", "1", "0.5"}
				if err := writer.WriteRecord(record); err != nil {
					t.Errorf("Failed to write record: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	records, _ := writer.GetStats()
	assert.Equal(t, uint64(numGoroutines*recordsPerGoroutine), records)
	require.NoError(t, writer.Close())

	rows := readCSV(t, testFile)
	require.Len(t, rows, 1+numGoroutines*recordsPerGoroutine)
	assert.Equal(t, testHeader, rows[0])
}

func TestSafeCSVWriterAppendsWithoutSecondHeader(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "realizations.csv")

	for i := 0; i < 2; i++ {
		writer, err := NewSafeCSVWriter(testFile, testHeader, time.Second, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, writer.WriteRecord([]string{"t", "w", "a", "1", "2"}))
		require.NoError(t, writer.Close())
	}

	rows := readCSV(t, testFile)
	assert.Len(t, rows, 3)
}

func TestSafeCSVWriterClosedRejectsWrites(t *testing.T) {
	writer, err := NewSafeCSVWriter(filepath.Join(t.TempDir(), "x.csv"), nil, time.Second, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	assert.Error(t, writer.WriteRecord([]string{"a"}))
	assert.NoError(t, writer.Flush())
}
