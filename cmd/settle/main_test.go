package main

import (
	"bytes"
	"errors"
	"testing"

	"ridewallet/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileStub struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (f *fileStub) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.buf.Write(p)
}

func (f *fileStub) Close() error {
	f.closed = true
	return f.closeErr
}

func TestWritePayout(t *testing.T) {
	res := &service.BatchResult{BatchID: "b1", CSV: "batch_id\nb1\n"}

	t.Run("CSV", func(t *testing.T) {
		f := &fileStub{}
		require.NoError(t, writePayout(f, "csv", res))
		assert.Equal(t, res.CSV, f.buf.String())
		assert.True(t, f.closed)
	})

	t.Run("XLSX", func(t *testing.T) {
		f := &fileStub{}
		require.NoError(t, writePayout(f, "xlsx", res))
		assert.True(t, bytes.HasPrefix(f.buf.Bytes(), []byte("PK")), "zip container")
		assert.True(t, f.closed)
	})

	t.Run("Close error is reported", func(t *testing.T) {
		diskFull := errors.New("no space left on device")
		f := &fileStub{closeErr: diskFull}
		err := writePayout(f, "csv", res)
		assert.ErrorIs(t, err, diskFull)
		assert.ErrorContains(t, err, "close payout file")
	})

	t.Run("Write error wins over close error", func(t *testing.T) {
		writeErr := errors.New("write failed")
		f := &fileStub{writeErr: writeErr, closeErr: errors.New("close failed")}
		err := writePayout(f, "csv", res)
		assert.ErrorIs(t, err, writeErr)
		assert.True(t, f.closed)
	})
}
