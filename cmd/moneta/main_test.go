package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moneta-ledger/moneta/internal/app"
	_ "github.com/moneta-ledger/moneta/testing"
)

func TestMainSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), &app.Config{}, logger, []string{"dance"})
	require.ErrorContains(t, err, "unknown command")

	err = run(context.Background(), &app.Config{}, logger, []string{"stats", "-lang", "ru", "twenty"})
	require.ErrorContains(t, err, "invalid year")
}

type recordingLedger struct {
	ctxErr error
	err    error
}

func (l *recordingLedger) Close(ctx context.Context) error {
	l.ctxErr = ctx.Err()
	return l.err
}

func TestCloseLedgerIgnoresCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ledger := &recordingLedger{}
	require.NoError(t, closeLedger(ctx, logger, ledger))
	require.NoError(t, ledger.ctxErr)
	require.Empty(t, buf.String())

	ledger.err = errors.New("flush sales: connection refused")
	err := closeLedger(ctx, logger, ledger)
	require.ErrorIs(t, err, ledger.err)
	require.Contains(t, buf.String(), "close ledger")
	require.Contains(t, buf.String(), "connection refused")
}
