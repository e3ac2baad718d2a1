package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteSSEEmitsEntryEvents(t *testing.T) {
	reader := StubReader{
		Entries: []Entry{
			{"MESSAGE": json.RawMessage(`"hello"`), "SYSLOG_TIMESTAMP": json.RawMessage(`"2026-01-01"`)},
		},
	}
	ch, err := reader.Tail(context.Background(), 1, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = WriteSSE(ctx, &buf, func() {}, ch)
	require.NoError(t, err, "WriteSSE should return cleanly once the entry channel closes")

	require.True(t, strings.Contains(buf.String(), "event: entry"))
	require.True(t, strings.Contains(buf.String(), `"MESSAGE":"hello"`))
}
